package sanitize

import "testing"

func TestText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "  hello  ", want: "hello"},
		{in: "<b>bold</b> move", want: "bold move"},
		{in: "&lt;script&gt;alert(1)&lt;/script&gt;hi", want: "alert(1)hi"},
		{in: "a \t  b\nc", want: "a b\nc"},
		{in: "fish & chips", want: "fish & chips"},
	}

	for _, tc := range cases {
		if got := Text(tc.in); got != tc.want {
			t.Errorf("Text(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
