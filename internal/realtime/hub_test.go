package realtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

type fakeConn struct {
	id string

	mu       sync.Mutex
	messages []Message
	sendErr  error
	panics   bool
	closed   int
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg Message) error {
	if c.panics {
		panic("boom")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) received() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

type countingObserver struct {
	NopObserver
	mu           sync.Mutex
	connected    int
	disconnected int
	failed       []error
	dropped      []error
	received     []string
}

func (o *countingObserver) Connected(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connected++
}

func (o *countingObserver) Disconnected(string, []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disconnected++
}

func (o *countingObserver) Failed(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, err)
}

func (o *countingObserver) Received(_, event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.received = append(o.received, event)
}

func (o *countingObserver) Dropped(_, _, _ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, err)
}

func TestScenarioJoinUserRoom(t *testing.T) {
	hub := NewHub(nil)
	x := hub.Connect(newFakeConn("x"))

	hub.Handle(x, []byte(`{"event":"join","data":"u42"}`))

	members := hub.Rooms().MembersOf("user:u42")
	if len(members) != 1 || members[0] != "x" {
		t.Fatalf("expected x in user:u42, got %v", members)
	}
}

func TestScenarioOrderBroadcastReachesAllTrackers(t *testing.T) {
	hub := NewHub(nil)
	x, y, z := newFakeConn("x"), newFakeConn("y"), newFakeConn("z")
	hub.Connect(x)
	hub.Connect(y)
	hub.Connect(z)

	hub.Handle("x", []byte(`{"event":"track_order","data":"o9"}`))
	hub.Handle("y", []byte(`{"event":"track_order","data":"o9"}`))
	hub.Broadcast("order:o9", EventStatusChanged, map[string]string{"status": "shipped"})

	for _, conn := range []*fakeConn{x, y} {
		msgs := conn.received()
		if len(msgs) != 1 || msgs[0].Event != EventStatusChanged {
			t.Fatalf("%s: expected one status_changed, got %+v", conn.id, msgs)
		}
		if msgs[0].Data.(map[string]string)["status"] != "shipped" {
			t.Fatalf("%s: unexpected payload %+v", conn.id, msgs[0].Data)
		}
	}
	if len(z.received()) != 0 {
		t.Fatalf("non-member must not receive order events")
	}
}

func TestScenarioSupportMessageEchoesToSender(t *testing.T) {
	hub := NewHub(nil)
	x := newFakeConn("x")
	hub.Connect(x)

	hub.Handle("x", []byte(`{"event":"join_support","data":{"userId":"u1","ticketId":"t5"}}`))
	hub.Handle("x", []byte(`{"event":"support_message","data":{"ticketId":"t5","message":"hi"}}`))

	msgs := x.received()
	if len(msgs) != 1 || msgs[0].Event != EventNewMessage {
		t.Fatalf("expected new_message, got %+v", msgs)
	}
	raw, ok := msgs[0].Data.(json.RawMessage)
	if !ok || string(raw) != `"hi"` {
		t.Fatalf("unexpected payload %#v", msgs[0].Data)
	}
}

func TestScenarioNumericTicketJoinsSupportRoom(t *testing.T) {
	hub := NewHub(nil)
	x := newFakeConn("x")
	hub.Connect(x)

	hub.Handle("x", []byte(`{"event":"join_support","data":{"userId":"u1","ticketId":5}}`))
	hub.Handle("x", []byte(`{"event":"track_order","data":5}`))

	want := []string{"order:5", "support:5"}
	if got := hub.Rooms().RoomsOf("x"); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}

	hub.Handle("x", []byte(`{"event":"support_message","data":{"ticketId":5,"message":"hi"}}`))
	if msgs := x.received(); len(msgs) != 1 || msgs[0].Event != EventNewMessage {
		t.Fatalf("expected new_message on support:5, got %+v", msgs)
	}
}

func TestJoinAfterDisconnectIsRefused(t *testing.T) {
	hub := NewHub(nil)
	hub.Connect(newFakeConn("x"))
	hub.Handle("x", []byte(`{"event":"join","data":"u42"}`))

	hub.Disconnect("x")
	// A frame that passed the registry check before Disconnect routes late.
	hub.router.Route("x", JoinUser{UserID: "u42"})

	if hub.Rooms().Count() != 0 {
		t.Fatalf("late join resurrected a room: count=%d", hub.Rooms().Count())
	}
	if got := hub.Rooms().MembersOf("user:u42"); len(got) != 0 {
		t.Fatalf("expected no members, got %v", got)
	}
}

func TestScenarioBroadcastAfterDisconnect(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(obs)
	x := newFakeConn("x")
	hub.Connect(x)
	hub.Handle("x", []byte(`{"event":"join","data":"u42"}`))

	hub.Disconnect("x")
	hub.Broadcast("user:u42", "e", "p")

	if len(x.received()) != 0 {
		t.Fatalf("disconnected connection must not be sent to")
	}
	if len(obs.dropped) != 0 {
		t.Fatalf("no delivery should be attempted, got drops %v", obs.dropped)
	}
	if hub.Stats() != (Stats{}) {
		t.Fatalf("expected empty hub, got %+v", hub.Stats())
	}
}

func TestDisconnectRunsOnce(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(obs)
	hub.Connect(newFakeConn("x"))
	hub.Handle("x", []byte(`{"event":"track_delivery","data":"d1"}`))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Disconnect("x")
		}()
	}
	wg.Wait()

	if obs.disconnected != 1 {
		t.Fatalf("expected exactly one disconnect notification, got %d", obs.disconnected)
	}
	if hub.Rooms().Count() != 0 {
		t.Fatalf("expected rooms to be collected")
	}
}

func TestBroadcastIsolatesFailingMembers(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(obs)
	good := newFakeConn("a")
	full := newFakeConn("b")
	full.sendErr = ErrSendBufferFull
	broken := newFakeConn("c")
	broken.panics = true

	for _, conn := range []Conn{good, full, broken} {
		hub.Connect(conn)
		hub.Rooms().Join(conn.ID(), "order:o1")
	}

	hub.Broadcast("order:o1", EventStatusChanged, "x")

	if len(good.received()) != 1 {
		t.Fatalf("healthy member must still receive the event")
	}
	if len(obs.dropped) != 2 {
		t.Fatalf("expected 2 drops, got %v", obs.dropped)
	}
	if !errors.Is(obs.dropped[0], ErrSendBufferFull) {
		t.Fatalf("expected buffer full drop first, got %v", obs.dropped[0])
	}
}

func TestBroadcastEmptyRoomIsNoop(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcast("order:none", EventStatusChanged, nil)
	if hub.Rooms().Count() != 0 {
		t.Fatalf("broadcast must not create rooms")
	}
}

func TestHandleIgnoresUnknownAndReportsBadFrames(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(obs)
	hub.Connect(newFakeConn("x"))

	hub.Handle("x", []byte(`{"event":"leave_room","data":"x"}`))
	hub.Handle("x", []byte(`not json`))
	hub.Handle("x", []byte(`{"event":"join","data":""}`))
	hub.Handle("ghost", []byte(`{"event":"join","data":"u1"}`))

	if len(obs.failed) != 2 {
		t.Fatalf("expected 2 failures, got %v", obs.failed)
	}
	if !errors.Is(obs.failed[0], ErrMalformedFrame) || !errors.Is(obs.failed[1], ErrInvalidPayload) {
		t.Fatalf("unexpected failures: %v", obs.failed)
	}
	if len(obs.received) != 0 {
		t.Fatalf("no event should have been routed, got %v", obs.received)
	}
	if hub.Rooms().Count() != 0 {
		t.Fatalf("unregistered connections must not join rooms")
	}
	if !hub.Registry().Exists("x") {
		t.Fatalf("bad frames must not drop the connection")
	}
}

func TestFailKeepsMembership(t *testing.T) {
	hub := NewHub(nil)
	hub.Connect(newFakeConn("x"))
	hub.Handle("x", []byte(`{"event":"join","data":"u1"}`))

	hub.Fail("x", errors.New("read timeout"))

	if len(hub.Rooms().RoomsOf("x")) != 1 {
		t.Fatalf("errors must not change membership")
	}
}

func TestFanoutReceivesClientBroadcasts(t *testing.T) {
	hub := NewHub(nil)
	out := &recordingBroadcaster{}
	hub.SetFanout(out)
	hub.Connect(newFakeConn("x"))

	hub.Handle("x", []byte(`{"event":"update_location","data":{"deliveryId":"d1","location":{"lat":1}}}`))

	sent := out.all()
	if len(sent) != 1 || sent[0].room != "delivery:d1" {
		t.Fatalf("expected location to go through the fanout, got %+v", sent)
	}

	hub.SetFanout(nil)
	hub.Handle("x", []byte(`{"event":"update_location","data":{"deliveryId":"d1","location":{"lat":2}}}`))
	if len(out.all()) != 1 {
		t.Fatalf("resetting the fanout must route back to the hub")
	}
}

func TestCloseAll(t *testing.T) {
	hub := NewHub(nil)
	a, b := newFakeConn("a"), newFakeConn("b")
	hub.Connect(a)
	hub.Connect(b)

	if n := hub.CloseAll(); n != 2 {
		t.Fatalf("expected 2 closed, got %d", n)
	}
	if a.closed != 1 || b.closed != 1 {
		t.Fatalf("expected each connection closed once")
	}
}
