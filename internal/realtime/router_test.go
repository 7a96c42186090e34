package realtime

import (
	"reflect"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

type sentBroadcast struct {
	room    string
	event   string
	payload any
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sentBroadcast
}

func (b *recordingBroadcaster) Broadcast(room, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentBroadcast{room: room, event: event, payload: payload})
}

func (b *recordingBroadcaster) all() []sentBroadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentBroadcast(nil), b.sent...)
}

type joinRecorder struct {
	NopObserver
	mu     sync.Mutex
	joined []string
}

func (o *joinRecorder) Joined(connID, room string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.joined = append(o.joined, connID+"@"+room)
}

func TestRouteJoins(t *testing.T) {
	rooms := NewRooms()
	rooms.Open("c1")
	obs := &joinRecorder{}
	router := NewRouter(rooms, &recordingBroadcaster{}, obs)

	router.Route("c1", JoinUser{UserID: "u1"})
	router.Route("c1", TrackOrder{OrderID: "o1"})
	router.Route("c1", TrackDelivery{DeliveryID: "d1"})
	router.Route("c1", JoinSupport{UserID: "u1", TicketID: "t1"})
	router.Route("c1", TrackOrder{OrderID: "o1"})

	want := []string{"delivery:d1", "order:o1", "support:t1", "user:u1"}
	if got := rooms.RoomsOf("c1"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if len(obs.joined) != 4 {
		t.Fatalf("expected 4 join notifications (repeat join is silent), got %v", obs.joined)
	}
}

func TestRouteBroadcasts(t *testing.T) {
	rooms := NewRooms()
	rooms.Open("c1")
	out := &recordingBroadcaster{}
	router := NewRouter(rooms, out, nil)

	router.Route("c1", SupportMessage{TicketID: "t5", Message: json.RawMessage(`"hi"`)})
	router.Route("c1", UpdateLocation{DeliveryID: "d1", Location: json.RawMessage(`{"lat":1}`)})

	sent := out.all()
	if len(sent) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(sent))
	}
	if sent[0].room != "support:t5" || sent[0].event != EventNewMessage {
		t.Fatalf("unexpected support broadcast: %+v", sent[0])
	}
	if sent[1].room != "delivery:d1" || sent[1].event != EventLocationUpdated {
		t.Fatalf("unexpected location broadcast: %+v", sent[1])
	}
	if rooms.Count() != 0 {
		t.Fatalf("broadcasting must not change membership")
	}
}
