package realtime

// Broadcaster delivers a named event to every member of a room. It never
// reports failure to the caller.
type Broadcaster interface {
	Broadcast(room, event string, payload any)
}

// Router applies decoded client events to the membership model or to a broadcaster.
type Router struct {
	rooms *Rooms
	out   Broadcaster
	obs   Observer
}

// NewRouter creates a router. out receives support messages and location updates.
func NewRouter(rooms *Rooms, out Broadcaster, obs Observer) *Router {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Router{rooms: rooms, out: out, obs: obs}
}

// Route handles one event from connID. Clients cannot leave rooms; membership
// is shed only on disconnect.
func (r *Router) Route(connID string, ev Inbound) {
	switch e := ev.(type) {
	case JoinUser:
		r.join(connID, UserRoom(e.UserID))
	case TrackOrder:
		r.join(connID, OrderRoom(e.OrderID))
	case TrackDelivery:
		r.join(connID, DeliveryRoom(e.DeliveryID))
	case JoinSupport:
		r.join(connID, SupportRoom(e.TicketID))
	case SupportMessage:
		r.out.Broadcast(SupportRoom(e.TicketID), EventNewMessage, e.Message)
	case UpdateLocation:
		r.out.Broadcast(DeliveryRoom(e.DeliveryID), EventLocationUpdated, e.Location)
	}
}

func (r *Router) join(connID, room string) {
	if r.rooms.Join(connID, room) {
		r.obs.Joined(connID, room)
	}
}
