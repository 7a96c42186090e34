package realtime

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Client to server event names.
const (
	EventJoin           = "join"
	EventTrackOrder     = "track_order"
	EventTrackDelivery  = "track_delivery"
	EventJoinSupport    = "join_support"
	EventSupportMessage = "support_message"
	EventUpdateLocation = "update_location"
)

// Server to client event names.
const (
	EventNewMessage      = "new_message"
	EventLocationUpdated = "location_updated"
	EventStatusChanged   = "status_changed"
)

var (
	// ErrUnknownEvent marks frames whose event name is not handled. Callers ignore it.
	ErrUnknownEvent = errors.New("realtime: unknown event")
	// ErrMalformedFrame marks frames that are not a JSON {event, data} object.
	ErrMalformedFrame = errors.New("realtime: malformed frame")
	// ErrInvalidPayload marks a known event whose payload lacks the identifier it routes on.
	ErrInvalidPayload = errors.New("realtime: invalid payload")
)

// Inbound is the closed set of client events. Only types in this file implement it.
type Inbound interface {
	EventName() string
	inbound()
}

// JoinUser subscribes to the user's personal room.
type JoinUser struct{ UserID string }

// TrackOrder subscribes to an order's status updates.
type TrackOrder struct{ OrderID string }

// TrackDelivery subscribes to a delivery's location updates.
type TrackDelivery struct{ DeliveryID string }

// JoinSupport subscribes to a support ticket's chat.
type JoinSupport struct {
	UserID   string
	TicketID string
}

// SupportMessage posts a chat message to a support ticket.
type SupportMessage struct {
	TicketID string
	Message  json.RawMessage
}

// UpdateLocation publishes a courier position for a delivery.
type UpdateLocation struct {
	DeliveryID string
	Location   json.RawMessage
}

func (JoinUser) EventName() string       { return EventJoin }
func (TrackOrder) EventName() string     { return EventTrackOrder }
func (TrackDelivery) EventName() string  { return EventTrackDelivery }
func (JoinSupport) EventName() string    { return EventJoinSupport }
func (SupportMessage) EventName() string { return EventSupportMessage }
func (UpdateLocation) EventName() string { return EventUpdateLocation }

func (JoinUser) inbound()       {}
func (TrackOrder) inbound()     {}
func (TrackDelivery) inbound()  {}
func (JoinSupport) inbound()    {}
func (SupportMessage) inbound() {}
func (UpdateLocation) inbound() {}

// frame is the wire envelope in both directions: {"event": name, "data": payload}.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode turns a wire frame into a typed event.
func Decode(raw []byte) (Inbound, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch f.Event {
	case EventJoin:
		id, err := decodeID(f.Data)
		if err != nil {
			return nil, err
		}
		return JoinUser{UserID: id}, nil
	case EventTrackOrder:
		id, err := decodeID(f.Data)
		if err != nil {
			return nil, err
		}
		return TrackOrder{OrderID: id}, nil
	case EventTrackDelivery:
		id, err := decodeID(f.Data)
		if err != nil {
			return nil, err
		}
		return TrackDelivery{DeliveryID: id}, nil
	case EventJoinSupport:
		var w struct {
			UserID   json.RawMessage `json:"userId"`
			TicketID json.RawMessage `json:"ticketId"`
		}
		if err := decodeObject(f.Data, &w); err != nil {
			return nil, err
		}
		ticketID, err := decodeID(w.TicketID)
		if err != nil {
			return nil, fmt.Errorf("%s requires ticketId: %w", f.Event, err)
		}
		userID, _ := decodeID(w.UserID)
		return JoinSupport{UserID: userID, TicketID: ticketID}, nil
	case EventSupportMessage:
		var w struct {
			TicketID json.RawMessage `json:"ticketId"`
			Message  json.RawMessage `json:"message"`
		}
		if err := decodeObject(f.Data, &w); err != nil {
			return nil, err
		}
		ticketID, err := decodeID(w.TicketID)
		if err != nil {
			return nil, fmt.Errorf("%s requires ticketId: %w", f.Event, err)
		}
		return SupportMessage{TicketID: ticketID, Message: w.Message}, nil
	case EventUpdateLocation:
		var w struct {
			DeliveryID json.RawMessage `json:"deliveryId"`
			Location   json.RawMessage `json:"location"`
		}
		if err := decodeObject(f.Data, &w); err != nil {
			return nil, err
		}
		deliveryID, err := decodeID(w.DeliveryID)
		if err != nil {
			return nil, fmt.Errorf("%s requires deliveryId: %w", f.Event, err)
		}
		return UpdateLocation{DeliveryID: deliveryID, Location: w.Location}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
}

// Encode renders an outbound message as a wire frame.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// decodeID accepts a JSON string or number; socket clients send either.
// Strings are used as sent.
func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: identifier required", ErrInvalidPayload)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var id string
	switch v := value.(type) {
	case string:
		id = v
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if id == "" {
		return "", fmt.Errorf("%w: identifier required", ErrInvalidPayload)
	}
	return id, nil
}

func decodeObject(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
