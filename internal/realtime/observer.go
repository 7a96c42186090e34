package realtime

import (
	"errors"
	"log/slog"

	"marketplace_backend/platform/logger"
)

// Observer receives lifecycle and delivery notifications from the hub.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	Connected(connID string)
	Disconnected(connID string, rooms []string)
	Failed(connID string, err error)
	Received(connID, event string)
	Joined(connID, room string)
	Broadcast(room, event string, members, delivered int)
	Dropped(connID, room, event string, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) Connected(string)                      {}
func (NopObserver) Disconnected(string, []string)         {}
func (NopObserver) Failed(string, error)                  {}
func (NopObserver) Received(string, string)               {}
func (NopObserver) Joined(string, string)                 {}
func (NopObserver) Broadcast(string, string, int, int)    {}
func (NopObserver) Dropped(string, string, string, error) {}

// Observers fans every notification out to each observer in order.
type Observers []Observer

func (o Observers) Connected(connID string) {
	for _, obs := range o {
		obs.Connected(connID)
	}
}

func (o Observers) Disconnected(connID string, rooms []string) {
	for _, obs := range o {
		obs.Disconnected(connID, rooms)
	}
}

func (o Observers) Failed(connID string, err error) {
	for _, obs := range o {
		obs.Failed(connID, err)
	}
}

func (o Observers) Received(connID, event string) {
	for _, obs := range o {
		obs.Received(connID, event)
	}
}

func (o Observers) Joined(connID, room string) {
	for _, obs := range o {
		obs.Joined(connID, room)
	}
}

func (o Observers) Broadcast(room, event string, members, delivered int) {
	for _, obs := range o {
		obs.Broadcast(room, event, members, delivered)
	}
}

func (o Observers) Dropped(connID, room, event string, err error) {
	for _, obs := range o {
		obs.Dropped(connID, room, event, err)
	}
}

// LogObserver writes lifecycle notifications to the application logger.
type LogObserver struct {
	log *logger.Logger
}

// NewLogObserver creates an observer tagged with the realtime component.
func NewLogObserver(log *logger.Logger) *LogObserver {
	return &LogObserver{log: log.WithComponent("realtime")}
}

func (l *LogObserver) Connected(connID string) {
	l.log.RealtimeEvent("connected", connID)
}

func (l *LogObserver) Disconnected(connID string, rooms []string) {
	l.log.RealtimeEvent("disconnected", connID, slog.Int("rooms_left", len(rooms)))
}

func (l *LogObserver) Failed(connID string, err error) {
	if errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrInvalidPayload) {
		l.log.Warn("realtime_bad_frame", "conn_id", connID, "error", err.Error())
		return
	}
	l.log.RealtimeError(connID, err)
}

func (l *LogObserver) Received(connID, event string) {
	l.log.Debug("realtime_received", "conn_id", connID, "event", event)
}

func (l *LogObserver) Joined(connID, room string) {
	l.log.RealtimeEvent("joined", connID, slog.String("room", room))
}

func (l *LogObserver) Broadcast(room, event string, members, delivered int) {
	l.log.Debug("realtime_broadcast",
		"room", room,
		"event", event,
		"members", members,
		"delivered", delivered,
	)
}

func (l *LogObserver) Dropped(connID, room, event string, err error) {
	l.log.Warn("realtime_dropped",
		"conn_id", connID,
		"room", room,
		"event", event,
		"error", err.Error(),
	)
}
