// Package service holds the HTTP-side producers of realtime events: order
// status changes, courier location reports, support chat and admin broadcasts.
package service

import (
	"context"
	"strings"
	"time"

	"marketplace_backend/internal/events"
	"marketplace_backend/internal/realtime"
	"marketplace_backend/internal/scheduler"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/logger"
	"marketplace_backend/platform/sanitize"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// StatsProvider reports live realtime counts.
type StatsProvider interface {
	Stats() realtime.Stats
}

// Actor is the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// SupportMessage is the new_message payload delivered to a ticket's room.
type SupportMessage struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticketId"`
	SenderID   string    `json:"senderId"`
	SenderRole string    `json:"senderRole"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// BroadcastInput is an admin-initiated broadcast.
type BroadcastInput struct {
	Room   string
	Event  string
	Data   json.RawMessage
	SendAt *time.Time
}

// BroadcastResult tells whether the broadcast went out or was queued.
type BroadcastResult struct {
	Scheduled bool
	TaskID    string
	SendAt    *time.Time
}

type Service struct {
	bus   events.Bus
	out   realtime.Broadcaster
	sched scheduler.BroadcastScheduler
	stats StatsProvider
	log   *logger.Logger
	now   func() time.Time
}

// New creates the service. sched may be nil, in which case future broadcasts
// are rejected as unavailable.
func New(bus events.Bus, out realtime.Broadcaster, sched scheduler.BroadcastScheduler, stats StatsProvider, log *logger.Logger) *Service {
	return &Service{bus: bus, out: out, sched: sched, stats: stats, log: log, now: time.Now}
}

func (s *Service) UpdateOrderStatus(ctx context.Context, actor Actor, orderID, status, note string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return apperr.Validation("order id is required")
	}

	return s.bus.PublishSync(ctx, events.OrderStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		OrderID:   orderID,
		Status:    status,
		Note:      sanitize.Text(note),
		ChangedBy: actor.UserID,
	})
}

func (s *Service) ReportLocation(ctx context.Context, actor Actor, deliveryID string, lat, lng float64, heading *float64) error {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return apperr.Validation("delivery id is required")
	}

	return s.bus.PublishSync(ctx, events.DeliveryLocationUpdated{
		BaseEvent:  events.NewBaseEvent(),
		DeliveryID: deliveryID,
		Latitude:   lat,
		Longitude:  lng,
		Heading:    heading,
		ReportedBy: actor.UserID,
	})
}

func (s *Service) PostSupportMessage(ctx context.Context, actor Actor, ticketID, text string) (SupportMessage, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return SupportMessage{}, apperr.Validation("ticket id is required")
	}

	msg := SupportMessage{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		SenderID:   actor.UserID.String(),
		SenderRole: actor.Role,
		Text:       sanitize.Text(text),
		CreatedAt:  s.now().UTC(),
	}
	if msg.Text == "" {
		return SupportMessage{}, apperr.Validation("message text is empty")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return SupportMessage{}, apperr.Wrap(apperr.KindInternal, "failed to encode message", err)
	}

	err = s.bus.PublishSync(ctx, events.SupportMessagePosted{
		BaseEvent: events.NewBaseEvent(),
		TicketID:  ticketID,
		SenderID:  actor.UserID,
		Role:      actor.Role,
		Message:   raw,
	})
	return msg, err
}

// Broadcast sends to a room now, or queues it when SendAt is in the future.
func (s *Service) Broadcast(ctx context.Context, in BroadcastInput) (BroadcastResult, error) {
	if !realtime.IsRoomKey(in.Room) {
		return BroadcastResult{}, apperr.Validation("room must be one of user:<id>, order:<id>, delivery:<id>, support:<id>")
	}
	if strings.TrimSpace(in.Event) == "" {
		return BroadcastResult{}, apperr.Validation("event is required")
	}

	if in.SendAt != nil && in.SendAt.After(s.now()) {
		if s.sched == nil {
			return BroadcastResult{}, apperr.Unavailable("scheduled broadcasts require Redis")
		}
		taskID, err := s.sched.ScheduleBroadcast(ctx, scheduler.BroadcastPayload{
			Room:  in.Room,
			Event: in.Event,
			Data:  in.Data,
		}, *in.SendAt)
		if err != nil {
			return BroadcastResult{}, apperr.Wrap(apperr.KindInternal, "failed to schedule broadcast", err)
		}
		s.log.Info("broadcast scheduled", "room", in.Room, "event", in.Event, "task_id", taskID, "send_at", in.SendAt)
		return BroadcastResult{Scheduled: true, TaskID: taskID, SendAt: in.SendAt}, nil
	}

	s.out.Broadcast(in.Room, in.Event, in.Data)
	return BroadcastResult{}, nil
}

func (s *Service) Stats() realtime.Stats {
	if s.stats == nil {
		return realtime.Stats{}
	}
	return s.stats.Stats()
}
