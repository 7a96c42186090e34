// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"encoding/json"

	"marketplace_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Auth Domain Events
// =============================================================================

// UserRegistered is published when a new account is created.
type UserRegistered struct {
	BaseEvent
	UserID uuid.UUID `json:"userId"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
}

func (e UserRegistered) EventName() string { return "auth.user.registered" }

// =============================================================================
// Order Tracking Events
// =============================================================================

// OrderStatusChanged is published when a vendor or admin moves an order to a new status.
type OrderStatusChanged struct {
	BaseEvent
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	ChangedBy uuid.UUID `json:"changedBy"`
}

func (e OrderStatusChanged) EventName() string { return "orders.status.changed" }

// DeliveryLocationUpdated is published when a courier reports a position over HTTP.
type DeliveryLocationUpdated struct {
	BaseEvent
	DeliveryID string    `json:"deliveryId"`
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lng"`
	Heading    *float64  `json:"heading,omitempty"`
	ReportedBy uuid.UUID `json:"reportedBy"`
}

func (e DeliveryLocationUpdated) EventName() string { return "delivery.location.updated" }

// =============================================================================
// Support Events
// =============================================================================

// SupportMessagePosted is published when a message is added to a support ticket.
type SupportMessagePosted struct {
	BaseEvent
	TicketID string          `json:"ticketId"`
	SenderID uuid.UUID       `json:"senderId"`
	Role     string          `json:"role"`
	Message  json.RawMessage `json:"message"`
}

func (e SupportMessagePosted) EventName() string { return "support.message.posted" }
