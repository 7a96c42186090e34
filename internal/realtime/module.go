package realtime

import (
	"context"
	"time"

	"marketplace_backend/internal/events"
	apphttp "marketplace_backend/internal/http"
	"marketplace_backend/platform/httpkit"
	"marketplace_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// StatusChange is the status_changed payload sent to an order room.
type StatusChange struct {
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Location is the location_updated payload produced by HTTP location reports.
type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   *float64  `json:"heading,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Module mounts the socket endpoint and bridges domain events into rooms.
type Module struct {
	hub     *Hub
	out     Broadcaster
	metrics *Metrics
	socket  SocketConfig
	log     *logger.Logger
}

// NewModule creates the realtime module. out is where domain events are sent;
// pass the Relay when one is running so every instance sees them, or nil to
// use the hub directly.
func NewModule(hub *Hub, out Broadcaster, metrics *Metrics, socket SocketConfig, log *logger.Logger) *Module {
	if out == nil {
		out = hub
	}
	return &Module{hub: hub, out: out, metrics: metrics, socket: socket, log: log}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "realtime" }

// RegisterRoutes mounts GET /socket and, when metrics are enabled, GET /metrics.
// Both live on the engine root, outside the API rate limiter.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Engine.GET("/socket", httpkit.OptionalAuth(ctx.Config), Handler(m.hub, m.socket, m.log))
	if m.metrics != nil {
		ctx.Engine.GET("/metrics", gin.WrapH(m.metrics.Handler()))
	}
}

// Broadcaster returns the broadcaster HTTP producers should use.
func (m *Module) Broadcaster() Broadcaster { return m.out }

// Stats reports live connection and room counts.
func (m *Module) Stats() Stats { return m.hub.Stats() }

// RegisterHandlers subscribes the module to domain events that fan out to rooms.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.OrderStatusChanged{}.EventName(), events.HandlerFunc(m.onOrderStatusChanged))
	bus.Subscribe(events.DeliveryLocationUpdated{}.EventName(), events.HandlerFunc(m.onDeliveryLocationUpdated))
	bus.Subscribe(events.SupportMessagePosted{}.EventName(), events.HandlerFunc(m.onSupportMessagePosted))
}

func (m *Module) onOrderStatusChanged(_ context.Context, event events.Event) error {
	e, ok := event.(events.OrderStatusChanged)
	if !ok {
		return nil
	}
	m.out.Broadcast(OrderRoom(e.OrderID), EventStatusChanged, StatusChange{
		OrderID:   e.OrderID,
		Status:    e.Status,
		Note:      e.Note,
		UpdatedAt: e.OccurredAt(),
	})
	return nil
}

func (m *Module) onDeliveryLocationUpdated(_ context.Context, event events.Event) error {
	e, ok := event.(events.DeliveryLocationUpdated)
	if !ok {
		return nil
	}
	m.out.Broadcast(DeliveryRoom(e.DeliveryID), EventLocationUpdated, Location{
		Lat:       e.Latitude,
		Lng:       e.Longitude,
		Heading:   e.Heading,
		UpdatedAt: e.OccurredAt(),
	})
	return nil
}

func (m *Module) onSupportMessagePosted(_ context.Context, event events.Event) error {
	e, ok := event.(events.SupportMessagePosted)
	if !ok {
		return nil
	}
	m.out.Broadcast(SupportRoom(e.TicketID), EventNewMessage, e.Message)
	return nil
}

var _ apphttp.Module = (*Module)(nil)
