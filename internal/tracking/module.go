// Package tracking mounts the HTTP endpoints that feed realtime rooms: order
// status changes, courier location reports, support messages and admin
// broadcasts.
package tracking

import (
	"marketplace_backend/internal/auth"
	"marketplace_backend/internal/events"
	apphttp "marketplace_backend/internal/http"
	"marketplace_backend/internal/realtime"
	"marketplace_backend/internal/scheduler"
	"marketplace_backend/internal/tracking/handler"
	"marketplace_backend/internal/tracking/service"
	"marketplace_backend/platform/httpkit"
	"marketplace_backend/platform/logger"
	"marketplace_backend/platform/validator"
)

// Module is the tracking module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule wires the tracking service. sched may be nil when Redis is off.
func NewModule(bus events.Bus, out realtime.Broadcaster, sched scheduler.BroadcastScheduler, stats service.StatsProvider, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(bus, out, sched, stats, log)
	return &Module{handler: handler.New(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "tracking" }

// RegisterRoutes mounts the tracking routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.PATCH("/orders/:id/status", httpkit.RequireRole(auth.RoleVendor, auth.RoleAdmin), m.handler.UpdateOrderStatus)
	ctx.Protected.POST("/delivery/:id/location", httpkit.RequireRole(auth.RoleDelivery, auth.RoleAdmin), m.handler.ReportLocation)
	ctx.Protected.POST("/support/tickets/:id/messages", m.handler.PostSupportMessage)

	ctx.Admin.POST("/broadcasts", m.handler.Broadcast)
	ctx.Admin.GET("/realtime/stats", m.handler.Stats)
}

var _ apphttp.Module = (*Module)(nil)
