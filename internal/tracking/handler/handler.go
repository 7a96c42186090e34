package handler

import (
	"marketplace_backend/internal/tracking/service"
	"marketplace_backend/internal/tracking/transport"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/httpkit"
	"marketplace_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// UpdateOrderStatus handles PATCH /orders/:id/status.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req transport.UpdateOrderStatusRequest
	if !h.bind(c, &req) {
		return
	}

	if httpkit.HandleError(c, h.svc.UpdateOrderStatus(c.Request.Context(), actor, c.Param("id"), req.Status, req.Note)) {
		return
	}
	httpkit.OK(c, gin.H{"orderId": c.Param("id"), "status": req.Status})
}

// ReportLocation handles POST /delivery/:id/location.
func (h *Handler) ReportLocation(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req transport.LocationRequest
	if !h.bind(c, &req) {
		return
	}

	err := h.svc.ReportLocation(c.Request.Context(), actor, c.Param("id"), *req.Lat, *req.Lng, req.Heading)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Accepted(c, "location reported", nil)
}

// PostSupportMessage handles POST /support/tickets/:id/messages.
func (h *Handler) PostSupportMessage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req transport.SupportMessageRequest
	if !h.bind(c, &req) {
		return
	}

	msg, err := h.svc.PostSupportMessage(c.Request.Context(), actor, c.Param("id"), req.Text)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, msg)
}

// Broadcast handles POST /admin/broadcasts.
func (h *Handler) Broadcast(c *gin.Context) {
	var req transport.BroadcastRequest
	if !h.bind(c, &req) {
		return
	}

	res, err := h.svc.Broadcast(c.Request.Context(), service.BroadcastInput{
		Room:   req.Room,
		Event:  req.Event,
		Data:   req.Data,
		SendAt: req.SendAt,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.BroadcastResponse{
		Room:      req.Room,
		Event:     req.Event,
		Scheduled: res.Scheduled,
		TaskID:    res.TaskID,
		SendAt:    res.SendAt,
	}
	if res.Scheduled {
		httpkit.Accepted(c, "broadcast scheduled", resp)
		return
	}
	httpkit.OK(c, resp)
}

// Stats handles GET /admin/realtime/stats.
func (h *Handler) Stats(c *gin.Context) {
	stats := h.svc.Stats()
	httpkit.OK(c, transport.StatsResponse{Connections: stats.Connections, Rooms: stats.Rooms})
}

func actorFrom(c *gin.Context) (service.Actor, bool) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return service.Actor{}, false
	}
	return service.Actor{UserID: id.UserID(), Role: id.Role()}, true
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed).WithDetails(validator.Fields(err)))
		return false
	}
	return true
}
