package handler

import (
	"strings"

	"marketplace_backend/internal/auth/repository"
	"marketplace_backend/internal/auth/service"
	"marketplace_backend/internal/auth/transport"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/httpkit"
	"marketplace_backend/platform/phone"
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

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)
	rg.POST("/refresh-token", h.Refresh)
}

func (h *Handler) Register(c *gin.Context) {
	var req transport.RegisterRequest
	if !h.bind(c, &req) {
		return
	}

	in := service.RegisterInput{
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Password: req.Password,
	}
	if req.Phone != nil && strings.TrimSpace(*req.Phone) != "" {
		normalized := phone.NormalizeE164(*req.Phone)
		in.Phone = &normalized
	}

	session, err := h.svc.Register(c.Request.Context(), in)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, toAuthResponse(session))
}

func (h *Handler) Login(c *gin.Context) {
	var req transport.LoginRequest
	if !h.bind(c, &req) {
		return
	}

	session, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toAuthResponse(session))
}

func (h *Handler) Refresh(c *gin.Context) {
	var req transport.RefreshRequest
	if !h.bind(c, &req) {
		return
	}

	session, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toAuthResponse(session))
}

// GetProfile returns the authenticated user.
func (h *Handler) GetProfile(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	user, err := h.svc.Profile(c.Request.Context(), id.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toUserResponse(user))
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

func toUserResponse(u repository.User) transport.UserResponse {
	return transport.UserResponse{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

func toAuthResponse(s service.Session) transport.AuthResponse {
	return transport.AuthResponse{
		User:         toUserResponse(s.User),
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
}
