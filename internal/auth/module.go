// Package auth provides the authentication bounded context module.
// This file defines the module that encapsulates all auth setup and route registration.
package auth

import (
	"marketplace_backend/internal/auth/handler"
	"marketplace_backend/internal/auth/repository"
	"marketplace_backend/internal/auth/service"
	"marketplace_backend/internal/auth/token"
	"marketplace_backend/internal/events"
	apphttp "marketplace_backend/internal/http"
	"marketplace_backend/platform/config"
	"marketplace_backend/platform/logger"
	"marketplace_backend/platform/validator"
)

// Module is the auth bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.AuthRepository
}

// NewModule creates and initializes the auth module with all its dependencies.
func NewModule(repo repository.AuthRepository, cfg config.AuthServiceConfig, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repo, token.NewIssuer(cfg), eventBus, log)

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "auth"
}

// Service returns the auth service.
func (m *Module) Service() *service.Service {
	return m.service
}

// Users returns the checker used by the protect middleware.
func (m *Module) Users() repository.AuthRepository {
	return m.repo
}

// RegisterRoutes mounts auth routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public auth routes with stricter rate limiting
	authGroup := ctx.V1.Group("/auth")
	authGroup.Use(ctx.AuthRateLimiter.RateLimit())
	m.handler.RegisterRoutes(authGroup)

	ctx.Protected.GET("/users/profile", m.handler.GetProfile)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
