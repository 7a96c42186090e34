// Package auth provides authentication and authorization functionality.
// This file defines the public API of the auth bounded context.
// Only types and constants defined here should be imported by other domains.
package auth

import "marketplace_backend/internal/auth/repository"

// Roles carried in access tokens and checked by httpkit.RequireRole.
const (
	RoleCustomer = repository.RoleCustomer
	RoleVendor   = repository.RoleVendor
	RoleDelivery = repository.RoleDelivery
	RoleAdmin    = repository.RoleAdmin
)
