package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role is a marketplace role carried in the access token
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleBroker Role = "broker"
	RoleAdmin  Role = "admin"
)

// AuthMethod records how the caller authenticated
type AuthMethod string

const (
	AuthMethodJWT    AuthMethod = "jwt"
	AuthMethodAPIKey AuthMethod = "api_key"
)

// UserContext holds authenticated user information
type UserContext struct {
	UserID      uuid.UUID
	DisplayName string
	Email       string
	Roles       []Role
	AuthMethod  AuthMethod
}

type contextKey string

const userContextKey contextKey = "userContext"

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok
}

// HasRole checks if user has a specific role
func (u *UserContext) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks if user has any of the specified roles
func (u *UserContext) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

// CanSeeAllDeals reports whether the user bypasses participant scoping.
// Brokers and admins work every deal; API key callers are system integrations.
func (u *UserContext) CanSeeAllDeals() bool {
	return u.AuthMethod == AuthMethodAPIKey || u.HasAnyRole(RoleBroker, RoleAdmin)
}

// ParticipantFilter returns the user ID deal queries should be scoped to,
// or nil when no scoping applies.
func ParticipantFilter(ctx context.Context) *uuid.UUID {
	user, ok := FromContext(ctx)
	if !ok || user.CanSeeAllDeals() {
		return nil
	}
	id := user.UserID
	return &id
}

// ActorID returns the caller's ID as a string, or "system" without a user
func ActorID(ctx context.Context) string {
	if user, ok := FromContext(ctx); ok && user.UserID != uuid.Nil {
		return user.UserID.String()
	}
	return "system"
}

// ActorName returns the caller's display name, or "System" without a user
func ActorName(ctx context.Context) string {
	if user, ok := FromContext(ctx); ok && user.DisplayName != "" {
		return user.DisplayName
	}
	return "System"
}
