// Package auth provides JWT-based authentication for atelier-engine.
// Tokens are issued by the workbench identity service and validated
// against its JWKS endpoints.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims represents the JWT claims structure issued by the identity
// service. It embeds RegisteredClaims for standard JWT fields and adds
// the project scope.
type Claims struct {
	jwt.RegisteredClaims
	ProjectID string   `json:"pid,omitempty"`   // Project UUID
	Email     string   `json:"email,omitempty"` // User email address
	Roles     []string `json:"roles,omitempty"` // User roles within the project
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
// Returns empty string and false if token is not present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// GetProjectIDFromContext extracts the project ID from JWT claims in the
// context. Returns uuid.Nil if not authenticated or claims are missing.
func GetProjectIDFromContext(ctx context.Context) uuid.UUID {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil || claims.ProjectID == "" {
		return uuid.Nil
	}
	projectID, err := uuid.Parse(claims.ProjectID)
	if err != nil {
		return uuid.Nil
	}
	return projectID
}
