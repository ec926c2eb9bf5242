// Package auth validates bearer tokens and carries the authenticated user
// context through the request pipeline. Identity records themselves live in
// the persistence layer; this package only trusts and decodes claims.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role values recognized by the gate.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleMember     = "member"
)

// ErrInvalidToken indicates a missing, malformed, or expired token.
var ErrInvalidToken = errors.New("invalid token")

// UserContext is the authenticated caller identity attached to a request.
// All fields except UserID may be empty (e.g. API-key-only callers).
type UserContext struct {
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId,omitempty"`
	Role     string `json:"role,omitempty"`
	APIKeyID string `json:"apiKeyId,omitempty"`
}

// IsSuperAdmin reports whether the caller holds the platform-operator role.
func (u *UserContext) IsSuperAdmin() bool {
	return u != nil && u.Role == RoleSuperAdmin
}

// TokenClaims are the JWT claims issued for back-office sessions.
type TokenClaims struct {
	jwt.RegisteredClaims

	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role,omitempty"`
	APIKeyID string `json:"api_key_id,omitempty"`
}

// Config holds token service configuration.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

// Service signs and validates session tokens.
type Service struct {
	config Config
}

// NewService creates a token service.
func NewService(config Config) *Service {
	return &Service{config: config}
}

// GenerateToken issues an HS256 token for the given identity.
func (s *Service) GenerateToken(user UserContext) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID:   user.UserID,
		TenantID: user.TenantID,
		Role:     user.Role,
		APIKeyID: user.APIKeyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   user.UserID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and verifies a token string.
func (s *Service) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// UserFromRequest extracts the caller identity from a bearer token, or nil
// for anonymous requests. A present-but-invalid token is an error.
func (s *Service) UserFromRequest(r *http.Request) (*UserContext, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, ErrInvalidToken
	}

	claims, err := s.ValidateToken(parts[1])
	if err != nil {
		return nil, err
	}

	return &UserContext{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Role:     claims.Role,
		APIKeyID: claims.APIKeyID,
	}, nil
}

type contextKey string

const userContextKey contextKey = "user"

// WithUser attaches the caller identity to a context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFrom retrieves the caller identity, or nil if anonymous.
func UserFrom(ctx context.Context) *UserContext {
	user, _ := ctx.Value(userContextKey).(*UserContext)
	return user
}
