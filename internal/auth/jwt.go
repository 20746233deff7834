// Package auth consumes the product's bearer tokens. User authentication
// itself lives in a separate service; this package only validates tokens and
// extracts the stable user identifier they carry.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT token claims.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret []byte
	TTL    time.Duration
}

// NewJWTConfig creates a new JWT configuration.
func NewJWTConfig(secret string, ttl time.Duration) *JWTConfig {
	return &JWTConfig{
		Secret: []byte(secret),
		TTL:    ttl,
	}
}

// DefaultJWTConfig returns a default JWT configuration (24 hour TTL).
func DefaultJWTConfig(secret string) *JWTConfig {
	return NewJWTConfig(secret, 24*time.Hour)
}

// GenerateToken generates a new JWT token for the given user ID.
func (c *JWTConfig) GenerateToken(userID string) (string, time.Time, error) {
	now := time.Now()
	expirationTime := now.Add(c.TTL)

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(c.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expirationTime, nil
}

// ValidateToken validates and parses a JWT token, returning the claims.
func (c *JWTConfig) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token missing user_id claim")
	}

	return claims, nil
}

// ExtractTokenFromHeader extracts a Bearer token from an Authorization header.
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("invalid authorization header format")
	}

	return parts[1], nil
}

// contextKey is the private type for context values set by this package.
type contextKey string

const (
	userIDKey contextKey = "user_id"
	claimsKey contextKey = "jwt_claims"
)

// WithUser returns a context carrying the authenticated user's identity.
func WithUser(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, claims.UserID)
	return context.WithValue(ctx, claimsKey, claims)
}

// UserIDFromContext extracts the authenticated user ID from a context.
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
