package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	t.Parallel()

	cfg := NewJWTConfig("test-secret", time.Hour)

	token, expiresAt, err := cfg.GenerateToken("user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := cfg.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	t.Parallel()

	cfg := NewJWTConfig("test-secret", time.Hour)
	other := NewJWTConfig("other-secret", time.Hour)

	token, _, err := cfg.GenerateToken("user-1")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	t.Parallel()

	cfg := NewJWTConfig("test-secret", -time.Minute)

	token, _, err := cfg.GenerateToken("user-1")
	require.NoError(t, err)

	_, err = cfg.ValidateToken(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid bearer", "Bearer abc123", "abc123", false},
		{"case insensitive scheme", "bearer abc123", "abc123", false},
		{"missing header", "", "", true},
		{"wrong scheme", "Basic abc123", "", true},
		{"no token", "Bearer", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTokenFromHeader(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	t.Parallel()

	_, err := UserIDFromContext(context.Background())
	assert.Error(t, err)

	ctx := WithUser(context.Background(), &Claims{UserID: "user-1"})
	userID, err := UserIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}
