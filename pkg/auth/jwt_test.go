package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJWTService_GenerateAndValidate(t *testing.T) {
	service := NewJWTService("jwt-test-secret")

	token, err := service.GenerateJWT(42, time.Now().Add(time.Hour))
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestJWTService_ValidateToken(t *testing.T) {
	service := NewJWTService("jwt-test-secret")

	tests := []struct {
		name      string
		token     func() string
		expectErr bool
	}{
		{
			name: "Valid token",
			token: func() string {
				token, _ := service.GenerateJWT(1, time.Now().Add(time.Hour))
				return token
			},
			expectErr: false,
		},
		{
			name: "Expired token",
			token: func() string {
				token, _ := service.GenerateJWT(1, time.Now().Add(-time.Hour))
				return token
			},
			expectErr: true,
		},
		{
			name: "Token signed with another secret",
			token: func() string {
				other := NewJWTService("another-secret")
				token, _ := other.GenerateJWT(1, time.Now().Add(time.Hour))
				return token
			},
			expectErr: true,
		},
		{
			name: "Token without user id",
			token: func() string {
				token, _ := service.GenerateJWT(0, time.Now().Add(time.Hour))
				return token
			},
			expectErr: true,
		},
		{
			name: "Garbage token",
			token: func() string {
				return "not.a.token"
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateToken(tt.token())
			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, claims)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, claims)
			}
		})
	}
}
