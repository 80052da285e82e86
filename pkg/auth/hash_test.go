package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashService_HashPassword(t *testing.T) {
	service := &HashService{}

	tests := []struct {
		name      string
		password  string
		expectErr bool
	}{
		{
			name:      "Hash valid password",
			password:  "s3cret-password",
			expectErr: false,
		},
		{
			name:      "Empty password rejected",
			password:  "",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := service.HashPassword(tt.password)
			if tt.expectErr {
				assert.Error(t, err)
				assert.Empty(t, hash)
			} else {
				assert.NoError(t, err)
				assert.NotEmpty(t, hash)
				assert.NotEqual(t, tt.password, hash)
			}
		})
	}
}

func TestHashService_ComparePassword(t *testing.T) {
	service := &HashService{}
	hash, err := service.HashPassword("correct-password")
	assert.NoError(t, err)

	assert.True(t, service.ComparePassword(hash, "correct-password"))
	assert.False(t, service.ComparePassword(hash, "wrong-password"))
	assert.False(t, service.ComparePassword("not-a-hash", "correct-password"))
}
