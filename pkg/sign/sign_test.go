package sign

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifier_Verify(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name        string
		header      string
		trusted     bool
		expectedErr error
	}{
		{
			name:        "Valid signature",
			header:      Header([]byte(secret), now.Unix(), payload),
			expectedErr: nil,
		},
		{
			name:        "Valid signature within tolerance",
			header:      Header([]byte(secret), now.Add(-299*time.Second).Unix(), payload),
			expectedErr: nil,
		},
		{
			name:        "Missing header",
			header:      "",
			expectedErr: ErrMissingSignature,
		},
		{
			name:        "Header without v1 part",
			header:      "t=1700000000",
			expectedErr: ErrMissingSignature,
		},
		{
			name:        "Header without timestamp",
			header:      "v1=deadbeef",
			expectedErr: ErrInvalidSignature,
		},
		{
			name:        "Unparsable timestamp",
			header:      "t=notanumber,v1=deadbeef",
			expectedErr: ErrInvalidSignature,
		},
		{
			name:        "Wrong secret",
			header:      Header([]byte("whsec_other"), now.Unix(), payload),
			expectedErr: ErrInvalidSignature,
		},
		{
			name:        "Stale timestamp",
			header:      Header([]byte(secret), now.Add(-301*time.Second).Unix(), payload),
			expectedErr: ErrStaleEvent,
		},
		{
			name:        "Timestamp from the future",
			header:      Header([]byte(secret), now.Add(301*time.Second).Unix(), payload),
			expectedErr: ErrStaleEvent,
		},
		{
			name:        "One valid among multiple v1 signatures",
			header:      "t=1700000000,v1=deadbeef,v1=" + Compute([]byte(secret), now.Unix(), payload),
			expectedErr: nil,
		},
		{
			name:        "Uppercase hex signature",
			header:      "t=1700000000,v1=" + strings.ToUpper(Compute([]byte(secret), now.Unix(), payload)),
			expectedErr: nil,
		},
		{
			name:        "Signature that is not hex",
			header:      "t=1700000000,v1=not-hex-at-all",
			expectedErr: ErrInvalidSignature,
		},
		{
			name:        "Trusted mode skips verification",
			header:      "",
			trusted:     true,
			expectedErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(secret, DefaultTolerance, tt.trusted)
			err := v.Verify(payload, tt.header, now)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifier_Verify_PayloadTamper(t *testing.T) {
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)
	header := Header([]byte(secret), now.Unix(), []byte(`{"amount":100}`))

	v := NewVerifier(secret, DefaultTolerance, false)
	err := v.Verify([]byte(`{"amount":100000}`), header, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestNewVerifier_DefaultTolerance(t *testing.T) {
	v := NewVerifier("secret", 0, false)
	assert.Equal(t, DefaultTolerance, v.tolerance)
}
