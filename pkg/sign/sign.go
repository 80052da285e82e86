// Package sign verifies the authenticity of provider webhook deliveries.
// The signature header has the form "t=<unix-seconds>,v1=<hex-hmac>" where
// the HMAC-SHA256 is computed over "{timestamp}.{rawBody}" with a shared
// secret.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const DefaultTolerance = 300 * time.Second

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrStaleEvent       = errors.New("event timestamp outside tolerance window")
)

type Verifier struct {
	secret    []byte
	tolerance time.Duration

	// trusted bypasses verification entirely. Only reachable through the
	// TRUSTED_TEST_MODE config flag, which defaults to off.
	trusted bool
}

func NewVerifier(secret string, tolerance time.Duration, trusted bool) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		trusted:   trusted,
	}
}

// Verify checks the header signature against payload. Freshness is checked
// first so a stale replay is rejected before any HMAC work.
func (v *Verifier) Verify(payload []byte, header string, now time.Time) error {
	if v.trusted {
		return nil
	}

	ts, sigs, err := parseHeader(header)
	if err != nil {
		return err
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return ErrStaleEvent
	}

	expected := computeMAC(v.secret, ts, payload)
	for _, sig := range sigs {
		// Decode before comparing so hex casing does not matter.
		raw, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(raw, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Compute returns the hex HMAC-SHA256 of "{timestamp}.{payload}".
func Compute(secret []byte, timestamp int64, payload []byte) string {
	return hex.EncodeToString(computeMAC(secret, timestamp, payload))
}

func computeMAC(secret []byte, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Header renders a valid signature header for payload, used by tests and by
// local tooling that replays events.
func Header(secret []byte, timestamp int64, payload []byte) string {
	return "t=" + strconv.FormatInt(timestamp, 10) + ",v1=" + Compute(secret, timestamp, payload)
}

func parseHeader(header string) (int64, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, ErrMissingSignature
	}

	var ts int64 = -1
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrInvalidSignature
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, value)
		}
	}

	if ts < 0 {
		return 0, nil, ErrInvalidSignature
	}
	if len(sigs) == 0 {
		return 0, nil, ErrMissingSignature
	}
	return ts, sigs, nil
}
