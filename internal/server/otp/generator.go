// Package otp issues and stores the one-time passcodes that prove control of
// an email address.
//
// Codes are derived with the standard time-based construction (RFC 6238):
// HMAC-SHA1 over the big-endian window counter, dynamically truncated to a
// fixed number of decimal digits. Within one window the same secret yields
// the same code; single use and expiry are enforced by a Store.
package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultDigits is the code length used when none is configured.
const DefaultDigits = 6

var (
	ErrEmptySecret   = errors.New("otp secret must not be empty")
	ErrInvalidWindow = errors.New("otp window must be positive")
)

// Generator derives codes from a shared secret and the current time bucket.
type Generator struct {
	secret []byte
	window time.Duration
	digits int
	now    func() time.Time
}

// NewGenerator returns a Generator for secret and window. digits <= 0 means
// DefaultDigits.
func NewGenerator(secret []byte, window time.Duration, digits int) (*Generator, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if window < time.Second {
		return nil, ErrInvalidWindow
	}
	if digits <= 0 {
		digits = DefaultDigits
	}
	return &Generator{secret: secret, window: window, digits: digits, now: time.Now}, nil
}

// WithClock replaces the time source. Used by tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Code returns the code for the current window.
func (g *Generator) Code() (string, error) {
	return Generate(g.secret, g.window, g.digits, g.now())
}

// Generate computes the code for the window containing now.
func Generate(secret []byte, window time.Duration, digits int, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	step := int64(window / time.Second)
	if step <= 0 {
		return "", ErrInvalidWindow
	}
	return hotp(secret, uint64(now.Unix()/step), digits), nil
}

func hotp(secret []byte, counter uint64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod)
}

// DecodeSecret decodes a base32 shared secret. Padding, spaces and letter
// case are ignored.
func DecodeSecret(s string) ([]byte, error) {
	cleaned := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	cleaned = strings.TrimRight(cleaned, "=")
	if cleaned == "" {
		return nil, ErrEmptySecret
	}

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid base32 otp secret: %w", err)
	}
	return secret, nil
}
