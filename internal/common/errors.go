// Package common defines shared constants and sentinel errors used across
// the service layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound       = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrPasswordMismatch = errors.New("password does not match")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")
	ErrDependency = errors.New("dependency failure")

	// Validation errors (caller input, no state change).
	ErrValidation = errors.New("validation error")

	// Authentication errors. Callers see the same response for all of them.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	// OTP lifecycle errors.
	ErrInvalidOTP = errors.New("invalid otp")
	ErrOTPExpired = errors.New("otp expired or not found")
)
