// Package common contains shared constants and sentinel errors used across
// otpauth components.
package common

// SessionCookieName is the cookie that carries the signed session token.
const SessionCookieName = "access-token"

// RequestIDHeaderName is the response header echoing the per-request id.
const RequestIDHeaderName = "X-Request-Id"
