package models

import "time"

// Account is a registered identity. It stays Verified=false until the
// emailed OTP has been confirmed.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public projection of an Account.
type Profile struct {
	Username string `json:"username"`
}
