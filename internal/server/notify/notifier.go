// Package notify delivers one-time codes to account owners.
package notify

import (
	"context"
	"time"
)

// Notifier delivers code to email. validity is how long the code stays
// usable and is only used for the message text.
type Notifier interface {
	SendOTP(ctx context.Context, email, code string, validity time.Duration) error
}
