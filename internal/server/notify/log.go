package notify

import (
	"context"
	"time"

	"github.com/dmitrijs2005/otpauth/internal/logging"
)

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes codes to the log instead of sending mail. Intended for
// local development only.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(l logging.Logger) *LogNotifier {
	return &LogNotifier{logger: l.With("module", "notify")}
}

func (n *LogNotifier) SendOTP(ctx context.Context, email, code string, validity time.Duration) error {
	n.logger.Info(ctx, "otp issued", "email", email, "code", code, "validity", validity.String())
	return nil
}
