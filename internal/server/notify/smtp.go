package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/dmitrijs2005/otpauth/internal/common"
	"github.com/dmitrijs2005/otpauth/internal/logging"
)

const DefaultSubject = "Your verification code"

var bodyTemplate = template.Must(template.New("otp").Parse(`<h1>Your OTP Code</h1>
<p>Use the following OTP to complete your action:</p>
<h2>{{.Code}}</h2>
<p>This OTP is valid for {{.Minutes}} minutes.</p>
`))

// sendMail is a seam for tests.
var sendMail = smtp.SendMail

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

var _ Notifier = (*SMTPNotifier)(nil)

type SMTPNotifier struct {
	cfg    SMTPConfig
	logger logging.Logger
}

func NewSMTPNotifier(cfg SMTPConfig, l logging.Logger) *SMTPNotifier {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{cfg: cfg, logger: l.With("module", "notify")}
}

func (n *SMTPNotifier) SendOTP(ctx context.Context, email, code string, validity time.Duration) error {
	msg, err := n.message(email, code, validity)
	if err != nil {
		return fmt.Errorf("render otp mail: %w", err)
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := sendMail(addr, auth, n.cfg.From, []string{email}, msg); err != nil {
		n.logger.Error(ctx, "failed to send otp email", "email", email, "error", err)
		return fmt.Errorf("%w: send otp mail: %v", common.ErrDependency, err)
	}

	n.logger.Info(ctx, "otp email sent", "email", email)
	return nil
}

func (n *SMTPNotifier) message(to, code string, validity time.Duration) ([]byte, error) {
	var body bytes.Buffer
	err := bodyTemplate.Execute(&body, struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: int(validity.Round(time.Minute) / time.Minute)})
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", n.cfg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.Write(body.Bytes())
	return b.Bytes(), nil
}
