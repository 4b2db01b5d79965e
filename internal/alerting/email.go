package alerting

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// EmailOptions parameterise the SMTP channel. The recipient comes from the
// user preference record, not from here.
type EmailOptions struct {
	Host         string
	Port         int
	Username     string
	Password     string
	From         string
	DashboardURL string
}

// EmailNotifier delivers notifications over SMTP.
type EmailNotifier struct {
	opts   EmailOptions
	logger zerolog.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier constructs an SMTP notifier.
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Port <= 0 {
		opts.Port = 587
	}
	return &EmailNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "alert_email").Logger(),
		send:   smtp.SendMail,
	}
}

// Notify sends one HTML message describing the new state.
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	if n.opts.Host == "" || n.opts.From == "" {
		return &DeliveryError{Channel: "email", Err: ErrNotConfigured}
	}
	if note.Recipient == "" {
		return &DeliveryError{Channel: "email", Err: fmt.Errorf("no recipient address")}
	}
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Channel: "email", Err: err}
	}

	subject := fmt.Sprintf("%s: %s - %s",
		strings.ToUpper(string(note.NewState)),
		note.MinRange.StringFixed(6),
		note.MaxRange.StringFixed(6))

	body := strings.Builder{}
	body.WriteString(fmt.Sprintf("<p>Current ratio: %s</p>\n", note.Ratio.StringFixed(6)))
	if n.opts.DashboardURL != "" {
		body.WriteString(fmt.Sprintf("<p>%s</p>\n", n.opts.DashboardURL))
	}

	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", n.opts.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", note.Recipient))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body.String())

	addr := fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port)
	var auth smtp.Auth
	if n.opts.Username != "" {
		auth = smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
	}

	if err := n.send(addr, auth, n.opts.From, []string{note.Recipient}, []byte(msg.String())); err != nil {
		return &DeliveryError{Channel: "email", Err: err}
	}

	n.logger.Info().Time("at", note.At).
		Str("state", string(note.NewState)).
		Str("to", note.Recipient).
		Msg("notification email sent")
	return nil
}

var _ Notifier = (*EmailNotifier)(nil)
