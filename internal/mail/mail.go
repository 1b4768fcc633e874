// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package mail delivers transactional email for the auth service.
package mail

import (
	"context"
	"crypto/tls"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"

	"github.com/trailhead/trailhead/internal/auth"
)

// Config holds SMTP settings. An empty Host selects the log-only sender.
type Config struct {
	Host     string `koanf:"host" json:"host,omitempty"`
	Port     int    `koanf:"port" json:"port,omitempty" jsonschema:"minimum=1,maximum=65535"`
	Username string `koanf:"username" json:"username,omitempty"`
	Password string `koanf:"password" json:"password,omitempty"`
	From     string `koanf:"from" json:"from,omitempty"`
	// InsecureSkipVerify disables STARTTLS certificate checks, for local
	// relays such as MailHog.
	InsecureSkipVerify bool `koanf:"insecure_skip_verify" json:"insecure_skip_verify,omitempty"`
}

// DefaultConfig returns the default SMTP settings.
func DefaultConfig() Config {
	return Config{Port: 587, From: "Trailhead <no-reply@trailhead.local>"}
}

// Validate checks that a configured SMTP relay is usable.
func (c Config) Validate() error {
	if c.Host == "" {
		return nil
	}
	if c.Port <= 0 || c.Port > 65535 {
		return oops.Code("CONFIG_INVALID").With("field", "mail.port").Errorf("smtp port must be between 1 and 65535")
	}
	if strings.TrimSpace(c.From) == "" {
		return oops.Code("CONFIG_INVALID").With("field", "mail.from").Errorf("sender address is required")
	}
	return nil
}

// dialer is the gomail.Dialer surface used by SMTPSender.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends plain-text email through an SMTP relay.
type SMTPSender struct {
	from   string
	dialer dialer
	logger *slog.Logger
}

// NewSMTPSender creates a new SMTPSender.
func NewSMTPSender(cfg Config, logger *slog.Logger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: true} //nolint:gosec // opt-in for local relays
	}
	return &SMTPSender{from: cfg.From, dialer: d, logger: logger}, nil
}

// Send delivers one message. gomail has no cancellation, so ctx is only
// checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("operation", "send email").Wrap(err)
	}
	if strings.TrimSpace(to) == "" {
		return oops.Code("MAIL_SEND_FAILED").Errorf("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "send email").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "email sent", "subject", subject)
	return nil
}

// LogSender writes messages to the log instead of sending them. It is
// selected when no SMTP host is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a new LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message, body included. Development only: a reset body
// carries a live token.
func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.WarnContext(ctx, "email not sent, no smtp relay configured",
		"to", to,
		"subject", subject,
		"body", body,
	)
	return nil
}

// NewSender returns an SMTPSender when cfg names a host and a LogSender otherwise.
func NewSender(cfg Config, logger *slog.Logger) (auth.EmailSender, error) {
	if cfg.Host == "" {
		return NewLogSender(logger), nil
	}
	return NewSMTPSender(cfg, logger)
}

// Compile-time interface checks.
var (
	_ auth.EmailSender = (*SMTPSender)(nil)
	_ auth.EmailSender = (*LogSender)(nil)
)
