// Package email delivers transactional mail over SMTP and renders the
// product's message templates. The zero-dependency stdlib client is enough
// here: the API sends low-volume notification mail, not campaigns.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

var (
	// ErrNotConfigured means the SMTP settings are incomplete.
	ErrNotConfigured = errors.New("email: SMTP not configured")
	// ErrInvalidRecipient means the message has no usable recipient.
	ErrInvalidRecipient = errors.New("email: invalid recipient email")
	// ErrSendFailed wraps any transport failure while sending.
	ErrSendFailed = errors.New("email: failed to send email")
)

// Config holds the SMTP connection settings.
type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	FromName   string
	TLS        bool
	SkipVerify bool
	Timeout    time.Duration
}

// Message is one outbound mail.
type Message struct {
	To      []string
	Subject string
	Body    string
	IsHTML  bool
	ReplyTo string
	Headers map[string]string
}

// Sender is the delivery abstraction the services depend on. Production
// wiring uses SMTPSender; development runs use NoOpSender.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
	SendTemplate(ctx context.Context, to string, template Template, data any) error
	IsConfigured() bool
}

// SMTPSender delivers mail through a single SMTP endpoint.
type SMTPSender struct {
	config    Config
	templates *TemplateEngine
}

// NewSMTPSender builds a sender for the given settings. A zero timeout
// defaults to 30 seconds.
func NewSMTPSender(cfg Config) *SMTPSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPSender{config: cfg, templates: NewTemplateEngine()}
}

// IsConfigured reports whether the settings are complete enough to dial.
func (s *SMTPSender) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port > 0 && s.config.From != ""
}

// Send delivers one message.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return ErrInvalidRecipient
	}
	if err := s.deliver(ctx, msg.To, s.encode(msg)); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// SendTemplate renders one of the built-in templates and sends the result
// as HTML mail.
func (s *SMTPSender) SendTemplate(ctx context.Context, to string, template Template, data any) error {
	if to == "" {
		return ErrInvalidRecipient
	}

	subject, body, err := s.templates.Render(template, data)
	if err != nil {
		return fmt.Errorf("email: failed to render template: %w", err)
	}

	return s.Send(ctx, &Message{
		To:      []string{to},
		Subject: subject,
		Body:    body,
		IsHTML:  true,
	})
}

// encode serializes the message headers and body per RFC 5322.
func (s *SMTPSender) encode(msg *Message) []byte {
	var b strings.Builder
	header := func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	header("From", from)
	header("To", strings.Join(msg.To, ", "))
	header("Subject", msg.Subject)
	header("Date", time.Now().Format(time.RFC1123Z))
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	for name, value := range msg.Headers {
		header(name, value)
	}
	header("MIME-Version", "1.0")
	contentType := "text/plain; charset=UTF-8"
	if msg.IsHTML {
		contentType = "text/html; charset=UTF-8"
	}
	header("Content-Type", contentType)

	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}

// dial opens the transport connection. Port 465 means implicit TLS; any
// other port starts in plaintext and may upgrade later via STARTTLS.
func (s *SMTPSender) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	netDialer := &net.Dialer{Timeout: s.config.Timeout}

	if s.config.Port != 465 {
		return netDialer.DialContext(ctx, "tcp", addr)
	}
	tlsDialer := &tls.Dialer{
		NetDialer: netDialer,
		Config: &tls.Config{
			ServerName:         s.config.Host,
			InsecureSkipVerify: s.config.SkipVerify,
		},
	}
	return tlsDialer.DialContext(ctx, "tcp", addr)
}

// deliver runs the SMTP exchange for one encoded message.
func (s *SMTPSender) deliver(ctx context.Context, to []string, content []byte) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if s.config.TLS && s.config.Port != 465 {
		err := client.StartTLS(&tls.Config{
			ServerName:         s.config.Host,
			InsecureSkipVerify: s.config.SkipVerify,
		})
		if err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.config.User != "" && s.config.Password != "" {
		auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish body: %w", err)
	}

	return client.Quit()
}

// NoOpSender discards all mail. It keeps local development working when
// no SMTP endpoint is configured.
type NoOpSender struct{}

// NewNoOpSender returns a sender that accepts and drops everything.
func NewNoOpSender() *NoOpSender { return &NoOpSender{} }

func (s *NoOpSender) IsConfigured() bool { return true }

func (s *NoOpSender) Send(_ context.Context, _ *Message) error { return nil }

func (s *NoOpSender) SendTemplate(_ context.Context, _ string, _ Template, _ any) error {
	return nil
}

// Logger is the slice of the application logger this package needs.
type Logger interface {
	Info(msg string, args ...any)
}

// LoggingSender decorates another Sender with transport-level logging, so
// delivery problems show up even when the calling service swallows them.
type LoggingSender struct {
	sender Sender
	logger Logger
}

// NewLoggingSender wraps sender with logging.
func NewLoggingSender(sender Sender, logger Logger) *LoggingSender {
	return &LoggingSender{sender: sender, logger: logger}
}

func (s *LoggingSender) IsConfigured() bool {
	return s.sender.IsConfigured()
}

func (s *LoggingSender) Send(ctx context.Context, msg *Message) error {
	s.logger.Info("sending email",
		"to", msg.To,
		"subject", msg.Subject,
	)
	err := s.sender.Send(ctx, msg)
	if err != nil {
		s.logger.Info("email send failed",
			"to", msg.To,
			"error", err,
		)
	}
	return err
}

func (s *LoggingSender) SendTemplate(ctx context.Context, to string, template Template, data any) error {
	s.logger.Info("sending templated email",
		"to", to,
		"template", template,
	)
	err := s.sender.SendTemplate(ctx, to, template, data)
	if err != nil {
		s.logger.Info("templated email send failed",
			"to", to,
			"template", template,
			"error", err,
		)
	}
	return err
}
