package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/wneessen/go-mail"
)

// Message is a rendered digest ready to be delivered.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a digest message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// TLS modes accepted by SMTPConfig.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
	TLSImplicit      = "ssl"
)

// ErrNoRecipients is returned when a message has nowhere to go.
var ErrNoRecipients = errors.New("no mail recipients configured")

// SMTPConfig holds the settings needed to reach the mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      string
	From     string
	To       []string
	Timeout  time.Duration
}

// SMTPSender delivers messages through an SMTP server as multipart HTML + text.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *log.Logger
}

var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender creates an SMTPSender. The connection is opened per Send.
func NewSMTPSender(cfg SMTPConfig, logger *log.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

// Send dials the server, authenticates when a username is set and delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.buildMessage(msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client for %s: %w", s.cfg.Host, err)
	}
	s.logger.Printf("Sending digest %q to %d recipient(s) via %s:%d...", msg.Subject, len(s.cfg.To), s.cfg.Host, s.cfg.Port)
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send digest via %s: %w", s.cfg.Host, err)
	}
	s.logger.Println("Digest sent.")
	return nil
}

func (s *SMTPSender) buildMessage(msg Message) (*mail.Msg, error) {
	if len(s.cfg.To) == 0 {
		return nil, ErrNoRecipients
	}
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", s.cfg.From, err)
	}
	if err := m.To(s.cfg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	if msg.Text != "" {
		m.AddAlternativeString(mail.TypeTextPlain, msg.Text)
	}
	return m, nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.cfg.Timeout))
	}
	switch s.cfg.TLS {
	case TLSNone:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case TLSOpportunistic:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case TLSImplicit:
		opts = append(opts, mail.WithSSL())
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// WriterSender writes the HTML body to w instead of sending it.
type WriterSender struct {
	w      io.Writer
	logger *log.Logger
}

var _ Sender = (*WriterSender)(nil)

// NewWriterSender creates a WriterSender.
func NewWriterSender(w io.Writer, logger *log.Logger) *WriterSender {
	return &WriterSender{w: w, logger: logger}
}

// Send writes msg.HTML to the underlying writer.
func (s *WriterSender) Send(_ context.Context, msg Message) error {
	s.logger.Printf("Dry run: writing digest %q instead of sending it.", msg.Subject)
	if _, err := io.WriteString(s.w, msg.HTML); err != nil {
		return fmt.Errorf("failed to write digest: %w", err)
	}
	return nil
}
