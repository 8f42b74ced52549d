package email

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(config Config) *SMTPSender {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &SMTPSender{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *SMTPSender) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *SMTPSender) Name() string {
	return "smtp"
}

// Send writes a multipart message. SMTP has no provider message id, so the
// returned id is always empty.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if !s.IsConfigured() {
		return "", ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return "", Permanent(fmt.Errorf("no recipients"))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", s.send(s.server, s.auth, s.config.From, msg.To, s.build(msg))
}

func (s *SMTPSender) build(msg Message) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	text := msg.Text
	if text == "" {
		text = "Please view this email in an HTML-capable email client."
	}

	boundary := "boundary-nel"

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	if msg.IdempotencyKey != "" {
		fmt.Fprintf(&buf, "X-Entity-Ref-ID: %s\r\n", msg.IdempotencyKey)
	}
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&buf, "\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&buf, "\r\n")
	fmt.Fprintf(&buf, "%s\r\n", text)
	fmt.Fprintf(&buf, "\r\n")

	if msg.HTML != "" {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: text/html; charset=UTF-8\r\n")
		fmt.Fprintf(&buf, "\r\n")
		fmt.Fprintf(&buf, "%s\r\n", msg.HTML)
		fmt.Fprintf(&buf, "\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}
