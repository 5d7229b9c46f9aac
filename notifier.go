package signup

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// BuildVerificationLink joins the configured public base URL with the verify
// path segment consumed by the HTTP controller.
func BuildVerificationLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/verify/" + token
}

// SMTPConfig holds the connection settings for SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPNotifier delivers verification links over plain SMTP with AUTH PLAIN.
type SMTPNotifier struct {
	config  SMTPConfig
	subject string
	logger  Logger
	// sendMail is swapped out in tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type SMTPNotifierOption func(*SMTPNotifier)

// WithSMTPSubject overrides the default email subject line.
func WithSMTPSubject(subject string) SMTPNotifierOption {
	return func(n *SMTPNotifier) {
		if subject != "" {
			n.subject = subject
		}
	}
}

// WithSMTPLogger overrides the logger.
func WithSMTPLogger(logger Logger) SMTPNotifierOption {
	return func(n *SMTPNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func NewSMTPNotifier(config SMTPConfig, opts ...SMTPNotifierOption) *SMTPNotifier {
	n := &SMTPNotifier{
		config:   config,
		subject:  "Verify your email address",
		logger:   defLogger{},
		sendMail: smtp.SendMail,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}

	return n
}

// Send delivers the verification link to the recipient. Failures come back
// wrapped as ErrDeliveryFailed so callers can report them without aborting
// the surrounding workflow.
func (n *SMTPNotifier) Send(ctx context.Context, recipient, link string) error {
	if err := ctx.Err(); err != nil {
		return ErrDeliveryFailed.WithMetadata(map[string]any{
			"recipient": recipient,
			"reason":    err.Error(),
		})
	}

	if n.config.Host == "" {
		return ErrDeliveryFailed.WithMetadata(map[string]any{
			"recipient": recipient,
			"reason":    "smtp not configured",
		})
	}

	fromAddr := n.config.From
	if fromAddr == "" {
		fromAddr = n.config.Username
	}

	fromHeader := fromAddr
	if n.config.FromName != "" {
		fromHeader = fmt.Sprintf("%s <%s>", n.config.FromName, fromAddr)
	}

	msg := n.buildMessage(fromHeader, recipient, link)
	addr := net.JoinHostPort(n.config.Host, strconv.Itoa(n.config.Port))
	auth := smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)

	if err := n.sendMail(addr, auth, fromAddr, []string{recipient}, msg); err != nil {
		n.logger.Error("smtp delivery to %s failed: %v", recipient, err)
		return ErrDeliveryFailed.WithMetadata(map[string]any{
			"recipient": recipient,
			"reason":    err.Error(),
		})
	}

	return nil
}

func (n *SMTPNotifier) buildMessage(fromHeader, recipient, link string) []byte {
	var b strings.Builder

	b.WriteString("From: " + fromHeader + "\r\n")
	b.WriteString("To: " + recipient + "\r\n")
	b.WriteString("Subject: " + n.subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString("<p>Hello,</p>")
	b.WriteString("<p>Thanks for signing up. Confirm your email address to activate your account:</p>")
	b.WriteString(`<p><a href="` + link + `">Verify email</a></p>`)
	b.WriteString("<p>If the button does not work, paste this link into your browser:</p>")
	b.WriteString("<p>" + link + "</p>")
	b.WriteString("\r\n")

	return []byte(b.String())
}
