package smtpmail

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	Host     string
	Port     int
	From     string
	FromName string
	Username string
	Password string
	Timeout  time.Duration
}

// Mailer sends HTML email over SMTP, upgrading to STARTTLS when the server offers it.
type Mailer struct {
	cfg Config
}

func New(cfg Config) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.FromName == "" {
		cfg.FromName = "Dekks"
	}
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrap(err, "smtp dial")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "smtp client")
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return errors.Wrap(err, "smtp starttls")
		}
	}
	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return errors.Wrap(err, "smtp auth")
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return errors.Wrap(err, "smtp mail from")
	}
	if err := c.Rcpt(to); err != nil {
		return errors.Wrap(err, "smtp rcpt")
	}
	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "smtp data")
	}
	if _, err := w.Write(buildMessage(m.cfg.FromName, m.cfg.From, to, subject, body)); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "smtp write")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "smtp close data")
	}
	return c.Quit()
}

func buildMessage(fromName, from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", fromName), from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
