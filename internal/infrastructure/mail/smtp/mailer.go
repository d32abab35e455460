package smtp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/infrastructure/resilience"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends plain-text UTF-8 mail over SMTP with STARTTLS.
type Mailer struct {
	cfg      Config
	send     sendFunc
	now      func() time.Time
	executor *resilience.Executor
}

func New(cfg Config) *Mailer {
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Mailer{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (m *Mailer) WithResilience(executor *resilience.Executor) *Mailer {
	m.executor = executor
	return m
}

func (m *Mailer) Send(ctx context.Context, mail domain.Mail) error {
	recipients := []string{mail.To}
	if cc := strings.TrimSpace(mail.Cc); cc != "" {
		recipients = append(recipients, cc)
	}

	msg := m.compose(mail)
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	err := m.executor.Execute(ctx, "smtp.send", func(context.Context) error {
		return m.send(addr, auth, m.cfg.From, recipients, msg)
	}, resilience.NoRetry)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "send mail", err)
	}
	return nil
}

func (m *Mailer) compose(mail domain.Mail) []byte {
	var buf bytes.Buffer
	writeHeader := func(key, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", key, value)
	}

	writeHeader("From", m.cfg.From)
	writeHeader("To", mail.To)
	if cc := strings.TrimSpace(mail.Cc); cc != "" {
		writeHeader("Cc", cc)
	}
	writeHeader("Subject", mime.BEncoding.Encode("UTF-8", mail.Subject))
	writeHeader("Date", m.now().Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `text/plain; charset="utf-8"`)
	writeHeader("Content-Transfer-Encoding", "base64")
	buf.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(mail.Body))
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
	return buf.Bytes()
}
