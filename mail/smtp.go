package mail

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Encryption selects how the SMTP connection is secured.
type Encryption string

const (
	EncryptionStartTLS Encryption = "starttls"
	EncryptionSSL      Encryption = "ssl"
	EncryptionNone     Encryption = "none"
)

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	Encryption  Encryption
	DialTimeout time.Duration
	// MaxRetries bounds the attempts after the first one for transient
	// failures (connection errors and 4xx replies).
	MaxRetries uint64
	RetryBase  time.Duration
}

// SMTPMailer sends messages through an SMTP relay.
type SMTPMailer struct {
	cfg    SMTPConfig
	from   mail.Address
	logger *slog.Logger
	now    func() time.Time

	// send is the transport seam used by tests.
	send func(ctx context.Context, from string, to []string, msg []byte) error
}

// NewSMTPMailer validates cfg and returns an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) (*SMTPMailer, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if _, err := mail.ParseAddress(cfg.FromAddress); err != nil {
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("from", cfg.FromAddress).Wrapf(err, "invalid from address")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Encryption == "" {
		cfg.Encryption = EncryptionStartTLS
	}
	switch cfg.Encryption {
	case EncryptionStartTLS, EncryptionSSL, EncryptionNone:
	default:
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("encryption", cfg.Encryption).Errorf("unsupported smtp encryption")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &SMTPMailer{
		cfg:    cfg,
		from:   mail.Address{Name: cfg.FromName, Address: cfg.FromAddress},
		logger: logger,
		now:    time.Now,
	}
	m.send = m.sendSMTP
	return m, nil
}

// Deliver sends msg, retrying transient failures with exponential backoff.
func (m *SMTPMailer) Deliver(ctx context.Context, msg Message) error {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return oops.Code("MAIL_RECIPIENT_INVALID").Wrapf(err, "invalid recipient")
	}

	body, err := m.build(msg, to)
	if err != nil {
		return oops.Code("MAIL_BUILD_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(m.cfg.MaxRetries, retry.NewExponential(m.cfg.RetryBase))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		sendErr := m.send(ctx, m.from.Address, []string{to.Address}, body)
		if sendErr == nil {
			return nil
		}
		if isTransient(sendErr) {
			m.logger.WarnContext(ctx, "smtp delivery attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", sendErr.Error()),
			)
			return retry.RetryableError(sendErr)
		}
		return sendErr
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("host", m.cfg.Host).
			With("attempts", attempt).
			Wrap(err)
	}

	m.logger.InfoContext(ctx, "mail sent", slog.String("subject", msg.Subject))
	return nil
}

func (m *SMTPMailer) build(msg Message, to *mail.Address) ([]byte, error) {
	var b strings.Builder
	b.WriteString("From: " + m.from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + m.now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTMLBody == "" {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.TextBody)
		return []byte(b.String()), nil
	}

	var raw [12]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, err
	}
	boundary := "tg-" + hex.EncodeToString(raw[:])

	b.WriteString("Content-Type: multipart/alternative; boundary=\"" + boundary + "\"\r\n\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.TextBody + "\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.HTMLBody + "\r\n")
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String()), nil
}

func (m *SMTPMailer) sendSMTP(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &net.Dialer{Timeout: m.cfg.DialTimeout}
	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if m.cfg.Encryption == EncryptionSSL {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := gosmtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if m.cfg.Encryption == EncryptionStartTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starting TLS: %w", err)
		}
	}

	if m.cfg.Username != "" {
		auth := gosmtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}

// isTransient reports whether err is worth another attempt: network
// failures and 4xx SMTP replies are, 5xx replies are not.
func isTransient(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 400 && protoErr.Code < 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
