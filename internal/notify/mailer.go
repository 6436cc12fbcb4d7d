package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/go-gomail/gomail"
)

const defaultSMTPTimeout = 30 * time.Second

// Mailer delivers a single plain-text message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds a whole session when the caller's context has no deadline.
	Timeout time.Duration
}

// SMTPMailer composes messages with gomail and runs the SMTP session itself,
// on a connection whose deadline follows the caller's context. When Send
// returns, the session is over: nothing is left sending in the background.
type SMTPMailer struct {
	cfg  SMTPConfig
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	d := &net.Dialer{Timeout: 10 * time.Second}
	return &SMTPMailer{cfg: cfg, dial: d.DialContext}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	conn, err := m.dial(ctx, "tcp", net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port)))
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("smtp deadline: %w", err)
	}
	// Cancellation before the deadline unblocks any read or write in flight.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if m.cfg.Port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: m.cfg.Host})
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if err := m.hello(c); err != nil {
		return err
	}

	err = gomail.Send(gomail.SendFunc(func(from string, rcpts []string, w io.WriterTo) error {
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, addr := range rcpts {
			if err := c.Rcpt(addr); err != nil {
				return err
			}
		}
		dw, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := w.WriteTo(dw); err != nil {
			_ = dw.Close()
			return err
		}
		return dw.Close()
	}), msg)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send: %w", ctxErr)
		}
		return fmt.Errorf("smtp send: %w", err)
	}

	_ = c.Quit()
	return nil
}

// hello upgrades to TLS when offered and authenticates when credentials are set.
func (m *SMTPMailer) hello(c *smtp.Client) error {
	if m.cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	if m.cfg.Username == "" {
		return nil
	}
	ok, mechs := c.Extension("AUTH")
	if !ok {
		return nil
	}

	var auth smtp.Auth
	if strings.Contains(mechs, "CRAM-MD5") {
		auth = smtp.CRAMMD5Auth(m.cfg.Username, m.cfg.Password)
	} else {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	return nil
}
