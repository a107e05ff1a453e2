package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"MailDispatch/internal/models"
)

const DefaultSendTimeout = 30 * time.Second

var (
	ErrMissingHost       = errors.New("smtp host is not set")
	ErrMissingUser       = errors.New("smtp user is not set")
	ErrMissingFrom       = errors.New("smtp from address is not set")
	ErrMissingEncryption = errors.New("smtp encryption is not set")
	ErrInvalidEncryption = errors.New("invalid encryption type")
)

// Mailer delivers one queue entry to one recipient.
type Mailer interface {
	Send(ctx context.Context, settings models.SmtpSettings, entry models.QueueEntry, user models.UserAccount) error
}

// CheckSettings returns the first required smtp parameter that is empty.
func CheckSettings(s models.SmtpSettings) error {
	switch {
	case s.Host == "":
		return ErrMissingHost
	case s.User == "":
		return ErrMissingUser
	case s.From == "":
		return ErrMissingFrom
	case s.Encryption == "":
		return ErrMissingEncryption
	}
	return nil
}

type Sender struct {
	Timeout time.Duration
}

// Send builds the message and hands it to the relay. The SMTP session is bound
// to ctx and the send timeout: when either ends the connection is closed, so no
// exchange outlives the call.
func (s *Sender) Send(ctx context.Context, settings models.SmtpSettings, entry models.QueueEntry, user models.UserAccount) error {
	d, err := NewDialer(settings)
	if err != nil {
		return err
	}

	m, err := NewMessage(settings, entry, user)
	if err != nil {
		return err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := deliver(ctx, d, m); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send to %s aborted: %w", user.Email, ctxErr)
		}
		return fmt.Errorf("smtp send error: %w", err)
	}

	return nil
}

// deliver runs one SMTP session with the dialer's settings. gomail still
// renders and hands over the message; the connection is ours so it can be torn
// down when ctx is done.
func deliver(ctx context.Context, d *gomail.Dialer, m *gomail.Message) error {
	var nd net.Dialer
	raw, err := nd.DialContext(ctx, "tcp", net.JoinHostPort(d.Host, strconv.Itoa(d.Port)))
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })
	defer func() {
		stop()
		_ = raw.Close()
	}()

	conn := raw
	if d.SSL {
		conn = tls.Client(raw, d.TLSConfig)
	}

	c, err := smtp.NewClient(conn, d.Host)
	if err != nil {
		return err
	}

	if d.LocalName != "" {
		if err := c.Hello(d.LocalName); err != nil {
			return err
		}
	}

	if !d.SSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(d.TLSConfig); err != nil {
				return err
			}
		}
	}

	if d.Username != "" {
		if ok, mechs := c.Extension("AUTH"); ok {
			if err := c.Auth(authFor(d, mechs)); err != nil {
				return err
			}
		}
	}

	send := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, addr := range to {
			if err := c.Rcpt(addr); err != nil {
				return err
			}
		}

		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := msg.WriteTo(w); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	})

	if err := gomail.Send(send, m); err != nil {
		return err
	}

	// the relay has accepted the message; a failed QUIT changes nothing
	_ = c.Quit()
	return nil
}

func authFor(d *gomail.Dialer, mechs string) smtp.Auth {
	if strings.Contains(mechs, "CRAM-MD5") {
		return smtp.CRAMMD5Auth(d.Username, d.Password)
	}
	return smtp.PlainAuth("", d.Username, d.Password, d.Host)
}

// NewDialer picks the transport for the configured encryption mode: tls and
// starttls upgrade the plain connection when the relay offers STARTTLS, ssl
// dials straight into TLS.
func NewDialer(s models.SmtpSettings) (*gomail.Dialer, error) {
	var implicitTLS bool

	switch strings.ToLower(strings.TrimSpace(s.Encryption)) {
	case "tls", "starttls":
		implicitTLS = false
	case "ssl":
		implicitTLS = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEncryption, s.Encryption)
	}

	port, err := strconv.Atoi(strings.TrimSpace(s.Port))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid smtp port %q", s.Port)
	}

	d := gomail.NewDialer(s.Host, port, s.User, s.Password)
	d.SSL = implicitTLS
	d.TLSConfig = &tls.Config{
		ServerName: s.Host,
		MinVersion: tls.VersionTLS12,
	}

	return d, nil
}

// NewMessage assembles an HTML mail with From and Reply-To set to the
// application name and the configured sender address.
func NewMessage(s models.SmtpSettings, entry models.QueueEntry, user models.UserAccount) (*gomail.Message, error) {
	from, err := mail.ParseAddress(s.From)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", s.From, err)
	}
	if _, err := mail.ParseAddress(user.Email); err != nil {
		return nil, fmt.Errorf("parse recipient address %q: %w", user.Email, err)
	}

	m := gomail.NewMessage(
		gomail.SetCharset("UTF-8"),
		gomail.SetEncoding(gomail.Base64),
	)

	sender := m.FormatAddress(from.Address, s.AppName)
	m.SetHeader("From", sender)
	m.SetHeader("Reply-To", sender)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", entry.Subject)
	m.SetBody("text/html", entry.Body)

	return m, nil
}
