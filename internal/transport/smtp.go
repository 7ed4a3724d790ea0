// Package transport delivers assembled messages over SMTP using an
// identity's connection settings.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/pkg/errors"

	"github.com/wren-mail/wren/internal/config"
)

// ErrNoRecipients indicates a send with an empty envelope.
var ErrNoRecipients = errors.New("no recipients")

// SMTP sends mail through the identity's configured server. The zero
// value is usable; Logger is optional.
type SMTP struct {
	Logger *slog.Logger
}

// Send delivers raw message bytes. The context bounds the whole
// attempt; on expiry the send is reported failed, never retried here.
func (s *SMTP) Send(ctx context.Context, from string, recipients []string, raw []byte, id config.Identity) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	done := make(chan error, 1)
	go func() {
		done <- s.send(from, recipients, raw, id)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "transport aborted")
	}
}

func (s *SMTP) send(from string, recipients []string, raw []byte, id config.Identity) error {
	host := id.SMTPHost
	if host == "" {
		host = "localhost"
	}
	port := id.SMTPPort
	if port == 0 {
		port = 25
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	var (
		c   *smtp.Client
		err error
	)
	if id.SMTPUseSMTPS {
		c, err = smtp.DialTLS(addr, nil)
	} else {
		c, err = smtp.Dial(addr)
	}
	if err != nil {
		return errors.Wrapf(err, "connecting to %s", addr)
	}
	defer c.Close()

	if id.SMTPUseTLS && !id.SMTPUseSMTPS {
		if err := c.StartTLS(nil); err != nil {
			return errors.Wrap(err, "starting TLS")
		}
	}

	if id.SMTPUsername != "" || id.SMTPPassword != "" {
		auth := sasl.NewPlainClient("", id.SMTPUsername, id.SMTPPassword)
		if err := c.Auth(auth); err != nil {
			return errors.Wrap(err, "authenticating")
		}
	}

	// SendMail quits the session itself on success.
	if err := c.SendMail(from, recipients, bytes.NewReader(raw)); err != nil {
		return errors.Wrapf(err, "delivering to %d recipients", len(recipients))
	}

	if s.Logger != nil {
		s.Logger.Info("message delivered",
			slog.String("server", addr),
			slog.Int("recipients", len(recipients)))
	}
	return nil
}
