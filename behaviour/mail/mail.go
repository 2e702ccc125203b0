// Package mail sends the mailing list commands over SMTP
package mail

import (
	"context"

	"github.com/go-logr/logr"
	"gopkg.in/gomail.v2"

	"github.com/supremind/svcaccess/behaviour"
)

// Config of the SMTP relay
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

var _ behaviour.MailSender = (*Sender)(nil)

// Sender is a MailSender over SMTP
type Sender struct {
	from   string
	dialer dialer
	log    logr.Logger
}

// New creates a Sender
func New(cfg Config, l logr.Logger) *Sender {
	return &Sender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		log:    l,
	}
}

// Send a plain text mail to all of to
func (s *Sender) Send(ctx context.Context, to []string, subject, body string) error {
	if e := ctx.Err(); e != nil {
		return e
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	s.log.V(4).Info("send mail", "to", to, "subject", subject)
	return s.dialer.DialAndSend(m)
}
