// Package mailer delivers HTML email through an SMTP relay.
package mailer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	apperrors "github.com/edupaila/community-server-go/internal/errors"
	"github.com/edupaila/community-server-go/internal/util"
)

const defaultTimeout = 15 * time.Second

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Message is one outgoing email.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// sender is the part of *mail.Client the gateway needs.
type sender interface {
	DialWithContext(ctx context.Context) error
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
	Close() error
}

type Gateway struct {
	cfg       Config
	newSender func() (sender, error)
}

func NewGateway(cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	g := &Gateway{cfg: cfg}
	g.newSender = g.dialer
	return g
}

func (g *Gateway) dialer() (sender, error) {
	opts := []mail.Option{
		mail.WithPort(g.cfg.Port),
		mail.WithTimeout(g.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if g.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	}
	if g.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(g.cfg.Username),
			mail.WithPassword(g.cfg.Password),
		)
	}
	return mail.NewClient(g.cfg.Host, opts...)
}

// Verify checks that the relay is configured and reachable. A failure means
// every send would fail, so callers stop before attempting any.
func (g *Gateway) Verify(ctx context.Context) error {
	if g.cfg.Host == "" || g.cfg.From == "" {
		return apperrors.Configuration("Mail relay is not configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	client, err := g.newSender()
	if err != nil {
		return apperrors.Configuration("Mail relay is misconfigured", err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		log.Error().Err(err).Str("host", g.cfg.Host).Int("port", g.cfg.Port).Msg("smtp connectivity check failed")
		return apperrors.Configuration("Mail relay is unreachable", err)
	}
	if err := client.Close(); err != nil {
		log.Debug().Err(err).Msg("smtp close after connectivity check")
	}
	return nil
}

// Send delivers one message and returns its Message-ID.
func (g *Gateway) Send(ctx context.Context, msg Message) (string, error) {
	if !util.IsEmailLike(msg.To) {
		return "", apperrors.InvalidRecipient(msg.To)
	}

	m := mail.NewMsg()
	if err := m.From(g.cfg.From); err != nil {
		return "", apperrors.Configuration("Invalid sender address", err)
	}
	if err := m.To(msg.To); err != nil {
		return "", apperrors.InvalidRecipient(msg.To).WithCause(err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	for _, att := range msg.Attachments {
		if err := m.AttachReader(att.Name, att.Reader()); err != nil {
			return "", apperrors.Delivery(err)
		}
	}

	client, err := g.newSender()
	if err != nil {
		return "", apperrors.Configuration("Mail relay is misconfigured", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", apperrors.Delivery(err)
	}

	var messageID string
	if ids := m.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
		messageID = ids[0]
	}
	return messageID, nil
}
