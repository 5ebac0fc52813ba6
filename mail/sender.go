package mail

import (
	"context"
	"fmt"

	"github.com/resendlabs/resend-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"pdfdesk/config"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a single HTML email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender picks the transport named by cfg.Provider.
func NewSender(cfg config.MailConfig, logger *logrus.Logger) (Sender, error) {
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}

	switch cfg.Provider {
	case "smtp":
		return &SMTPSender{
			from:   from,
			dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		}, nil
	case "resend":
		return &ResendSender{from: from, client: resend.NewClient(cfg.ResendAPIKey)}, nil
	case "none", "":
		return &LogSender{logger: logger}, nil
	}
	return nil, fmt.Errorf("unsupported mail provider %q", cfg.Provider)
}

type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
}

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("sending mail via smtp: %w", err)
	}
	return nil
}

type ResendSender struct {
	from   string
	client *resend.Client
}

func (s *ResendSender) Send(_ context.Context, msg Message) error {
	_, err := s.client.Emails.Send(&resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("sending mail via resend: %w", err)
	}
	return nil
}

// LogSender records messages instead of delivering them. Used when no
// provider is configured.
type LogSender struct {
	logger *logrus.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Mail delivery disabled, message dropped")
	return nil
}
