package users

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPMailer sends notifications through a plain SMTP relay. It satisfies
// Mailer; hosts with richer delivery needs supply their own implementation
// through WithMailer.
type SMTPMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func NewSMTPMailer(host, port, username, password, from string) *SMTPMailer {
	if from == "" {
		from = username
	}
	return &SMTPMailer{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	auth := smtp.PlainAuth("", m.Username, m.Password, m.Host)

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		m.From, to, subject, body,
	))

	addr := fmt.Sprintf("%s:%s", m.Host, m.Port)
	if err := smtp.SendMail(addr, auth, m.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}

// noopMailer swallows every send; the default when no mailer is configured
type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, to, subject, body string) error {
	return nil
}

var _ Mailer = (*SMTPMailer)(nil)
var _ Mailer = noopMailer{}
