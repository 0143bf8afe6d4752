package notification

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Mailer delivers a rendered e-mail
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPMailer sends e-mails through an SMTP relay
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m SMTPMailer) message(to, subject, htmlBody string) []byte {
	headers := []string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody)
}

// SendEmail implements Mailer
func (m SMTPMailer) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	err := smtp.SendMail(addr, auth, m.From, []string{to}, m.message(to, subject, htmlBody))
	return errors.Wrap(err, fmt.Sprintf("smtp: failed to send to %s", to))
}

// LogMailer only logs e-mails; used in development
type LogMailer struct{}

// SendEmail implements Mailer
func (LogMailer) SendEmail(_ context.Context, to, subject, htmlBody string) error {
	log.WithFields(
		log.Fields{
			"to":      to,
			"subject": subject,
			"length":  len(htmlBody),
		},
	).Info("notification e-mail")
	log.Debug(htmlBody)
	return nil
}
