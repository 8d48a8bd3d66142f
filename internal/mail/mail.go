// Package mail delivers the verification emails. Messages go out over
// SMTP when a host is configured and are appended to a local outbox file
// otherwise.
package mail

import (
	"bytes"
	"context"
	"html/template"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/config"
)

// Message is one HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// NewSender picks the SMTP sender when cfg.Host is set and the outbox
// otherwise.
func NewSender(cfg config.SMTPConfig) Sender {
	if cfg.Host == "" {
		log.Info().Str("path", cfg.OutboxPath).Msg("SMTP_HOST not set; verification mail goes to the outbox file")
		return &OutboxSender{Path: cfg.OutboxPath}
	}
	return NewSMTPSender(cfg)
}

const verificationSubject = "Your Game Tracker Verification Code"

var verificationTmpl = template.Must(template.New("verification").Parse(`<html>
  <body>
    <h2>Welcome to Game Tracker, {{.Username}}!</h2>
    <p>Your verification code is:</p>
    <h1 style="font-size: 32px; letter-spacing: 2px; color: #4F46E5; text-align: center; padding: 20px; background-color: #F3F4F6; border-radius: 8px;">{{.Code}}</h1>
    <p>Enter this code in the app to verify your email address.</p>
    <p>This code will expire in 24 hours.</p>
    <p>If you did not create an account, please ignore this email.</p>
  </body>
</html>
`))

// VerificationMessage renders the verification mail for code.
func VerificationMessage(email, username, code string) (Message, error) {
	var buf bytes.Buffer
	err := verificationTmpl.Execute(&buf, struct{ Username, Code string }{username, code})
	if err != nil {
		return Message{}, err
	}
	return Message{To: email, Subject: verificationSubject, HTML: buf.String()}, nil
}

// Notifier sends verification codes synchronously through a Sender. It is
// used by the queue worker and directly when no broker is configured.
type Notifier struct {
	Sender Sender
}

// SendVerification renders and sends the verification mail.
func (n Notifier) SendVerification(ctx context.Context, email, username, code string) error {
	m, err := VerificationMessage(email, username, code)
	if err != nil {
		return err
	}
	return n.Sender.Send(ctx, m)
}
