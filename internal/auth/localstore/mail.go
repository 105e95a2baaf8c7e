package localstore

import (
	"context"

	"hrportal.org/internal/auth"
	"hrportal.org/internal/obs"
)

// Message is a confirmation email the store would send.
type Message struct {
	To   string
	Type auth.OTPType
	OTP  string
	Link string
}

// Mailer delivers confirmation messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

type discardMailer struct{}

func (discardMailer) Send(context.Context, Message) error { return nil }

// LogMailer writes messages to the development log instead of sending them.
type LogMailer struct {
	Logger *obs.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	m.Logger.Auth(ctx, "confirmation_email", obs.Fields{
		"to":   msg.To,
		"type": string(msg.Type),
		"otp":  msg.OTP,
		"link": msg.Link,
	})
	return nil
}
