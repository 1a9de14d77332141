package notification

import (
	"context"
	"errors"
)

var ErrNoRecipient = errors.New("notification has no recipient address")

// Message is an outgoing email
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers email
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}
