package email

import "context"

// Attachment is a file sent alongside the message body.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	Cc          []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Provider delivers email. A nil error means the relay accepted the message.
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	return nil
}
