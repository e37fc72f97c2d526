package magiclink

import (
	"context"
	"log/slog"
)

// Sender delivers a login e-mail. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, body, recipient string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, body, recipient string) error

func (f SenderFunc) Send(ctx context.Context, body, recipient string) error {
	return f(ctx, body, recipient)
}

// LogSender writes the e-mail to the log instead of sending it, so developers can click the link.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Send(ctx context.Context, body, recipient string) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "magiclink.email.stub", "to", recipient, "body", body)
	return nil
}
