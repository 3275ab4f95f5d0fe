package transport

import "context"

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	DisablePreview bool
}

// Sender delivers plain text to a chat. It is the only outbound capability
// the notifier and the log sink need.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Adapter is a Sender with an explicit lifecycle.
type Adapter interface {
	Sender
	Stop(ctx context.Context) error
}
