package port

import "context"

// Dispatcher delivers a rendered alert message.
type Dispatcher interface {
	Dispatch(ctx context.Context, message string) error
}

// Sender is one notification channel (Telegram, Discord, ...).
type Sender interface {
	Send(ctx context.Context, message string) error
	Name() string
}
