package ports

import (
	"context"
	"kwrelay/internal/types"
)

// CommandHandler turns a command event into the reply for the originating chat.
type CommandHandler interface {
	Handle(ctx context.Context, cmd types.Command) types.Reply
}

// MessageHandler evaluates a plain message and returns the notification it forwarded, if any.
type MessageHandler interface {
	Handle(ctx context.Context, msg types.ChatMessage) (*types.Notification, error)
}
