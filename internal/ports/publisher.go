package ports

import (
	"context"
	"kwrelay/internal/types"
)

// Publisher delivers a notification to the configured target group.
type Publisher interface {
	Publish(ctx context.Context, target string, n types.Notification) error
}
