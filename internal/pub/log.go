package pub

import (
	"context"
	"kwrelay/internal/types"

	log "github.com/sirupsen/logrus"
)

type logPub struct {
	logger log.FieldLogger
}

// NewLog writes notifications to the log instead of sending them anywhere. Useful for dry runs.
func NewLog(logger log.FieldLogger) *logPub { return &logPub{logger: logger} }

func (l *logPub) Publish(ctx context.Context, target string, n types.Notification) error {
	l.logger.WithFields(log.Fields{
		"target":       target,
		"notification": n.ID,
		"chat":         n.ChatTitle,
		"username":     n.Username,
		"keywords":     n.Keywords,
	}).Info(n.Text)
	return nil
}
