package flow

import (
	"context"
	"fmt"
	"hash/fnv"
	"kwrelay/internal/ports"
	"kwrelay/internal/telemetry"
	"kwrelay/internal/types"
	"time"

	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
)

// KeywordSource yields the keywords contained in a text.
type KeywordSource interface {
	Matching(ctx context.Context, text string) []string
}

// Matcher forwards every plain message that contains a keyword to the target group. Nothing is
// ever sent back to the chat the message came from.
type Matcher struct {
	keywords  KeywordSource
	publisher ports.Publisher
	target    string

	dedupWindow time.Duration
	seen        *TTL[string, struct{}]
}

func NewMatcher(keywords KeywordSource, publisher ports.Publisher, target string, dedupWindow time.Duration) *Matcher {
	telemetry.Init()
	return &Matcher{
		keywords:    keywords,
		publisher:   publisher,
		target:      target,
		dedupWindow: dedupWindow,
		seen:        NewTTL[string, struct{}](),
	}
}

// Handle implements ports.MessageHandler. It returns the forwarded notification, or nil when the
// message did not match or was suppressed as a duplicate.
func (m *Matcher) Handle(ctx context.Context, msg types.ChatMessage) (*types.Notification, error) {
	telemetry.MessagesTotal.Inc()
	hits := m.keywords.Matching(ctx, msg.Text)
	if len(hits) == 0 {
		log.WithField("chat", msg.Chat.Title).Trace("message did not match")
		return nil, nil
	}

	logger := log.WithFields(log.Fields{
		"chat":     msg.Chat.Title,
		"username": msg.Username,
		"keywords": hits,
	})
	dedupKey := ComputeKey(msg.Chat.ID, msg.Username, msg.Text)
	if m.dedupWindow > 0 && !m.seen.SetIfAbsent(dedupKey, struct{}{}, m.dedupWindow) {
		telemetry.ForwardsTotal.WithLabelValues("suppress_dedup").Inc()
		logger.Debug("duplicate match suppressed")
		return nil, nil
	}

	n := types.Notification{
		ID:        ulid.Make().String(),
		ChatTitle: msg.Chat.Title,
		Username:  msg.Username,
		Text:      msg.Text,
		Keywords:  hits,
		At:        timeNow().UTC(),
	}
	start := time.Now()
	err := m.publisher.Publish(ctx, m.target, n)
	telemetry.PublishDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if m.dedupWindow > 0 {
			// let a redelivery of the same message through
			m.seen.Delete(dedupKey)
		}
		telemetry.ForwardsTotal.WithLabelValues("failed").Inc()
		logger.WithError(err).Error("failed to forward matched message")
		return nil, fmt.Errorf("forward to %s: %w", m.target, err)
	}
	telemetry.ForwardsTotal.WithLabelValues("forwarded").Inc()
	logger.WithField("notification", n.ID).Info("matched message forwarded")
	return &n, nil
}

// ComputeKey generates a quick hash of the given strings with fixed length.
func ComputeKey(parts ...string) string {
	h := fnv.New32a()
	for _, p := range parts {
		// hash.Hash.Write never returns an error according to the interface contract
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("e%d", h.Sum32())
}
