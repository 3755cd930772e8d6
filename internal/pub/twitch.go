package pub

import (
	"context"
	"kwrelay/internal/types"
	"strings"
)

// TwitchSayer is the subset of *twitch.Client used to post in a channel.
type TwitchSayer interface {
	Say(channel, text string)
}

type twitchPub struct{ client TwitchSayer }

// NewTwitch posts notifications to the channel given as target. IRC messages are single-line,
// so the notification is flattened.
func NewTwitch(client TwitchSayer) *twitchPub { return &twitchPub{client: client} }

func (t *twitchPub) Publish(ctx context.Context, target string, n types.Notification) error {
	text := "[" + n.ChatTitle + "] " + n.Username + ": " + n.Text
	t.client.Say(strings.TrimPrefix(target, "#"), strings.Join(strings.Fields(text), " "))
	return nil
}
