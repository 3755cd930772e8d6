// Package twitch feeds Twitch chat into the relay over IRC. Commands use the `!` prefix.
package twitch

import (
	"context"
	"errors"
	"kwrelay/internal/flow"
	"kwrelay/internal/ports"
	"kwrelay/internal/types"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"
	log "github.com/sirupsen/logrus"
)

const CommandPrefix = "!"

// Client is the subset of *twitch.Client the transport needs.
type Client interface {
	OnPrivateMessage(callback func(message twitch.PrivateMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
	Reply(channel, parentMsgID, text string)
}

type Transport struct {
	client   Client
	channels []string
	commands ports.CommandHandler
	messages ports.MessageHandler
}

func New(client Client, channels []string, commands ports.CommandHandler, messages ports.MessageHandler) *Transport {
	return &Transport{client: client, channels: channels, commands: commands, messages: messages}
}

// Run joins the configured channels and blocks until ctx is cancelled or the connection fails.
// The IRC client invokes callbacks from its single reader goroutine, so messages from all
// channels are handled sequentially.
func (t *Transport) Run(ctx context.Context) error {
	t.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		t.HandleMessage(ctx, msg)
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.client.Disconnect()
		case <-stop:
		}
	}()

	t.client.Join(t.channels...)
	log.WithField("channels", t.channels).Info("twitch transport joining channels")
	err := t.client.Connect()
	if errors.Is(err, twitch.ErrClientDisconnected) || ctx.Err() != nil {
		log.Info("twitch transport stopping")
		return nil
	}
	return err
}

func (t *Transport) HandleMessage(ctx context.Context, msg twitch.PrivateMessage) {
	chat := types.Chat{ID: msg.Channel, Title: msg.Channel}
	if cmd, ok := flow.ParseCommand(msg.Message, CommandPrefix); ok && flow.IsKnownCommand(cmd.Name) {
		cmd.Username = msg.User.Name
		cmd.Chat = chat
		reply := t.commands.Handle(ctx, cmd)
		t.client.Reply(msg.Channel, msg.ID, oneLine(reply.Text))
		return
	}
	if _, err := t.messages.Handle(ctx, types.ChatMessage{Text: msg.Message, Username: msg.User.Name, Chat: chat}); err != nil {
		log.WithError(err).WithField("chat", msg.Channel).Warn("message handling failed")
	}
}

// oneLine joins multi-line replies, IRC messages cannot carry newlines.
func oneLine(s string) string {
	var parts []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " | ")
}
