// Package telegram feeds Telegram Bot API updates into the relay. Updates are received by long
// polling and fanned out to a fixed set of workers, sharded by chat, so one chat's events are
// handled in order while different chats proceed concurrently.
package telegram

import (
	"context"
	"hash/fnv"
	"kwrelay/internal/flow"
	"kwrelay/internal/ports"
	"kwrelay/internal/types"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	pollTimeoutSeconds = 60
	queueDepth         = 64
)

// BotAPI is the subset of *tgbotapi.BotAPI the transport needs.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Transport struct {
	bot      BotAPI
	commands ports.CommandHandler
	messages ports.MessageHandler
	workers  int
}

func New(bot BotAPI, commands ports.CommandHandler, messages ports.MessageHandler, workers int) *Transport {
	if workers < 1 {
		workers = 1
	}
	return &Transport{bot: bot, commands: commands, messages: messages, workers: workers}
}

// Run polls for updates until ctx is cancelled or the update channel closes, then waits for
// queued updates to be handled.
func (t *Transport) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	updates := t.bot.GetUpdatesChan(u)

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	queues := make([]chan tgbotapi.Update, t.workers)
	for i := range queues {
		q := make(chan tgbotapi.Update, queueDepth)
		queues[i] = q
		g.Go(func() error {
			for upd := range q {
				t.HandleUpdate(gctx, upd)
			}
			return nil
		})
	}
	log.WithField("workers", t.workers).Info("telegram transport polling for updates")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			log.Info("telegram transport stopping")
			return t.drain(g, queues)
		case upd, ok := <-updates:
			if !ok {
				return t.drain(g, queues)
			}
			if upd.Message == nil || upd.Message.Chat == nil {
				continue
			}
			queues[shard(upd.Message.Chat.ID, t.workers)] <- upd
		}
	}
}

func (t *Transport) drain(g *errgroup.Group, queues []chan tgbotapi.Update) error {
	for _, q := range queues {
		close(q)
	}
	return g.Wait()
}

// HandleUpdate routes one update: known commands go to the command handler and get a reply in
// the same chat; everything else with text is evaluated by the message handler.
func (t *Transport) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}
	username := ""
	if msg.From != nil {
		username = msg.From.UserName
	}
	chat := types.Chat{
		ID:    strconv.FormatInt(msg.Chat.ID, 10),
		Title: msg.Chat.Title,
	}
	if chat.Title == "" {
		chat.Title = msg.Chat.UserName
	}

	if msg.IsCommand() && flow.IsKnownCommand(flow.CommandName(msg.Command())) {
		reply := t.commands.Handle(ctx, types.Command{
			Name:     msg.Command(),
			Args:     strings.Fields(msg.CommandArguments()),
			Username: username,
			Chat:     chat,
		})
		out := tgbotapi.NewMessage(msg.Chat.ID, reply.Text)
		out.ReplyToMessageID = msg.MessageID
		if _, err := t.bot.Send(out); err != nil {
			log.WithError(err).WithField("chat", chat.Title).Error("failed to send command reply")
		}
		return
	}

	if _, err := t.messages.Handle(ctx, types.ChatMessage{Text: msg.Text, Username: username, Chat: chat}); err != nil {
		log.WithError(err).WithField("chat", chat.Title).Warn("message handling failed")
	}
}

func shard(chatID int64, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(chatID, 10)))
	return int(h.Sum32() % uint32(n))
}
