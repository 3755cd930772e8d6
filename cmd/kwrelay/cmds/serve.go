package cmds

import (
	"context"
	"io"
	"kwrelay/internal/api"
	"kwrelay/internal/backends"
	"kwrelay/internal/ports"
	"kwrelay/internal/pub"
	"kwrelay/internal/relay"
	"kwrelay/internal/transport/telegram"
	twitchtransport "kwrelay/internal/transport/twitch"
	"kwrelay/internal/types"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveOptions struct {
	token          string
	group          string
	transport      string
	publisher      string
	locale         string
	seedUsers      []string
	workers        int
	dedupWindow    int
	refresh        int
	httpPort       int
	twitchUsername string
	twitchChannels []string
}

func newServeCmd(opts *options) *cobra.Command {
	so := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay on the configured transport",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			so.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&so.token, "token", "", "transport credential (env "+types.EnvToken+")")
	f.StringVar(&so.group, "group", "", "target group matching messages are forwarded to (env "+types.EnvTargetGroup+")")
	f.StringVar(&so.transport, "transport", "", "telegram, twitch or http (env "+types.EnvTransport+")")
	f.StringVar(&so.publisher, "publisher", "", "telegram, twitch, sns or log; defaults to the transport (env "+types.EnvPublisher+")")
	f.StringVar(&so.locale, "locale", "", "reply language: en or ru (env "+types.EnvLocale+")")
	f.StringSliceVar(&so.seedUsers, "seed-users", nil, "usernames added to the authorized users at startup (env "+types.EnvSeedUsers+")")
	f.IntVar(&so.workers, "workers", 0, "concurrent update handlers for the telegram transport (env "+types.EnvWorkers+")")
	f.IntVar(&so.dedupWindow, "dedup-window", 0, "seconds to suppress repeated forwards, 0 disables (env "+types.EnvDedupWindow+")")
	f.IntVar(&so.refresh, "registry-refresh", 0, "seconds a loaded registry serves reads before reloading, -1 never (env "+types.EnvRegRefresh+")")
	f.IntVar(&so.httpPort, "http-port", 0, "HTTP listen port, 0 disables it next to a chat transport (env "+types.EnvHTTPPort+")")
	f.StringVar(&so.twitchUsername, "twitch-username", "", "bot account login (env "+types.EnvTwitchUser+")")
	f.StringSliceVar(&so.twitchChannels, "twitch-channels", nil, "channels to watch (env "+types.EnvTwitchChans+")")
	return cmd
}

func (so *serveOptions) apply(cmd *cobra.Command, cfg *types.Config) {
	flags := cmd.Flags()
	for name, pair := range map[string][2]*string{
		"token":           {&cfg.Token, &so.token},
		"group":           {&cfg.TargetGroup, &so.group},
		"transport":       {&cfg.Transport, &so.transport},
		"publisher":       {&cfg.Publisher, &so.publisher},
		"locale":          {&cfg.Locale, &so.locale},
		"twitch-username": {&cfg.Twitch.Username, &so.twitchUsername},
	} {
		if flags.Changed(name) {
			*pair[0] = *pair[1]
		}
	}
	for name, pair := range map[string][2]*int{
		"workers":          {&cfg.Workers, &so.workers},
		"dedup-window":     {&cfg.DedupWindowSeconds, &so.dedupWindow},
		"registry-refresh": {&cfg.RegistryRefreshSeconds, &so.refresh},
		"http-port":        {&cfg.HTTPPort, &so.httpPort},
	} {
		if flags.Changed(name) {
			*pair[0] = *pair[1]
		}
	}
	if flags.Changed("seed-users") {
		cfg.SeedUsers = so.seedUsers
	}
	if flags.Changed("twitch-channels") {
		cfg.Twitch.Channels = so.twitchChannels
	}
}

// runner is a transport loop.
type runner func(ctx context.Context) error

func serve(ctx context.Context, cfg types.Config) error {
	store, err := backends.RegistryStoreFromEnv(cfg.StoreBackend)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer func() {
			_ = c.Close()
		}()
	}

	var (
		bot          *tgbotapi.BotAPI
		twitchClient *twitch.Client
	)
	switch cfg.Transport {
	case types.TransportTelegram:
		bot, err = tgbotapi.NewBotAPI(cfg.Token)
		if err != nil {
			return types.Err(types.ErrStartupConfig, err, "connect to telegram")
		}
		log.WithField("bot", bot.Self.UserName).Info("authorized on telegram")
	case types.TransportTwitch:
		twitchClient = twitch.NewClient(cfg.Twitch.Username, oauthToken(cfg.Token))
	}

	publisher, err := newPublisher(ctx, cfg, bot, twitchClient)
	if err != nil {
		return err
	}
	r, err := relay.New(ctx, cfg, store, publisher)
	if err != nil {
		return err
	}

	var run []runner
	switch cfg.Transport {
	case types.TransportTelegram:
		run = append(run, telegram.New(bot, r.Dispatcher, r.Matcher, cfg.Workers).Run)
	case types.TransportTwitch:
		run = append(run, twitchtransport.New(twitchClient, cfg.Twitch.Channels, r.Dispatcher, r.Matcher).Run)
	}
	if cfg.Transport == types.TransportHTTP {
		h := api.NewHandler(r.Dispatcher, r.Matcher, cfg.Token, cfg.Webhook)
		run = append(run, func(ctx context.Context) error { return api.Serve(ctx, cfg.HTTPPort, h) })
	} else if cfg.HTTPPort > 0 {
		h := api.NewHandler(nil, nil, "", cfg.Webhook)
		run = append(run, func(ctx context.Context) error { return api.Serve(ctx, cfg.HTTPPort, h) })
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range run {
		g.Go(func() error { return fn(gctx) })
	}
	err = g.Wait()
	log.Info("kwrelay stopped")
	return err
}

func newPublisher(ctx context.Context, cfg types.Config, bot *tgbotapi.BotAPI, twitchClient *twitch.Client) (ports.Publisher, error) {
	name := cfg.PublisherName()
	log.WithFields(log.Fields{"publisher": name, "target": cfg.TargetGroup}).Info("Use publisher")
	switch name {
	case types.TransportTelegram:
		return pub.NewTelegram(bot), nil
	case types.TransportTwitch:
		return pub.NewTwitch(twitchClient), nil
	case types.PublisherSNS:
		cli, err := backends.SNSClientFromEnv(ctx)
		if err != nil {
			return nil, types.Err(types.ErrStartupConfig, err, "sns client")
		}
		return pub.NewSNS(cli), nil
	default:
		return pub.NewLog(log.StandardLogger()), nil
	}
}

// oauthToken adds the "oauth:" prefix Twitch IRC expects in PASS.
func oauthToken(token string) string {
	if strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}
