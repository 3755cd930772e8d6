// Package cmds holds the kwrelay command line: `serve` runs the relay, `words` and `users`
// edit the registries offline.
package cmds

import (
	"context"
	"kwrelay/internal/types"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	EnvEnvFile    = "ENV_FILE"
	EnvConfigFile = "CONFIG_FILE"
)

// options are the flags shared by every subcommand. Flags only override the loaded Config when
// set explicitly.
type options struct {
	configPath       string
	store            string
	keywordsResource string
	usersResource    string
	logLevel         string
	logFormat        string
}

func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "kwrelay",
		Short:         "Forward chat messages that mention watched keywords to one target group",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadEnvFile()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file (env "+EnvConfigFile+")")
	pf.StringVar(&opts.store, "store", "", "registry store backend: file, redis, ddb, s3, sql, memory (env "+types.EnvStoreBackend+")")
	pf.StringVar(&opts.keywordsResource, "keywords-resource", "", "resource holding the keywords (env "+types.EnvKeywordsRes+")")
	pf.StringVar(&opts.usersResource, "users-resource", "", "resource holding the authorized users (env "+types.EnvUsersRes+")")
	pf.StringVar(&opts.logLevel, "log-level", "", "trace, debug, info, warn or error (env "+types.EnvLogLevel+")")
	pf.StringVar(&opts.logFormat, "log-format", "", "text or json (env "+types.EnvLogFormat+")")

	root.AddCommand(
		newServeCmd(opts),
		newRegistryCmd(opts, wordsRegistry),
		newRegistryCmd(opts, usersRegistry),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("kwrelay failed")
		return 1
	}
	return 0
}

func loadEnvFile() {
	envFile := os.Getenv(EnvEnvFile)
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Debugf("The %s file not found.", envFile)
	}
}

// load assembles the Config (defaults, YAML, env, then explicit flags) and configures logging.
func (o *options) load(cmd *cobra.Command) (types.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	cfg, err := types.LoadConfig(path)
	if err != nil {
		return types.Config{}, err
	}
	flags := cmd.Flags()
	for name, pair := range map[string][2]*string{
		"store":             {&cfg.StoreBackend, &o.store},
		"keywords-resource": {&cfg.KeywordsResource, &o.keywordsResource},
		"users-resource":    {&cfg.UsersResource, &o.usersResource},
		"log-level":         {&cfg.LogLevel, &o.logLevel},
		"log-format":        {&cfg.LogFormat, &o.logFormat},
	} {
		if flags.Changed(name) {
			*pair[0] = *pair[1]
		}
	}
	if err := configureLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

func configureLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return types.Err(types.ErrStartupConfig, err, "log level")
	}
	log.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return types.Err(types.ErrStartupConfig, nil, "log format must be text or json, got %q", format)
	}
	return nil
}
