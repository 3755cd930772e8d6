package types

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Config drives the relay process. It is assembled from (lowest to highest precedence) built-in
// defaults, an optional YAML file, environment variables and command-line flags.
// Token is the transport credential: the Telegram bot token, the Twitch OAuth token, or the
// shared API key expected in the `x-api-key` header when the HTTP transport is used.
// TargetGroup is the single destination matching messages are forwarded to: a Telegram chat ID,
// a Twitch channel name or an SNS topic ARN, depending on Publisher.
// SeedUsers are merged into the authorized-user registry at startup, which is the only way to
// make a fresh deployment manageable through the command surface.
type Config struct {
	Token       string `yaml:"token"`
	TargetGroup string `yaml:"target_group"`

	Transport string `yaml:"transport"`
	Publisher string `yaml:"publisher"`

	StoreBackend     string   `yaml:"store_backend"`
	KeywordsResource string   `yaml:"keywords_resource"`
	UsersResource    string   `yaml:"users_resource"`
	SeedUsers        []string `yaml:"seed_users"`

	Locale  string `yaml:"locale"`
	Workers int    `yaml:"workers"`

	// DedupWindowSeconds suppresses repeated forwards of the same chat/sender/text within the
	// window. 0 disables suppression.
	DedupWindowSeconds int `yaml:"dedup_window_seconds"`

	// RegistryRefreshSeconds is how long a loaded registry serves reads before it is reloaded
	// from the store, so changes made by other processes sharing the store show up. 0 reloads
	// on every read, -1 never reloads.
	RegistryRefreshSeconds int `yaml:"registry_refresh_seconds"`

	// HTTPPort serves the HTTP transport, or only /health and /metrics next to a chat transport.
	// 0 disables the listener for chat transports.
	HTTPPort  int    `yaml:"http_port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Twitch  TwitchConfig  `yaml:"twitch"`
	Webhook WebhookConfig `yaml:"webhook"`
}

type TwitchConfig struct {
	Username string   `yaml:"username"`
	Channels []string `yaml:"channels"`
}

// WebhookConfig holds JMESPath expressions that pull event fields out of raw JSON updates posted
// to the HTTP transport. The defaults match the Telegram Bot API Update shape.
type WebhookConfig struct {
	TextExpr      string `yaml:"text"`
	UsernameExpr  string `yaml:"username"`
	ChatIDExpr    string `yaml:"chat_id"`
	ChatTitleExpr string `yaml:"chat_title"`
}

const (
	TransportTelegram = "telegram"
	TransportTwitch   = "twitch"
	TransportHTTP     = "http"

	PublisherSNS = "sns"
	PublisherLog = "log"

	LocaleEN = "en"
	LocaleRU = "ru"

	DefaultKeywordsResource = "keywords.txt"
	DefaultUsersResource    = "users.txt"
	DefaultWorkers          = 8
	DefaultHTTPPort         = 8080
	DefaultRegistryRefresh  = 5

	APIKeyHdrName = "x-api-key"
)

const (
	EnvToken        = "TOKEN"
	EnvTargetGroup  = "TARGET_GROUP"
	EnvTransport    = "TRANSPORT"
	EnvPublisher    = "PUBLISHER"
	EnvStoreBackend = "STORE_BACKEND"
	EnvKeywordsRes  = "KEYWORDS_RESOURCE"
	EnvUsersRes     = "USERS_RESOURCE"
	EnvSeedUsers    = "SEED_USERS"
	EnvLocale       = "LOCALE"
	EnvWorkers      = "WORKERS"
	EnvDedupWindow  = "DEDUP_WINDOW_SECONDS"
	EnvRegRefresh   = "REGISTRY_REFRESH_SECONDS"
	EnvHTTPPort     = "HTTP_PORT"
	EnvLogLevel     = "LOG_LEVEL"
	EnvLogFormat    = "LOG_FORMAT"
	EnvTwitchUser   = "TWITCH_BOT_USERNAME"
	EnvTwitchChans  = "TWITCH_CHANNELS"
)

// DefaultConfig returns a Config with every optional field populated.
func DefaultConfig() Config {
	return Config{
		Transport:              TransportTelegram,
		KeywordsResource:       DefaultKeywordsResource,
		UsersResource:          DefaultUsersResource,
		Locale:                 LocaleEN,
		Workers:                DefaultWorkers,
		HTTPPort:               DefaultHTTPPort,
		RegistryRefreshSeconds: DefaultRegistryRefresh,
		LogLevel:               "info",
		LogFormat:              "text",
		Webhook: WebhookConfig{
			TextExpr:      "message.text",
			UsernameExpr:  "message.from.username",
			ChatIDExpr:    "to_string(message.chat.id)",
			ChatTitleExpr: "message.chat.title",
		},
	}
}

// LoadConfig builds a Config from defaults, the YAML file at path (skipped when path is empty)
// and the environment. Flags are applied by the caller afterwards.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, Err(ErrStartupConfig, err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, Err(ErrStartupConfig, err, "parse config file %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Token, EnvToken)
	setString(&c.TargetGroup, EnvTargetGroup)
	setString(&c.Transport, EnvTransport)
	setString(&c.Publisher, EnvPublisher)
	setString(&c.StoreBackend, EnvStoreBackend)
	setString(&c.KeywordsResource, EnvKeywordsRes)
	setString(&c.UsersResource, EnvUsersRes)
	setString(&c.Locale, EnvLocale)
	setString(&c.LogLevel, EnvLogLevel)
	setString(&c.LogFormat, EnvLogFormat)
	setString(&c.Twitch.Username, EnvTwitchUser)
	if v := os.Getenv(EnvSeedUsers); v != "" {
		c.SeedUsers = SplitList(v)
	}
	if v := os.Getenv(EnvTwitchChans); v != "" {
		c.Twitch.Channels = SplitList(v)
	}
	for key, dst := range map[string]*int{
		EnvWorkers:     &c.Workers,
		EnvDedupWindow: &c.DedupWindowSeconds,
		EnvRegRefresh:  &c.RegistryRefreshSeconds,
		EnvHTTPPort:    &c.HTTPPort,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Err(ErrStartupConfig, err, "%s must be an integer", key)
		}
		*dst = n
	}
	return nil
}

// PublisherName returns the effective publisher, which defaults to the transport.
func (c Config) PublisherName() string {
	if c.Publisher == "" {
		return c.Transport
	}
	return c.Publisher
}

// Validate reports the first problem that makes the process unable to start.
func (c Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: token is required (--token or %s)", ErrStartupConfig, EnvToken)
	}
	if c.TargetGroup == "" {
		return fmt.Errorf("%w: target group is required (--group or %s)", ErrStartupConfig, EnvTargetGroup)
	}
	switch c.Transport {
	case TransportTelegram, TransportHTTP:
	case TransportTwitch:
		if c.Twitch.Username == "" {
			return fmt.Errorf("%w: twitch transport requires %s", ErrStartupConfig, EnvTwitchUser)
		}
		if len(c.Twitch.Channels) == 0 {
			return fmt.Errorf("%w: twitch transport requires %s", ErrStartupConfig, EnvTwitchChans)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrStartupConfig, c.Transport)
	}
	switch c.PublisherName() {
	case TransportTelegram:
		if _, err := strconv.ParseInt(c.TargetGroup, 10, 64); err != nil {
			return fmt.Errorf("%w: telegram target group must be a numeric chat id, got %q", ErrStartupConfig, c.TargetGroup)
		}
		if c.Transport != TransportTelegram {
			return fmt.Errorf("%w: telegram publisher requires the telegram transport", ErrStartupConfig)
		}
	case TransportTwitch:
		if c.Transport != TransportTwitch {
			return fmt.Errorf("%w: twitch publisher requires the twitch transport", ErrStartupConfig)
		}
	case PublisherSNS:
		if !strings.HasPrefix(c.TargetGroup, "arn:") {
			return fmt.Errorf("%w: sns target group must be a topic arn, got %q", ErrStartupConfig, c.TargetGroup)
		}
	case PublisherLog:
	default:
		return fmt.Errorf("%w: unknown publisher %q", ErrStartupConfig, c.PublisherName())
	}
	if c.Transport == TransportHTTP && c.PublisherName() == TransportHTTP {
		return fmt.Errorf("%w: http transport needs an explicit publisher (sns or log)", ErrStartupConfig)
	}
	if c.HTTPPort < 0 || (c.Transport == TransportHTTP && c.HTTPPort == 0) {
		return fmt.Errorf("%w: invalid http port %d", ErrStartupConfig, c.HTTPPort)
	}
	if c.KeywordsResource == "" || c.UsersResource == "" {
		return fmt.Errorf("%w: registry resources must be named", ErrStartupConfig)
	}
	if c.KeywordsResource == c.UsersResource {
		return fmt.Errorf("%w: keywords and users must use different resources", ErrStartupConfig)
	}
	if c.Locale != LocaleEN && c.Locale != LocaleRU {
		return fmt.Errorf("%w: unsupported locale %q", ErrStartupConfig, c.Locale)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrStartupConfig)
	}
	if c.DedupWindowSeconds < 0 {
		return fmt.Errorf("%w: dedup window must be non-negative. 0 for no suppression", ErrStartupConfig)
	}
	if c.RegistryRefreshSeconds < -1 {
		return fmt.Errorf("%w: registry refresh must be -1 (never), 0 (every read) or a number of seconds", ErrStartupConfig)
	}
	return nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
