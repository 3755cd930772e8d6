// Package relay assembles the registries, the command dispatcher and the message matcher from a
// validated Config. Transports are attached by the caller.
package relay

import (
	"context"
	"kwrelay/internal/flow"
	"kwrelay/internal/ports"
	"kwrelay/internal/registry"
	"kwrelay/internal/telemetry"
	"kwrelay/internal/types"
	"time"

	log "github.com/sirupsen/logrus"
)

type Relay struct {
	Keywords   *registry.Keywords
	Users      *registry.Users
	Dispatcher *flow.Dispatcher
	Matcher    *flow.Matcher
}

// New loads both registries from store, merges cfg.SeedUsers into the authorized users and
// builds the command and message handlers. Notifications go to cfg.TargetGroup via publisher.
func New(ctx context.Context, cfg types.Config, store ports.RegistryStore, publisher ports.Publisher) (*Relay, error) {
	telemetry.Init()
	keywords, err := registry.OpenKeywords(ctx, store, cfg.KeywordsResource)
	if err != nil {
		return nil, err
	}
	users, err := registry.OpenUsers(ctx, store, cfg.UsersResource)
	if err != nil {
		return nil, err
	}
	maxAge := time.Duration(cfg.RegistryRefreshSeconds) * time.Second
	if cfg.RegistryRefreshSeconds < 0 {
		maxAge = -1
	}
	keywords.SetMaxAge(maxAge)
	users.SetMaxAge(maxAge)
	if _, err := users.Seed(ctx, cfg.SeedUsers); err != nil {
		return nil, err
	}
	if users.Len() == 0 {
		log.Warnf("no authorized users: nobody can change the registries until one is added with `kwrelay users add` or %s", types.EnvSeedUsers)
	}
	telemetry.SetRegistrySize(keywords.Resource(), keywords.Len())
	telemetry.SetRegistrySize(users.Resource(), users.Len())

	log.WithFields(log.Fields{
		"keywords": keywords.Len(),
		"users":    users.Len(),
		"target":   cfg.TargetGroup,
		"locale":   cfg.Locale,
	}).Info("relay ready")

	return &Relay{
		Keywords:   keywords,
		Users:      users,
		Dispatcher: flow.NewDispatcher(keywords, users, flow.TextsFor(cfg.Locale)),
		Matcher:    flow.NewMatcher(keywords, publisher, cfg.TargetGroup, time.Duration(cfg.DedupWindowSeconds)*time.Second),
	}, nil
}
