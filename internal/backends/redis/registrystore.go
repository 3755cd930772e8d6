package redis

import (
	"context"
	"errors"
	"fmt"
	"kwrelay/internal/types"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	registryKeyNameTemplate = "_kwrelay_reg_%s"
	versionKeyNameTemplate  = "_kwrelay_reg_%s:ver"
)

// RegistryStore keeps every registry in one Redis SET, next to a counter key bumped by every
// write.
type RegistryStore struct {
	cli *redis.Client
}

func NewRegistryStore(cli *redis.Client) *RegistryStore {
	return &RegistryStore{cli: cli}
}

func (s *RegistryStore) Load(ctx context.Context, resource string) ([]string, error) {
	out := s.cli.SMembers(ctx, getRegistryKey(resource))
	if out.Err() != nil {
		if errors.Is(out.Err(), redis.Nil) {
			return []string{}, nil
		}
		return nil, types.Err(types.ErrPersistence, out.Err(), "smembers %s", resource)
	}
	return trimMembers(out.Val()), nil
}

// Save rewrites the whole set inside MULTI/EXEC so readers never see it half-populated.
func (s *RegistryStore) Save(ctx context.Context, resource string, entries []string) error {
	_, err := s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rewrite(ctx, pipe, resource, entries)
		return nil
	})
	if err != nil {
		return types.Err(types.ErrPersistence, err, "rewrite %s", resource)
	}
	return nil
}

// LoadVersion reads the set together with its version counter, which every write bumps.
func (s *RegistryStore) LoadVersion(ctx context.Context, resource string) ([]string, string, error) {
	var (
		members *redis.StringSliceCmd
		ver     *redis.StringCmd
	)
	_, err := s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members = pipe.SMembers(ctx, getRegistryKey(resource))
		ver = pipe.Get(ctx, getVersionKey(resource))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, "", types.Err(types.ErrPersistence, err, "load %s", resource)
	}
	version, err := ver.Result()
	if errors.Is(err, redis.Nil) {
		version = ""
	} else if err != nil {
		return nil, "", types.Err(types.ErrPersistence, err, "get version of %s", resource)
	}
	return trimMembers(members.Val()), version, nil
}

// SaveIfVersion WATCHes the version key, so a write landing between the check and EXEC aborts
// the transaction.
func (s *RegistryStore) SaveIfVersion(ctx context.Context, resource string, entries []string, version string) error {
	verKey := getVersionKey(resource)
	err := s.cli.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Result()
		if errors.Is(err, redis.Nil) {
			current = ""
		} else if err != nil {
			return err
		}
		if current != version {
			return types.Err(types.ErrConflict, nil, "%s is at version %q, not %q", resource, current, version)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			rewrite(ctx, pipe, resource, entries)
			return nil
		})
		return err
	}, verKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return types.Err(types.ErrConflict, err, "%s changed during write", resource)
	default:
		return types.Err(types.ErrPersistence, err, "rewrite %s", resource)
	}
}

func rewrite(ctx context.Context, pipe redis.Pipeliner, resource string, entries []string) {
	key := getRegistryKey(resource)
	members := make([]any, 0, len(entries))
	for _, e := range entries {
		members = append(members, e)
	}
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.SAdd(ctx, key, members...)
	}
	pipe.Incr(ctx, getVersionKey(resource))
}

func trimMembers(members []string) []string {
	entries := make([]string, 0, len(members))
	for _, m := range members {
		m = strings.TrimRight(m, " \t\r\n")
		if m != "" {
			entries = append(entries, m)
		}
	}
	return entries
}

// ClearAll removes every registry key. Used in tests only.
func (s *RegistryStore) ClearAll(ctx context.Context) error {
	out := s.cli.Keys(ctx, getRegistryKey("*"))
	if out.Err() != nil {
		return out.Err()
	}
	keys := out.Val()
	if len(keys) == 0 {
		return nil
	}
	log.WithField("keys", len(keys)).Debug("clearing registry keys")
	return s.cli.Del(ctx, keys...).Err()
}

func getRegistryKey(resource string) string {
	return fmt.Sprintf(registryKeyNameTemplate, resource)
}

func getVersionKey(resource string) string {
	return fmt.Sprintf(versionKeyNameTemplate, resource)
}
