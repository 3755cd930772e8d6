package registry

import (
	"context"
	"kwrelay/internal/ports"
	"kwrelay/internal/types"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Users is the whitelist of usernames allowed to run mutating commands. Usernames are stored
// lower-cased without a leading "@".
type Users struct {
	*Registry
}

func OpenUsers(ctx context.Context, store ports.RegistryStore, resource string) (*Users, error) {
	r, err := Open(ctx, store, resource, NormalizeUsername)
	if err != nil {
		return nil, err
	}
	return &Users{Registry: r}, nil
}

func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

// IsAuthorized compares username case-insensitively against the whitelist. Senders without a
// username are never authorized. A stale cache is refreshed first, so a user removed by
// another process loses access once the max age has passed.
func (u *Users) IsAuthorized(ctx context.Context, username string) bool {
	if NormalizeUsername(username) == "" {
		return false
	}
	_ = u.Refresh(ctx)
	return u.Contains(username)
}

// Seed adds every username that is not yet present and returns how many were added.
func (u *Users) Seed(ctx context.Context, usernames []string) (int, error) {
	added := 0
	for _, name := range usernames {
		if NormalizeUsername(name) == "" {
			continue
		}
		out, err := u.Add(ctx, name)
		if err != nil {
			return added, err
		}
		if out == types.Added {
			added++
		}
	}
	if added > 0 {
		log.WithFields(log.Fields{"resource": u.Resource(), "added": added}).Info("seeded authorized users")
	}
	return added, nil
}
