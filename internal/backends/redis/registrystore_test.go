package redis

import (
	"context"
	"kwrelay/internal/types"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

// RedisStoreTestSuite needs a disposable Redis at TEST_REDIS_ADDR (e.g. localhost:46379).
type RedisStoreTestSuite struct {
	suite.Suite

	store *RegistryStore
}

func TestRedisStoreTestSuite(t *testing.T) {
	if os.Getenv("TEST_REDIS_ADDR") == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	suite.Run(t, new(RedisStoreTestSuite))
}

func (s *RedisStoreTestSuite) SetupSuite() {
	cli := redis.NewClient(&redis.Options{Addr: os.Getenv("TEST_REDIS_ADDR")})
	s.Require().NoError(cli.Ping(context.Background()).Err())
	s.store = NewRegistryStore(cli)
}

func (s *RedisStoreTestSuite) SetupTest() {
	s.NoError(s.store.ClearAll(context.Background()))
}

func (s *RedisStoreTestSuite) TestLoadMissingIsEmpty() {
	entries, err := s.store.Load(context.Background(), "keywords.txt")
	s.NoError(err)
	s.Empty(entries)
}

func (s *RedisStoreTestSuite) TestSaveReplacesSet() {
	ctx := context.Background()
	s.NoError(s.store.Save(ctx, "keywords.txt", []string{"rocket", "moon"}))
	s.NoError(s.store.Save(ctx, "keywords.txt", []string{"moon", "mars"}))

	entries, err := s.store.Load(ctx, "keywords.txt")
	s.NoError(err)
	s.ElementsMatch([]string{"moon", "mars"}, entries)

	s.NoError(s.store.Save(ctx, "keywords.txt", nil))
	entries, err = s.store.Load(ctx, "keywords.txt")
	s.NoError(err)
	s.Empty(entries)
}

func (s *RedisStoreTestSuite) TestResourcesAreIndependent() {
	ctx := context.Background()
	s.NoError(s.store.Save(ctx, "keywords.txt", []string{"rocket"}))
	s.NoError(s.store.Save(ctx, "users.txt", []string{"alice"}))

	kw, err := s.store.Load(ctx, "keywords.txt")
	s.NoError(err)
	s.Equal([]string{"rocket"}, kw)
}

func (s *RedisStoreTestSuite) TestSaveIfVersion() {
	ctx := context.Background()
	entries, version, err := s.store.LoadVersion(ctx, "keywords.txt")
	s.NoError(err)
	s.Empty(entries)
	s.Empty(version)

	s.NoError(s.store.SaveIfVersion(ctx, "keywords.txt", []string{"rocket"}, version))
	s.ErrorIs(s.store.SaveIfVersion(ctx, "keywords.txt", []string{"moon"}, version), types.ErrConflict)

	entries, next, err := s.store.LoadVersion(ctx, "keywords.txt")
	s.NoError(err)
	s.Equal([]string{"rocket"}, entries)
	s.NotEqual(version, next)

	// unconditional writes move the version too
	s.NoError(s.store.Save(ctx, "keywords.txt", []string{"comet"}))
	s.ErrorIs(s.store.SaveIfVersion(ctx, "keywords.txt", []string{"moon"}, next), types.ErrConflict)
}
