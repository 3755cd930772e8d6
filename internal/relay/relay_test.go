package relay

import (
	"context"
	"errors"
	"kwrelay/internal/backends/memory"
	"kwrelay/internal/types"
	"testing"

	"github.com/stretchr/testify/suite"
)

type RelayTestSuite struct {
	suite.Suite

	store *memory.Store
	cfg   types.Config
	sent  []types.Notification
}

func (s *RelayTestSuite) Publish(ctx context.Context, target string, n types.Notification) error {
	s.Equal(s.cfg.TargetGroup, target)
	s.sent = append(s.sent, n)
	return nil
}

func TestRelayTestSuite(t *testing.T) {
	suite.Run(t, new(RelayTestSuite))
}

func (s *RelayTestSuite) SetupTest() {
	s.store = memory.NewStore()
	s.sent = nil
	s.cfg = types.DefaultConfig()
	s.cfg.Token = "t"
	s.cfg.TargetGroup = "-100"
	s.cfg.SeedUsers = []string{"@Admin", "ops"}
}

func (s *RelayTestSuite) TestNewSeedsAndLoads() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.cfg.KeywordsResource, []string{"rocket"}))
	s.Require().NoError(s.store.Save(ctx, s.cfg.UsersResource, []string{"ops"}))

	r, err := New(ctx, s.cfg, s.store, s)
	s.Require().NoError(err)
	s.Equal([]string{"rocket"}, r.Keywords.List())
	s.Equal([]string{"admin", "ops"}, r.Users.List())

	saved, err := s.store.Load(ctx, s.cfg.UsersResource)
	s.NoError(err)
	s.Equal([]string{"admin", "ops"}, saved)
}

func (s *RelayTestSuite) TestCommandThenMatch() {
	ctx := context.Background()
	r, err := New(ctx, s.cfg, s.store, s)
	s.Require().NoError(err)

	reply := r.Dispatcher.Handle(ctx, types.Command{Name: "add_word", Args: []string{"Moon"}, Username: "admin"})
	s.Equal("Keyword 'Moon' added.", reply.Text)

	n, err := r.Matcher.Handle(ctx, types.ChatMessage{Text: "to the moon", Username: "bob", Chat: types.Chat{ID: "1", Title: "Space"}})
	s.NoError(err)
	s.Require().NotNil(n)
	s.Len(s.sent, 1)
}

func (s *RelayTestSuite) TestLocale() {
	s.cfg.Locale = types.LocaleRU
	r, err := New(context.Background(), s.cfg, s.store, s)
	s.Require().NoError(err)

	reply := r.Dispatcher.Handle(context.Background(), types.Command{Name: "add_word", Username: "stranger"})
	s.NotEqual("You are not permitted to add keywords.", reply.Text)
	s.NotEmpty(reply.Text)
}

func (s *RelayTestSuite) TestStoreFailure() {
	s.store.FailWith(errors.New("disk gone"))
	_, err := New(context.Background(), s.cfg, s.store, s)
	s.ErrorIs(err, types.ErrPersistence)
}

func (s *RelayTestSuite) TestInstancesSharingAStore() {
	ctx := context.Background()
	s.cfg.RegistryRefreshSeconds = 0
	first, err := New(ctx, s.cfg, s.store, s)
	s.Require().NoError(err)
	second, err := New(ctx, s.cfg, s.store, s)
	s.Require().NoError(err)

	first.Dispatcher.Handle(ctx, types.Command{Name: "add_word", Args: []string{"rocket"}, Username: "admin"})
	second.Dispatcher.Handle(ctx, types.Command{Name: "add_word", Args: []string{"moon"}, Username: "ops"})

	saved, err := s.store.Load(ctx, s.cfg.KeywordsResource)
	s.NoError(err)
	s.Equal([]string{"moon", "rocket"}, saved)

	n, err := first.Matcher.Handle(ctx, types.ChatMessage{Text: "moon landing", Username: "bob", Chat: types.Chat{ID: "1", Title: "Space"}})
	s.NoError(err)
	s.Require().NotNil(n)
	s.Len(s.sent, 1)
}
