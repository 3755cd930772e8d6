package flow

import (
	"context"
	"errors"
	"fmt"
	"kwrelay/internal/registry"
	"kwrelay/internal/types"
	"sync"
)

func (s *UnitTestSuite) TestHelpIsUnauthenticated() {
	d := s.dispatcher()
	for _, name := range []string{"help", "/help", "start"} {
		res := d.Dispatch(context.Background(), cmd("stranger", name))
		s.Equal(HelpShown, res.State)
		s.Contains(res.Reply.Text, "/add_word")
		s.Contains(res.Reply.Text, "/list_users")
	}
}

func (s *UnitTestSuite) TestUnauthorizedSenderMutatesNothing() {
	ctx := context.Background()
	d := s.dispatcher()
	_, err := s.keywords.Add(ctx, "rocket")
	s.NoError(err)

	kwBefore, _ := s.store.Load(ctx, "keywords.txt")
	usersBefore, _ := s.store.Load(ctx, "users.txt")
	kwSaves, userSaves := s.store.Saves("keywords.txt"), s.store.Saves("users.txt")

	for _, c := range []types.Command{
		cmd("mallory", CmdAddWord, "moon"),
		cmd("mallory", CmdRemoveWord, "rocket"),
		cmd("mallory", CmdListWords),
		cmd("mallory", CmdAddUser, "mallory"),
		cmd("mallory", CmdRemoveUser, "admin"),
		cmd("mallory", CmdListUsers),
		cmd("", CmdAddWord, "moon"),
	} {
		res := d.Dispatch(ctx, c)
		s.Equal(Rejected, res.State, c.Name)
		s.ErrorIs(res.Err, types.ErrAuthorizationDenied)
		s.Equal(TextsFor(types.LocaleEN).Denied[c.Name], res.Reply.Text)
	}

	kwAfter, _ := s.store.Load(ctx, "keywords.txt")
	usersAfter, _ := s.store.Load(ctx, "users.txt")
	s.Equal(kwBefore, kwAfter)
	s.Equal(usersBefore, usersAfter)
	s.Equal(kwSaves, s.store.Saves("keywords.txt"))
	s.Equal(userSaves, s.store.Saves("users.txt"))
	s.Equal([]string{"rocket"}, s.keywords.List())
	s.Equal([]string{"admin"}, s.users.List())
}

func (s *UnitTestSuite) TestAuthorizationCheckedBeforeArguments() {
	res := s.dispatcher().Dispatch(context.Background(), cmd("mallory", CmdAddWord))
	s.Equal(Rejected, res.State)
}

func (s *UnitTestSuite) TestMissingArgument() {
	d := s.dispatcher()
	for _, name := range []string{CmdAddWord, CmdRemoveWord, CmdAddUser, CmdRemoveUser} {
		res := d.Dispatch(context.Background(), cmd("admin", name, "  ", ""))
		s.Equal(InvalidArgument, res.State, name)
		s.ErrorIs(res.Err, types.ErrInvalidArgument)
		s.Equal(TextsFor(types.LocaleEN).MissingArg[name], res.Reply.Text)
	}
	s.Empty(s.keywords.List())
}

func (s *UnitTestSuite) TestAddAndRemoveWord() {
	ctx := context.Background()
	d := s.dispatcher()

	res := d.Dispatch(ctx, cmd("ADMIN", CmdAddWord, "space", "x"))
	s.Equal(Confirmed, res.State)
	s.Equal("Keyword 'space x' added.", res.Reply.Text)
	s.Equal([]string{"space x"}, s.keywords.List())

	res = d.Dispatch(ctx, cmd("admin", CmdAddWord, "space", "x"))
	s.Equal(Confirmed, res.State)
	s.Equal("Keyword 'space x' is already in the list.", res.Reply.Text)

	res = d.Dispatch(ctx, cmd("admin", CmdRemoveWord, "moon"))
	s.Equal(NotFound, res.State)
	s.ErrorIs(res.Err, types.ErrNotFound)
	s.Equal("Keyword 'moon' was not found in the list.", res.Reply.Text)

	res = d.Dispatch(ctx, cmd("admin", CmdRemoveWord, "space", "x"))
	s.Equal(Confirmed, res.State)
	s.Equal("Keyword 'space x' removed.", res.Reply.Text)
	s.Empty(s.keywords.List())

	persisted, err := s.store.Load(ctx, "keywords.txt")
	s.NoError(err)
	s.Empty(persisted)
}

func (s *UnitTestSuite) TestListWords() {
	ctx := context.Background()
	d := s.dispatcher()

	res := d.Dispatch(ctx, cmd("admin", CmdListWords))
	s.Equal(Confirmed, res.State)
	s.Equal("The keyword list is empty.", res.Reply.Text)

	d.Dispatch(ctx, cmd("admin", CmdAddWord, "rocket"))
	d.Dispatch(ctx, cmd("admin", CmdAddWord, "moon"))
	res = d.Dispatch(ctx, cmd("admin", CmdListWords, "ignored"))
	s.Equal("Keywords:\nmoon\nrocket", res.Reply.Text)
}

func (s *UnitTestSuite) TestUserCommands() {
	ctx := context.Background()
	d := s.dispatcher()

	res := d.Dispatch(ctx, cmd("admin", CmdAddUser, "Alice"))
	s.Equal(Confirmed, res.State)
	s.Equal("User 'Alice' added.", res.Reply.Text)
	s.True(s.users.IsAuthorized(ctx, "alice"))
	s.True(s.users.IsAuthorized(ctx, "ALICE"))

	// the new user can now mutate
	res = d.Dispatch(ctx, cmd("alice", CmdAddWord, "rocket"))
	s.Equal(Confirmed, res.State)

	res = d.Dispatch(ctx, cmd("admin", CmdListUsers))
	s.Equal("Authorized users:\nadmin\nalice", res.Reply.Text)

	res = d.Dispatch(ctx, cmd("admin", CmdRemoveUser, "nobody"))
	s.Equal(NotFound, res.State)
	s.Equal("User 'nobody' was not found in the list.", res.Reply.Text)
}

func (s *UnitTestSuite) TestRemoveUserTouchesOnlyUsers() {
	ctx := context.Background()
	d := s.dispatcher()
	d.Dispatch(ctx, cmd("admin", CmdAddWord, "alice"))
	d.Dispatch(ctx, cmd("admin", CmdAddUser, "alice"))

	res := d.Dispatch(ctx, cmd("admin", CmdRemoveUser, "ALICE"))
	s.Equal(Confirmed, res.State)
	s.False(s.users.IsAuthorized(ctx, "alice"))
	s.Equal([]string{"alice"}, s.keywords.List())
}

func (s *UnitTestSuite) TestSaveFailureIsReported() {
	ctx := context.Background()
	d := s.dispatcher()
	s.store.FailWith(errors.New("no space left on device"))

	res := d.Dispatch(ctx, cmd("admin", CmdAddWord, "rocket"))
	s.Equal(SaveFailed, res.State)
	s.ErrorIs(res.Err, types.ErrPersistence)
	s.Equal(TextsFor(types.LocaleEN).SaveFailed, res.Reply.Text)
	s.Empty(s.keywords.List())

	// other commands keep being served
	res = d.Dispatch(ctx, cmd("admin", CmdListWords))
	s.Equal(Confirmed, res.State)
}

func (s *UnitTestSuite) TestUnknownCommand() {
	res := s.dispatcher().Dispatch(context.Background(), cmd("admin", "launch"))
	s.Equal(UnknownCommand, res.State)
	s.Equal(TextsFor(types.LocaleEN).Unknown, res.Reply.Text)
}

func (s *UnitTestSuite) TestRussianTexts() {
	d := NewDispatcher(s.keywords, s.users, TextsFor(types.LocaleRU))
	res := d.Dispatch(context.Background(), cmd("admin", CmdAddWord, "ракета"))
	s.Equal("Ключевое слово 'ракета' добавлено.", res.Reply.Text)
	res = d.Dispatch(context.Background(), cmd("nobody", CmdListUsers))
	s.Equal("У вас нет прав для получения списка пользователей.", res.Reply.Text)
}

func (s *UnitTestSuite) TestConcurrentAddWord() {
	ctx := context.Background()
	d := s.dispatcher()
	const n = 50
	var wg sync.WaitGroup
	states := make(chan State, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			states <- d.Dispatch(ctx, cmd("admin", CmdAddWord, fmt.Sprintf("kw%d", i))).State
		}(i)
	}
	wg.Wait()
	close(states)
	for st := range states {
		s.Equal(Confirmed, st)
	}
	s.Len(s.keywords.List(), n)
	persisted, err := s.store.Load(ctx, "keywords.txt")
	s.NoError(err)
	s.Len(persisted, n)
}

func (s *UnitTestSuite) TestCommandName() {
	s.Equal("add_word", CommandName("/Add_Word@relay_bot"))
	s.Equal("list_users", CommandName("!list_users"))
	s.Equal("help", CommandName(" help "))
	s.True(IsKnownCommand("remove_user"))
	s.False(IsKnownCommand("launch"))
}

func (s *UnitTestSuite) TestParseCommand() {
	c, ok := ParseCommand("!add_word  big   rocket ", "!")
	s.True(ok)
	s.Equal("add_word", c.Name)
	s.Equal([]string{"big", "rocket"}, c.Args)

	_, ok = ParseCommand("add_word rocket", "!/")
	s.False(ok)
	_, ok = ParseCommand("!", "!")
	s.False(ok)
	_, ok = ParseCommand("", "!")
	s.False(ok)
}

func (s *UnitTestSuite) TestDispatchersSharingAStore() {
	ctx := context.Background()
	keywords, err := registry.OpenKeywords(ctx, s.store, "keywords.txt")
	s.Require().NoError(err)
	users, err := registry.OpenUsers(ctx, s.store, "users.txt")
	s.Require().NoError(err)
	first := s.dispatcher()
	second := NewDispatcher(keywords, users, TextsFor(types.LocaleEN))

	s.Equal(Confirmed, first.Dispatch(ctx, cmd("admin", CmdAddWord, "rocket")).State)
	s.Equal(Confirmed, second.Dispatch(ctx, cmd("admin", CmdAddWord, "moon")).State)
	s.Equal(Confirmed, first.Dispatch(ctx, cmd("admin", CmdAddUser, "alice")).State)

	persisted, err := s.store.Load(ctx, "keywords.txt")
	s.NoError(err)
	s.Equal([]string{"moon", "rocket"}, persisted)

	// both instances answer from the shared set
	for _, d := range []*Dispatcher{first, second} {
		res := d.Dispatch(ctx, cmd("alice", CmdListWords))
		s.Equal(Confirmed, res.State)
		s.Equal("Keywords:\nmoon\nrocket", res.Reply.Text)
	}

	s.Equal(Confirmed, second.Dispatch(ctx, cmd("admin", CmdRemoveUser, "alice")).State)
	s.Equal(Rejected, first.Dispatch(ctx, cmd("alice", CmdAddWord, "comet")).State)
}

func (s *UnitTestSuite) TestConcurrentDispatchersSharingAStore() {
	ctx := context.Background()
	keywords, err := registry.OpenKeywords(ctx, s.store, "keywords.txt")
	s.Require().NoError(err)
	users, err := registry.OpenUsers(ctx, s.store, "users.txt")
	s.Require().NoError(err)
	dispatchers := []*Dispatcher{s.dispatcher(), NewDispatcher(keywords, users, TextsFor(types.LocaleEN))}

	const n = 40
	var wg sync.WaitGroup
	states := make(chan State, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			states <- dispatchers[i%2].Dispatch(ctx, cmd("admin", CmdAddWord, fmt.Sprintf("kw%d", i))).State
		}(i)
	}
	wg.Wait()
	close(states)
	for st := range states {
		s.Equal(Confirmed, st)
	}
	persisted, err := s.store.Load(ctx, "keywords.txt")
	s.NoError(err)
	s.Len(persisted, n)
}
