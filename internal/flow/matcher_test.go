package flow

import (
	"context"
	"errors"
	"kwrelay/internal/types"
	"time"
)

const testTarget = "-1001234567890"

func msg(user, text string) types.ChatMessage {
	return types.ChatMessage{Text: text, Username: user, Chat: types.Chat{ID: "-200", Title: "Space fans"}}
}

func (s *UnitTestSuite) TestMatcherForwardsOnMatch() {
	ctx := context.Background()
	_, err := s.keywords.Add(ctx, "world")
	s.NoError(err)

	var target string
	s.publisher.SetOnPublish(func(ctx context.Context, t string, n types.Notification) error {
		target = t
		return nil
	})
	m := NewMatcher(s.keywords, s.publisher, testTarget, 0)

	n, err := m.Handle(ctx, msg("bob", "Hello WORLD"))
	s.NoError(err)
	s.Require().NotNil(n)
	s.Equal(testTarget, target)
	s.Equal("Space fans", n.ChatTitle)
	s.Equal("bob", n.Username)
	s.Equal("Hello WORLD", n.Text)
	s.Equal([]string{"world"}, n.Keywords)
	s.NotEmpty(n.ID)

	n, err = m.Handle(ctx, msg("bob", "goodbye"))
	s.NoError(err)
	s.Nil(n)
	s.Len(s.publisher.Sent(), 1)
}

func (s *UnitTestSuite) TestMatcherEmptyKeywordSetNeverForwards() {
	m := NewMatcher(s.keywords, s.publisher, testTarget, 0)
	n, err := m.Handle(context.Background(), msg("bob", "anything"))
	s.NoError(err)
	s.Nil(n)
	s.Empty(s.publisher.Sent())
}

func (s *UnitTestSuite) TestMatcherPublishError() {
	ctx := context.Background()
	_, err := s.keywords.Add(ctx, "rocket")
	s.NoError(err)
	s.publisher.SetOnPublish(func(ctx context.Context, t string, n types.Notification) error {
		return errors.New("target unreachable")
	})
	m := NewMatcher(s.keywords, s.publisher, testTarget, time.Minute)

	n, err := m.Handle(ctx, msg("bob", "rocket"))
	s.Error(err)
	s.Nil(n)

	// a failed forward does not poison the dedup cache
	s.publisher.SetOnPublish(nil)
	n, err = m.Handle(ctx, msg("bob", "rocket"))
	s.NoError(err)
	s.NotNil(n)
}

func (s *UnitTestSuite) TestMatcherDedupWindow() {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	SetTimNowFn(func() time.Time { return now })
	_, err := s.keywords.Add(ctx, "rocket")
	s.NoError(err)
	m := NewMatcher(s.keywords, s.publisher, testTarget, 30*time.Second)

	n, err := m.Handle(ctx, msg("bob", "rocket launch"))
	s.NoError(err)
	s.NotNil(n)
	s.Equal(now.UTC(), n.At)

	n, err = m.Handle(ctx, msg("bob", "rocket launch"))
	s.NoError(err)
	s.Nil(n, "same sender/chat/text inside the window is suppressed")

	n, err = m.Handle(ctx, msg("carol", "rocket launch"))
	s.NoError(err)
	s.NotNil(n)

	now = now.Add(31 * time.Second)
	n, err = m.Handle(ctx, msg("bob", "rocket launch"))
	s.NoError(err)
	s.NotNil(n)
	s.Len(s.publisher.Sent(), 3)
}

// TestEndToEnd follows an authorized user adding a keyword and an unauthorized user's chat
// messages being forwarded or not.
func (s *UnitTestSuite) TestEndToEnd() {
	ctx := context.Background()
	d := s.dispatcher()
	m := NewMatcher(s.keywords, s.publisher, testTarget, 0)
	s.Empty(s.keywords.List())

	res := d.Dispatch(ctx, cmd("admin", CmdAddWord, "rocket"))
	s.Equal(Confirmed, res.State)
	s.Equal([]string{"rocket"}, s.keywords.List())

	n, err := m.Handle(ctx, msg("random_user", "I love my Rocket ship"))
	s.NoError(err)
	s.Require().NotNil(n)
	s.Equal("I love my Rocket ship", n.Text)
	s.Equal("Chat name: Space fans\n\nFrom username: random_user\n\nMessage: I love my Rocket ship", n.Format())

	n, err = m.Handle(ctx, msg("random_user", "I love dogs"))
	s.NoError(err)
	s.Nil(n)
	s.Len(s.publisher.Sent(), 1)
}

func (s *UnitTestSuite) TestComputeKey() {
	s.Equal(ComputeKey("a", "b"), ComputeKey("a", "b"))
	s.NotEqual(ComputeKey("ab", ""), ComputeKey("a", "b"))
}
