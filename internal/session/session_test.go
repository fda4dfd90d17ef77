package session_test

import (
	"testing"

	"github.com/jroosing/chaingate/internal/session"
	"github.com/stretchr/testify/assert"
)

type alwaysAllow struct{}

func (alwaysAllow) Allow() bool { return true }

func TestSession_SendBeforeClose(t *testing.T) {
	s := session.New("s1", alwaysAllow{})
	ok := s.Send([]byte("hello"))
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), <-s.Outbound())
}

func TestSession_SendAfterCloseDropsFrame(t *testing.T) {
	s := session.New("s1", alwaysAllow{})
	s.Close()
	ok := s.Send([]byte("too late"))
	assert.False(t, ok)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := session.New("s1", alwaysAllow{})
	assert.NotPanics(t, func() {
		s.Close()
		s.Close()
	})
	assert.True(t, s.IsClosed())
}

func TestSession_SubscriptionTracking(t *testing.T) {
	s := session.New("s1", alwaysAllow{})
	s.MarkSubscribed(session.FeedHeadState)
	s.MarkSubscribed(session.FeedWitnesses)
	assert.ElementsMatch(t, []session.Feed{session.FeedHeadState, session.FeedWitnesses}, s.Subscriptions())

	s.MarkUnsubscribed(session.FeedHeadState)
	assert.ElementsMatch(t, []session.Feed{session.FeedWitnesses}, s.Subscriptions())
}

func TestParseFeed(t *testing.T) {
	f, ok := session.ParseFeed("full-blocks")
	assert.True(t, ok)
	assert.Equal(t, session.FeedFullBlocks, f)

	_, ok = session.ParseFeed("not-a-feed")
	assert.False(t, ok)
}
