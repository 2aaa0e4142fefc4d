package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/mergebot/core/logger"
	"github.com/m3rciful/mergebot/core/state"
	tghelpers "github.com/m3rciful/mergebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// fakeContext implements the parts of tele.Context the middlewares touch.
type fakeContext struct {
	tele.Context
	user  *tele.User
	chat  *tele.Chat
	upd   tele.Update
	store map[string]any
	sent  []any
}

func newFakeContext(userID int64) *fakeContext {
	msg := &tele.Message{Text: "hi", Sender: &tele.User{ID: userID}, Chat: &tele.Chat{ID: userID}}
	return &fakeContext{
		user:  msg.Sender,
		chat:  msg.Chat,
		upd:   tele.Update{ID: 1, Message: msg},
		store: map[string]any{},
	}
}

func (f *fakeContext) Sender() *tele.User        { return f.user }
func (f *fakeContext) Chat() *tele.Chat          { return f.chat }
func (f *fakeContext) Update() tele.Update       { return f.upd }
func (f *fakeContext) Text() string              { return f.upd.Message.Text }
func (f *fakeContext) Get(key string) any        { return f.store[key] }
func (f *fakeContext) Set(key string, v any)     { f.store[key] = v }
func (f *fakeContext) Send(what any, opts ...any) error {
	f.sent = append(f.sent, what)
	return nil
}

func TestRateLimitMiddleware(t *testing.T) {
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(newFakeContext(1)))
	require.NoError(t, h(newFakeContext(1)))
	require.NoError(t, h(newFakeContext(2)))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, limited)
}

func TestRateLimitBurst(t *testing.T) {
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Burst:     2,
		OnLimited: func(c tele.Context) error { limited++; return c.Send("slow down") },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(newFakeContext(1)))
	require.NoError(t, h(newFakeContext(1)))
	third := newFakeContext(1)
	require.NoError(t, h(third))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, limited)
	assert.Equal(t, []any{"slow down"}, third.sent)
}

func TestRateLimitExcludesKinds(t *testing.T) {
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"message": {}},
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })
	for i := 0; i < 3; i++ {
		require.NoError(t, h(newFakeContext(1)))
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, "message", UpdateKind(newFakeContext(1).Update()))
	assert.Equal(t, "other", UpdateKind(tele.Update{}))
}

func TestAdminOnlyMiddleware(t *testing.T) {
	rejected := 0
	mw := AdminOnlyMiddleware(AdminOptions{
		AdminID:  7,
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(newFakeContext(7)))
	require.NoError(t, h(newFakeContext(8)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rejected)

	open := AdminOnlyMiddleware(AdminOptions{})(func(tele.Context) error { calls++; return nil })
	require.NoError(t, open(newFakeContext(7)))
	assert.Equal(t, 1, calls)
}

func TestRecoverMiddlewareReturnsError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(newFakeContext(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	sentinel := errors.New("plain")
	assert.ErrorIs(t, RecoverMiddleware(func(tele.Context) error { return sentinel })(newFakeContext(1)), sentinel)
}

func TestReplyTallyCountsQueuedReplies(t *testing.T) {
	tghelpers.SetDispatcher(nil)
	fc := newFakeContext(1)
	fc.store["replies"] = "stale"

	h := ReplyTally(func(c tele.Context) error {
		require.NoError(t, tghelpers.SendText(c, "a"))
		return tghelpers.SendMDV2(c, "b", &tele.ReplyMarkup{})
	})
	require.NoError(t, h(fc))

	msgs, kb := tghelpers.Replies(fc)
	assert.Equal(t, 2, msgs)
	assert.True(t, kb)
	assert.Len(t, fc.sent, 2)
}

type stateStub map[int64]state.State

func (s stateStub) GetState(chatID int64) state.State {
	if st, ok := s[chatID]; ok {
		return st
	}
	return state.StateIdle
}

func TestStateLoggerExposesState(t *testing.T) {
	fc := newFakeContext(5)
	var seen any
	h := StateLogger(stateStub{5: state.StateAwaitingName})(func(c tele.Context) error {
		seen = c.Get("state")
		return nil
	})
	require.NoError(t, h(fc))
	assert.Equal(t, "awaiting_name", seen)
}

func TestLoggerMiddlewareStoresCorrelation(t *testing.T) {
	fc := newFakeContext(5)
	var rid string
	h := LoggerMiddleware(func(c tele.Context) error {
		rid, _ = c.Get("rid").(string)
		return nil
	})
	require.NoError(t, h(fc))
	assert.Equal(t, "1:5:5", rid)

	ctx, ok := tghelpers.ContextFrom(fc)
	require.True(t, ok)
	assert.Equal(t, int64(5), logger.ChatIDFrom(ctx))
}

func TestSeenUpdatesExpire(t *testing.T) {
	s := &seenUpdates{ttl: time.Second, at: map[int]time.Time{}}
	now := time.Now()
	assert.True(t, s.first(1, now))
	assert.False(t, s.first(1, now.Add(500*time.Millisecond)))
	assert.True(t, s.first(1, now.Add(2*time.Second)))
}
