package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/mergebot/core/compositor"
	"github.com/m3rciful/mergebot/core/logger"
	tghelpers "github.com/m3rciful/mergebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

type fakeContext struct {
	tele.Context
	store map[string]any
}

func (f *fakeContext) Get(key string) any    { return f.store[key] }
func (f *fakeContext) Set(key string, v any) { f.store[key] = v }
func (f *fakeContext) Update() tele.Update   { return tele.Update{ID: 9} }
func (f *fakeContext) Sender() *tele.User    { return &tele.User{ID: 1} }
func (f *fakeContext) Chat() *tele.Chat      { return &tele.Chat{ID: 1} }

func TestHandlerName(t *testing.T) {
	assert.Equal(t, "start", handlerName("/start"))
	assert.Equal(t, "создать_картинку", handlerName(" Создать картинку "))
	assert.Equal(t, "unknown", handlerName("/"))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "DECODE_FAILED", errorCode(&compositor.DecodeError{Err: errors.New("x")}))
	assert.Equal(t, "ERRORSTRING", errorCode(errors.New("plain")))
}

func TestServePropagatesErrorAndTagsHandler(t *testing.T) {
	fc := &fakeContext{store: map[string]any{}}
	tghelpers.ResetReplies(fc)
	boom := errors.New("boom")

	err := serve(fc, "conversation.text", func() error {
		tghelpers.RecordReplies(fc, 2, true)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ctx, ok := tghelpers.ContextFrom(fc)
	assert.True(t, ok)
	assert.Equal(t, "conversation.text", logger.HandlerFrom(ctx))
	msgs, kb := tghelpers.Replies(fc)
	assert.Equal(t, 2, msgs)
	assert.True(t, kb)
	assert.NoError(t, skip(fc, "unexpected_media"))
}
