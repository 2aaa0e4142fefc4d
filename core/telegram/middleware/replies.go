package middleware

import (
	tghelpers "github.com/m3rciful/mergebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// ReplyTally gives every update a fresh reply counter that handler
// summaries read through tghelpers.Replies.
func ReplyTally(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		tghelpers.ResetReplies(c)
		return next(c)
	}
}
