package middleware

import (
	"log/slog"

	"github.com/m3rciful/mergebot/core/logger"
	"github.com/m3rciful/mergebot/core/state"
	tghelpers "github.com/m3rciful/mergebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// StateGetter is the read side of the session store.
type StateGetter interface {
	GetState(chatID int64) state.State
}

// StateLogger records the chat's committed conversation state before the
// handler runs and exposes it to downstream handlers under "state".
func StateLogger(mgr StateGetter) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if mgr == nil || chat == nil {
				return next(c)
			}
			current := mgr.GetState(chat.ID)
			c.Set("state", string(current))
			if logger.ShouldSampleDebug() {
				ctx := tghelpers.BuildContext(c)
				logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "fsm.state",
					slog.Int64("chat_id", chat.ID),
					slog.String("state", string(current)),
				)
			}
			return next(c)
		}
	}
}
