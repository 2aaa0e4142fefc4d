package middleware

import (
	"log/slog"

	"github.com/m3rciful/mergebot/core/logger"
	tghelpers "github.com/m3rciful/mergebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions names the admin and what rejected callers get.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether u is the configured admin. An unset AdminID
// matches nobody.
func (o AdminOptions) IsAdmin(u *tele.User) bool {
	return o.AdminID != 0 && u != nil && u.ID == o.AdminID
}

// AdminOnlyMiddleware lets only the configured admin reach next.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.IsAdmin(c.Sender()) {
				return next(c)
			}
			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "tg.access",
				slog.String("status", "skip"),
				slog.String("cause", "not_admin"),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
