package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/mergebot/core/logger"
	tghelpers "github.com/m3rciful/mergebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	// Interval is the steady gap between two updates of one user.
	Interval time.Duration
	// Burst is how many updates may arrive back to back. Values below 1 mean 1.
	Burst int
	// Exclude lists UpdateKind values that bypass the limit.
	Exclude map[string]struct{}
	// OnLimited answers an update that was dropped.
	OnLimited tele.HandlerFunc
}

// UpdateKind maps an update to the names accepted by rate_limit.exclude_updates.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	default:
		return "other"
	}
}

// userLimiters hands out one token bucket per user and forgets users idle
// for more than ten intervals.
type userLimiters struct {
	mu       sync.Mutex
	every    time.Duration
	burst    int
	limiters map[int64]*rate.Limiter
	lastSeen map[int64]time.Time
}

func (u *userLimiters) allow(userID int64, now time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	lim, ok := u.limiters[userID]
	if !ok {
		for id, seen := range u.lastSeen {
			if now.Sub(seen) > 10*u.every {
				delete(u.lastSeen, id)
				delete(u.limiters, id)
			}
		}
		lim = rate.NewLimiter(rate.Every(u.every), u.burst)
		u.limiters[userID] = lim
	}
	u.lastSeen[userID] = now
	return lim.AllowN(now, 1)
}

// RateLimitMiddleware drops updates that arrive faster than opts.Interval
// per user once the burst is spent. OnLimited, if set, runs instead of the
// handler.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	users := &userLimiters{
		every:    opts.Interval,
		burst:    max(opts.Burst, 1),
		limiters: map[int64]*rate.Limiter{},
		lastSeen: map[int64]time.Time{},
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[UpdateKind(c.Update())]; skip {
				return next(c)
			}
			if users.allow(user.ID, time.Now()) {
				return next(c)
			}
			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.Int64("user_id", user.ID),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}
