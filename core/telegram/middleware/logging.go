package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/mergebot/core/logger"
	tghelpers "github.com/m3rciful/mergebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers update IDs for ttl. The logger runs both globally and
// on each route, so the receipt line is written only once per update.
type seenUpdates struct {
	mu  sync.Mutex
	ttl time.Duration
	at  map[int]time.Time
}

var receipts = &seenUpdates{ttl: 10 * time.Second, at: map[int]time.Time{}}

// first reports whether id is seen for the first time within ttl.
func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.at {
		if now.Sub(t) > s.ttl {
			delete(s.at, k)
		}
	}
	if _, ok := s.at[id]; ok {
		return false
	}
	s.at[id] = now
	return true
}

// LoggerMiddleware stores the correlation context of the update and logs a
// sampled update.received line.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.NewUpdateContext(c)
		upd := c.Update()
		if logger.ShouldSampleDebug() && receipts.first(upd.ID, time.Now()) {
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", receiptAttrs(upd.Message, c.Sender(), c.Chat())...)
		}
		return next(c)
	}
}

func receiptAttrs(msg *tele.Message, user *tele.User, chat *tele.Chat) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}
	if msg == nil {
		return attrs
	}
	attrs = append(attrs, slog.String("kind", tghelpers.ContentKind(msg)))
	if msg.Text != "" {
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(msg.Text, 256)))
	}
	if msg.Document != nil && msg.Document.MIME != "" {
		attrs = append(attrs, slog.String("mime", msg.Document.MIME))
	}
	return attrs
}
