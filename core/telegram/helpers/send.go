package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/mergebot/core/logger"
	"github.com/m3rciful/mergebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes helper sends through d; nil makes them synchronous.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// enqueue hands run to the dispatcher. With no dispatcher, or when its queue
// cannot take the job, run is called inline instead.
func enqueue(c tele.Context, action, endpoint string, run func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, action, endpoint, run)
	if !errors.Is(err, sender.ErrQueueFull) && !errors.Is(err, sender.ErrQueueClosed) {
		return err
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "queue.fallback",
		slog.String("action", action),
		slog.String("endpoint", endpoint),
		slog.String("err", err.Error()),
	)
	return run()
}

// SendText queues text without a parse mode. Only the first opts is used.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var so *tele.SendOptions
	if len(opts) > 0 && opts[0] != nil {
		so = opts[0]
	}
	err := enqueue(c, "send.text", "sendMessage", func() error {
		if so == nil {
			return c.Send(text)
		}
		return c.Send(text, so)
	})
	if err == nil {
		RecordReplies(c, 1, so != nil && so.ReplyMarkup != nil)
	}
	return err
}

// SendMDV2 queues text already escaped for MarkdownV2.
func SendMDV2(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	so := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}
	if len(markup) > 0 {
		so.ReplyMarkup = markup[0]
	}
	return SendText(c, text, so)
}

// Step is one outbound call of a SendSequence.
type Step func() error

// SendSequence delivers steps in order as a single dispatcher job so replies
// to one update never overtake each other. A retried job resumes at the
// step that failed. Each step counts as one reply; keyboard is recorded as is.
func SendSequence(c tele.Context, action string, keyboard bool, steps ...Step) error {
	if len(steps) == 0 {
		return nil
	}
	next := 0
	err := enqueue(c, action, "sequence", func() error {
		for next < len(steps) {
			if err := steps[next](); err != nil {
				return err
			}
			next++
		}
		return nil
	})
	if err == nil {
		RecordReplies(c, len(steps), keyboard)
	}
	return err
}
