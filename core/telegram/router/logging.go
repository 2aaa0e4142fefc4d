package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/mergebot/core/logger"
	tghelpers "github.com/m3rciful/mergebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// serve runs fn under the handler name and logs one handler.handled line
// with the replies it queued.
func serve(c tele.Context, name string, fn func() error) error {
	start := time.Now()
	tghelpers.WithHandler(c, name)
	err := fn()
	status := "ok"
	if err != nil {
		status = "fail"
	}
	summarize(c, name, status, start, err)
	return err
}

// skip logs an update no handler was wired for.
func skip(c tele.Context, name string) error {
	summarize(c, name, "skip", time.Now(), nil)
	return nil
}

func summarize(c tele.Context, name, status string, start time.Time, err error) {
	ctx := tghelpers.WithHandler(c, name)
	msgs, kb := tghelpers.Replies(c)
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "handler.handled", attrs...)
}

// handlerName turns a command endpoint or alias into a log-friendly name.
func handlerName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// errorCode prefers an explicit Code() and falls back to the error's type.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	if i := strings.LastIndexByte(t, '.'); i >= 0 {
		t = t[i+1:]
	}
	return strings.ToUpper(t)
}
