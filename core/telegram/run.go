package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/mergebot/core/config"
	"github.com/m3rciful/mergebot/core/logger"
	tghelpers "github.com/m3rciful/mergebot/core/telegram/helpers"
	"github.com/m3rciful/mergebot/core/telegram/netutil"
	tgsender "github.com/m3rciful/mergebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const shutdownTimeout = 10 * time.Second

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a telebot endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	// Dispatcher overrides the one built from DispatcherOptions.
	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is handed to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot and serves updates until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config provided")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	pollTimeout := longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds)
	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook:                WebhookOptions{Listen: cfg.Webhook.Listen, Port: cfg.Webhook.Port, URL: cfg.Webhook.URL},
	})

	started := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  BuildHTTPClient(pollTimeout),
		OnError: logUnhandledError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	logMode(ctx, poller, time.Since(started))

	if _, polling := poller.(*tele.LongPoller); polling && !opts.DisableWebhookCleanup {
		clearWebhook(ctx, bot)
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	InitBotCommands(bot, reg)

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	if !opts.DisableHelperDispatcher {
		tghelpers.SetDispatcher(dispatcher)
	}
	release := func() {
		dispatcher.Close()
		if !opts.DisableHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			release()
			return err
		}
	}

	serve(ctx, bot)

	var stopErr error
	if opts.OnStop != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		stopErr = opts.OnStop(stopCtx, rt)
		cancel()
	}
	// Queued replies are flushed after the poller stops.
	release()
	return stopErr
}

// serve runs the poller until ctx is done or the bot stops on its own.
func serve(ctx context.Context, bot *tele.Bot) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
	case <-done:
	}
}

func logMode(ctx context.Context, poller tele.Poller, took time.Duration) {
	attrs := []slog.Attr{slog.Duration("duration", took)}
	switch p := poller.(type) {
	case *tele.Webhook:
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		)
	case *tele.LongPoller:
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Int("timeout_seconds", int(p.Timeout/time.Second)),
		)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "bot.mode", attrs...)
}

// clearWebhook drops a webhook left by an earlier deployment; Telegram
// refuses getUpdates while one is set.
func clearWebhook(ctx context.Context, bot *tele.Bot) {
	if err := bot.RemoveWebhook(); err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "webhook.delete",
			slog.String("status", "fail"),
			slog.String("err", netutil.Redact(err)),
		)
		return
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "webhook.delete", slog.String("status", "ok"))
}

// logUnhandledError receives errors that escaped every handler.
func logUnhandledError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelError, "handler.unhandled",
		slog.String("status", "fail"),
		slog.String("err", netutil.Redact(err)),
	)
}
