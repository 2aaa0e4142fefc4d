// Package app assembles the merge bot from configuration.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/m3rciful/mergebot/core/bootstrap"
	"github.com/m3rciful/mergebot/core/compositor"
	coreconfig "github.com/m3rciful/mergebot/core/config"
	"github.com/m3rciful/mergebot/core/conversation"
	"github.com/m3rciful/mergebot/core/history"
	"github.com/m3rciful/mergebot/core/logger"
	"github.com/m3rciful/mergebot/core/metrics"
	"github.com/m3rciful/mergebot/core/placement"
	"github.com/m3rciful/mergebot/core/state"
	coretelegram "github.com/m3rciful/mergebot/core/telegram"
	"github.com/m3rciful/mergebot/core/telegram/bot"
	"github.com/m3rciful/mergebot/core/telegram/middleware"
	"github.com/m3rciful/mergebot/core/telegram/router"
	tgsender "github.com/m3rciful/mergebot/core/telegram/sender"
)

// App owns every long-lived component of a running bot.
type App struct {
	cfg       *coreconfig.Config
	infra     *bootstrap.Result
	sessions  state.Manager
	comp      *compositor.Compositor
	ctrl      *conversation.Controller
	handler   *bot.Handler
	registry  *coretelegram.Registry
	collector *metrics.Collectors
	promReg   *prometheus.Registry
	server    *metrics.Server
}

// Options swaps infrastructure in tests. The zero value uses real services.
type Options struct {
	Bootstrap bootstrap.Options
}

// New initializes logging and storage, then wires the conversation and the
// Telegram handler.
func New(ctx context.Context, cfg *coreconfig.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	bopts := opts.Bootstrap
	bopts.Config = cfg
	infra, err := bootstrap.Run(ctx, bopts)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		infra:    infra,
		sessions: state.NewMemoryManager(),
		registry: coretelegram.NewRegistry(),
		promReg:  prometheus.NewRegistry(),
	}
	a.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.collector = metrics.New(a.promReg, a.sessions.Len)

	a.comp, err = compositor.New(compositor.Options{
		FontPath:  cfg.Compositor.FontPath,
		FontSize:  cfg.Compositor.FontSize,
		MaxPixels: cfg.Compositor.MaxPixels,
	})
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	convOpts := conversation.Options{MaxLabelRunes: cfg.Compositor.MaxLabelRunes}
	var (
		hist   bot.HistorySource
		places placement.Store = placement.NewMemoryStore()
	)
	if infra.DB != nil {
		repo := history.NewRepository(infra.DB)
		convOpts.Recorder = repo
		hist = repo
		places = placement.NewRepository(infra.DB)
	}
	convOpts.Placement = places
	pipeline := metrics.InstrumentCompositor(bot.NewPool(a.comp, cfg.Compositor.Workers), a.collector)
	a.ctrl = conversation.New(a.sessions, pipeline, convOpts)

	a.handler, err = bot.New(bot.Options{
		Conversation: a.ctrl,
		Sessions:     a.sessions,
		History:      hist,
		Placement:    places,
		Metrics:      a.collector,
		ShareChatID:  cfg.Share.ChatID,
		FontName:     a.comp.FontName(),
	})
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	a.registry.SetAdmin(middleware.AdminOptions{AdminID: cfg.Telegram.AdminID})
	a.handler.Register(a.registry)

	if cfg.Metrics.Listen != "" {
		a.server = metrics.NewServer(cfg.Metrics.Listen, a.promReg)
	}
	return a, nil
}

// Handler exposes the Telegram handler.
func (a *App) Handler() *bot.Handler { return a.handler }

// Registry exposes the command registry.
func (a *App) Registry() *coretelegram.Registry { return a.registry }

// Gatherer exposes the Prometheus registry.
func (a *App) Gatherer() prometheus.Gatherer { return a.promReg }

// TelegramRunOptions describes the bot for coretelegram.RunTelegram.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	routes := router.CommandRoutes(a.registry)
	routes = append(routes, router.MessageRoutes(a.handler, a.registry)...)

	return coretelegram.RunOptions{
		Config:   a.cfg,
		Registry: a.registry,
		DispatcherOptions: tgsender.Options{
			MaxRetries: 2,
			OnResult:   a.collector.ObserveJob,
		},
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, a.sessions, a.handler.OnLimited),
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(context.Context, coretelegram.Runtime) error {
	if a.server != nil {
		a.server.Start()
	}
	return nil
}

func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	// Pending merge records still need the database.
	a.ctrl.Wait()
	if err := a.infra.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		logger.L.With("component", "app").Warn("shutdown incomplete",
			slog.String("event", "shutdown"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}
