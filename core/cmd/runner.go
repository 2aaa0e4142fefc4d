package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	coreconfig "github.com/m3rciful/mergebot/core/config"
	"github.com/m3rciful/mergebot/core/logger"
	coretelegram "github.com/m3rciful/mergebot/core/telegram"
)

// TelegramApp is the minimal interface required to run a Telegram bot.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// ConfigPath wins over ConfigEnvVar and DefaultConfigPath when set.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string
	// EnvFiles are loaded before the config; missing files are skipped and
	// variables already set in the environment are kept.
	EnvFiles []string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(ctx context.Context, cfg *coreconfig.Config) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

func (o Options) withDefaults() Options {
	if o.LoadConfig == nil {
		o.LoadConfig = coreconfig.Load
	}
	if o.ShutdownLogger == nil {
		o.ShutdownLogger = logger.Shutdown
	}
	if o.RunTelegram == nil {
		o.RunTelegram = coretelegram.RunTelegram
	}
	return o
}

// Run loads configuration, bootstraps the app and runs the bot until
// SIGINT or SIGTERM.
func Run(opts Options) error {
	if opts.Bootstrap == nil {
		return errors.New("cmd: Bootstrap is required")
	}
	opts = opts.withDefaults()

	if err := LoadEnvFiles(opts.EnvFiles...); err != nil {
		return fmt.Errorf("cmd: %w", err)
	}
	cfgPath := ResolveConfigPath(opts.ConfigPath, opts.ConfigEnvVar, opts.DefaultConfigPath)
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: load config %s: %w", cfgPath, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	// Bootstrap initialises the logger; flush it on every exit path.
	defer func() {
		if err := opts.ShutdownLogger(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()

	startedAt := time.Now()
	app, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	logger.LogEvent(ctx, logger.Component("app"), slog.LevelInfo, "config.loaded", slog.String("path", cfgPath))
	return opts.RunTelegram(ctx, withLifecycleLogs(runOpts, startedAt))
}

// withLifecycleLogs wraps the hooks with the app ready and shutdown lines.
func withLifecycleLogs(ro coretelegram.RunOptions, startedAt time.Time) coretelegram.RunOptions {
	appLog := logger.Component("app")
	start, stop := ro.OnStart, ro.OnStop
	ro.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if start != nil {
			if err := start(ctx, rt); err != nil {
				return err
			}
		}
		logger.LogEvent(ctx, appLog, slog.LevelInfo, "ready",
			slog.String("status", "ok"),
			slog.Duration("startup_duration", time.Since(startedAt)),
		)
		return nil
	}
	ro.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.LogEvent(ctx, appLog, slog.LevelInfo, "shutdown")
		if stop != nil {
			return stop(ctx, rt)
		}
		return nil
	}
	return ro
}

// ResolveConfigPath picks the explicit path, then $envVar, then def.
func ResolveConfigPath(explicit, envVar, def string) string {
	if explicit != "" {
		return explicit
	}
	if envVar == "" {
		envVar = "CONFIG_PATH"
	}
	if p := os.Getenv(envVar); p != "" {
		return p
	}
	return def
}

// LoadEnvFiles loads dotenv files in order, skipping the ones that do not exist.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}
