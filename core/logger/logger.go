package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/mergebot/core/buildinfo"
	coreconfig "github.com/m3rciful/mergebot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	logWriter *asyncWriter
	logFiles  []io.Closer

	levelVar slog.LevelVar

	debugSampler = newRatioSampler(1, 50)
	traceAll     bool

	// L is the base logger; prefer Component or FromContext in new code.
	L *slog.Logger

	// DB logs database connection events.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
	// Conv logs conversation state transitions.
	Conv *slog.Logger
	// Comp logs compositor setup and failures.
	Comp *slog.Logger
	// History logs merge history writes.
	History *slog.Logger
	// Metrics logs the metrics endpoint lifecycle.
	Metrics *slog.Logger
	// Placement logs offset and preset changes.
	Placement *slog.Logger
)

func init() {
	L = slog.Default()
	wireComponents()
}

// settings is the logging section of the config with defaults applied.
type settings struct {
	profile  string
	format   logFormat
	level    slog.Level
	keyOrder []string
	sample   [2]int
	filePath string
}

func resolveSettings(cfg *coreconfig.Config) settings {
	s := settings{
		profile:  "prod",
		format:   formatJSON,
		level:    slog.LevelInfo,
		keyOrder: append([]string(nil), defaultKeyOrder...),
		sample:   [2]int{1, 50},
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}
	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.keyOrder = order
		}
	}
	if spec := strings.TrimSpace(lc.DebugSample); spec != "" {
		switch num, den := parseRatioSpec(spec); {
		case num == 0 && den == 0:
			s.sample = [2]int{0, 0}
		case num > 0 && den > 0:
			s.sample = [2]int{num, den}
		}
	}
	if dir, file := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && file != "" {
		s.filePath = filepath.Join(dir, file)
	}
	return s
}

// InitLogger configures the global structured logger. Only the first call
// has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		s := resolveSettings(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.sample[0], s.sample[1])
		traceAll = envFlag("TRACE") || envFlag("LOG_TRACE")

		sinks := []io.Writer{os.Stdout}
		if s.filePath != "" {
			f, openErr := openLogFile(s.filePath)
			if openErr != nil {
				err = openErr
				return
			}
			sinks = append(sinks, f)
			logFiles = append(logFiles, f)
		}
		logWriter = newAsyncWriter(sinks, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   s.format,
			keyOrder: s.keyOrder,
		}))
		slog.SetDefault(L)
		wireComponents()
		logStartup(cfg, s)
	})
	return err
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

func wireComponents() {
	for _, c := range []struct {
		dst  **slog.Logger
		name string
	}{
		{&DB, "db"},
		{&TG, "tg"},
		{&MIG, "db.migrate"},
		{&TWire, "tg.wire"},
		{&Conv, "conversation"},
		{&Comp, "compositor"},
		{&History, "history"},
		{&Metrics, "metrics"},
		{&Placement, "placement"},
	} {
		*c.dst = L.With("component", c.name)
	}
}

func logStartup(cfg *coreconfig.Config, s settings) {
	attrs := []slog.Attr{
		slog.String("component", "app"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("cfg_profile", s.profile),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("mode", cfg.Telegram.RunMode),
			slog.Bool("history", cfg.Database.Enabled()),
		)
	}
	LogEvent(context.Background(), L, slog.LevelInfo, "startup", attrs...)
}

// Shutdown flushes buffered output and closes log files. Later calls are no-ops.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Close())
	}
	for _, c := range logFiles {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Background returns context.Background().
func Background() context.Context {
	return context.Background()
}

// LogEvent logs attrs under event. A nil logger is taken from ctx.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug event should be
// logged. TRACE=1 lets every event through.
func ShouldSampleDebug() bool {
	return traceAll || debugSampler.Allow()
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
