package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/mergebot/core/config"
	"github.com/m3rciful/mergebot/core/logger"
)

const readyTimeout = 30 * time.Second

// RunMigrations applies every pending up migration from cfg.MigrationsDir.
// A relative directory is resolved against the working directory.
func RunMigrations(ctx context.Context, cfg config.DatabaseConfig) error {
	fail := func(stage string, err error) error {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "db.migrate",
			slog.String("status", "fail"),
			slog.String("cause", stage),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("migrations: %s: %w", stage, err)
	}

	dsn := URL(cfg)
	if err := WaitForPostgres(ctx, dsn, readyTimeout); err != nil {
		return fail("wait", err)
	}
	dir, err := resolveDir(cfg.MigrationsDir)
	if err != nil {
		return fail("resolve", err)
	}
	files := listMigrationFiles(dir)
	preview, truncated := logger.SummarizeStrings(files, 6)
	logger.LogEvent(ctx, logger.MIG, slog.LevelDebug, "db.migrate.resolve",
		slog.String("path", dir),
		slog.Int("files_total", len(files)),
		slog.String("files_preview", preview),
		slog.Bool("files_truncated", truncated),
	)

	m, err := migrate.New("file://"+filepath.ToSlash(dir), dsn)
	if err != nil {
		return fail("init", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.LogEvent(ctx, logger.MIG, slog.LevelWarn, "db.migrate.close",
				slog.String("status", "fail"),
				slog.Any("err", errors.Join(srcErr, dbErr)),
			)
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fail("apply", err)
	}
	took := time.Since(start)
	to, _, _ := m.Version()

	applied := appliedBetween(files, uint64(from), uint64(to))
	if len(applied) > 0 {
		preview, truncated := logger.SummarizeStrings(applied, 6)
		logger.LogEvent(ctx, logger.MIG, slog.LevelDebug, "db.migrate.apply",
			slog.String("files_preview", preview),
			slog.Bool("files_truncated", truncated),
		)
	}
	logger.LogEvent(ctx, logger.MIG, slog.LevelInfo, "db.migrate",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

func resolveDir(dir string) (string, error) {
	if dir == "" {
		dir = "migrations"
	}
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	return filepath.Abs(dir)
}

// listMigrationFiles returns the sorted *.up.sql names in dir.
func listMigrationFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

// appliedBetween picks the files whose version lies in (from, to].
func appliedBetween(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		prefix, _, _ := strings.Cut(f, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err == nil && v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
