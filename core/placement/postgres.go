package placement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/mergebot/core/compositor"
	"github.com/m3rciful/mergebot/core/logger"
)

const (
	selectOffsets = `SELECT image_x, image_y, text_x, text_y FROM placements WHERE chat_id = $1`
	upsertOffsets = `INSERT INTO placements (chat_id, image_x, image_y, text_x, text_y, updated_at)
VALUES (:chat_id, :image_x, :image_y, :text_x, :text_y, :updated_at)
ON CONFLICT (chat_id) DO UPDATE SET
    image_x = EXCLUDED.image_x, image_y = EXCLUDED.image_y,
    text_x = EXCLUDED.text_x, text_y = EXCLUDED.text_y,
    updated_at = EXCLUDED.updated_at`
	selectSlots = `SELECT
    EXISTS (SELECT 1 FROM placement_presets WHERE chat_id = $1 AND name = $2) AS found,
    COUNT(*) AS total
FROM placement_presets WHERE chat_id = $1`
	upsertPreset = `INSERT INTO placement_presets (chat_id, name, image_x, image_y, text_x, text_y, updated_at)
VALUES (:chat_id, :name, :image_x, :image_y, :text_x, :text_y, :updated_at)
ON CONFLICT (chat_id, name) DO UPDATE SET
    image_x = EXCLUDED.image_x, image_y = EXCLUDED.image_y,
    text_x = EXCLUDED.text_x, text_y = EXCLUDED.text_y,
    updated_at = EXCLUDED.updated_at`
	selectPreset = `SELECT name, image_x, image_y, text_x, text_y, updated_at
FROM placement_presets WHERE chat_id = $1 AND name = $2`
	selectPresets = `SELECT name, image_x, image_y, text_x, text_y, updated_at
FROM placement_presets WHERE chat_id = $1 ORDER BY name`
	deletePreset = `DELETE FROM placement_presets WHERE chat_id = $1 AND name = $2`
)

// row is the named-parameter shape of both tables.
type row struct {
	ChatID int64  `db:"chat_id"`
	Name   string `db:"name"`
	compositor.Offsets
	UpdatedAt time.Time `db:"updated_at"`
}

type slots struct {
	Found bool `db:"found"`
	Total int  `db:"total"`
}

// Repository stores placements in Postgres.
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewRepository wraps an open connection.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Offsets(ctx context.Context, chatID int64) (compositor.Offsets, error) {
	var off compositor.Offsets
	err := r.db.GetContext(ctx, &off, selectOffsets, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return compositor.Offsets{}, nil
	case err != nil:
		return compositor.Offsets{}, fmt.Errorf("load offsets: %w", err)
	}
	return off, nil
}

func (r *Repository) SetOffsets(ctx context.Context, chatID int64, off compositor.Offsets) error {
	if err := off.Validate(); err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, upsertOffsets, row{ChatID: chatID, Offsets: off, UpdatedAt: r.now().UTC()}); err != nil {
		return fmt.Errorf("save offsets: %w", err)
	}
	logger.LogEvent(ctx, logger.Placement, slog.LevelDebug, "placement.offsets",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
	)
	return nil
}

// SavePreset checks the per-chat limit and upserts in one transaction.
func (r *Repository) SavePreset(ctx context.Context, chatID int64, name string, off compositor.Offsets) (created bool, err error) {
	name, err = NormalizeName(name)
	if err != nil {
		return false, err
	}
	if err := off.Validate(); err != nil {
		return false, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("save preset: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var s slots
	if err = tx.GetContext(ctx, &s, selectSlots, chatID, name); err != nil {
		return false, fmt.Errorf("save preset: %w", err)
	}
	if !s.Found && s.Total >= MaxPresets {
		err = ErrTooManyPresets
		return false, err
	}
	p := row{ChatID: chatID, Name: name, Offsets: off, UpdatedAt: r.now().UTC()}
	if _, err = tx.NamedExecContext(ctx, upsertPreset, p); err != nil {
		return false, fmt.Errorf("save preset: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("save preset: %w", err)
	}
	logger.LogEvent(ctx, logger.Placement, slog.LevelInfo, "placement.preset.save",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.Bool("created", !s.Found),
	)
	return !s.Found, nil
}

func (r *Repository) Preset(ctx context.Context, chatID int64, name string) (Preset, error) {
	var p Preset
	err := r.db.GetContext(ctx, &p, selectPreset, chatID, strings.TrimSpace(name))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Preset{}, ErrNotFound
	case err != nil:
		return Preset{}, fmt.Errorf("load preset: %w", err)
	}
	return p, nil
}

func (r *Repository) Presets(ctx context.Context, chatID int64) ([]Preset, error) {
	out := []Preset{}
	if err := r.db.SelectContext(ctx, &out, selectPresets, chatID); err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	return out, nil
}

func (r *Repository) DeletePreset(ctx context.Context, chatID int64, name string) error {
	res, err := r.db.ExecContext(ctx, deletePreset, chatID, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	logger.LogEvent(ctx, logger.Placement, slog.LevelInfo, "placement.preset.delete",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
	)
	return nil
}
