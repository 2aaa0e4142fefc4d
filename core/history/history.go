// Package history stores a row per completed merge in Postgres.
// Image bytes are never persisted.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/mergebot/core/conversation"
	"github.com/m3rciful/mergebot/core/logger"
)

// Record is one row of the merges table.
type Record struct {
	ID          uuid.UUID `db:"id"`
	ChatID      int64     `db:"chat_id"`
	Label       string    `db:"label"`
	MainWidth   int       `db:"main_width"`
	MainHeight  int       `db:"main_height"`
	OutputBytes int       `db:"output_bytes"`
	DurationMS  int64     `db:"duration_ms"`
	CreatedAt   time.Time `db:"created_at"`
}

// Stats aggregates the merges table.
type Stats struct {
	Total int64 `db:"total"`
	Chats int64 `db:"chats"`
}

const (
	insertMerge = `INSERT INTO merges (id, chat_id, label, main_width, main_height, output_bytes, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	selectStats  = `SELECT COUNT(*) AS total, COUNT(DISTINCT chat_id) AS chats FROM merges`
	selectRecent = `SELECT id, chat_id, label, main_width, main_height, output_bytes, duration_ms, created_at
FROM merges
WHERE chat_id = $1
ORDER BY created_at DESC
LIMIT $2`
)

// Repository reads and writes merge history.
type Repository struct {
	db    *sqlx.DB
	newID func() uuid.UUID
}

// NewRepository wraps an open connection.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, newID: uuid.New}
}

// Record inserts rec, assigning an ID and timestamp when missing.
func (r *Repository) Record(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == uuid.Nil {
		rec.ID = r.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, insertMerge,
		rec.ID, rec.ChatID, rec.Label, rec.MainWidth, rec.MainHeight,
		rec.OutputBytes, rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert merge: %w", err)
	}
	logger.LogEvent(ctx, logger.History, slog.LevelDebug, "history.record",
		slog.String("status", "ok"),
		slog.String("id", rec.ID.String()),
		slog.Int64("chat_id", rec.ChatID),
	)
	return rec, nil
}

// RecordMerge adapts a completed conversation merge into a Record.
func (r *Repository) RecordMerge(ctx context.Context, m conversation.Merge) error {
	_, err := r.Record(ctx, Record{
		ChatID:      m.ChatID,
		Label:       m.Label,
		MainWidth:   m.MainWidth,
		MainHeight:  m.MainHeight,
		OutputBytes: m.OutputBytes,
		DurationMS:  m.Duration.Milliseconds(),
		CreatedAt:   m.At.UTC(),
	})
	return err
}

// Stats counts merges and distinct chats.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := r.db.GetContext(ctx, &s, selectStats); err != nil {
		return Stats{}, fmt.Errorf("merge stats: %w", err)
	}
	return s, nil
}

// Recent lists the latest merges of a chat, newest first.
func (r *Repository) Recent(ctx context.Context, chatID int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []Record
	if err := r.db.SelectContext(ctx, &out, selectRecent, chatID, limit); err != nil {
		return nil, fmt.Errorf("recent merges: %w", err)
	}
	return out, nil
}
