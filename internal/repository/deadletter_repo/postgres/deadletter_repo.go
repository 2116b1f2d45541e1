package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"merchbot/internal/domain"
)

type DeadLetterRepository struct {
	db *sql.DB
}

func NewDeadLetterRepository(db *sql.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) Archive(ctx context.Context, rec domain.DeadLetterRecord) error {
	history, err := json.Marshal(rec.ErrorHistory)
	if err != nil {
		return fmt.Errorf("failed to encode error history: %w", err)
	}

	query := `
		INSERT INTO dead_letters (event_id, kind, actor_id, channel_id, attempts, queued_at, failed_at, error_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query,
		rec.EventID, string(rec.Kind), rec.ActorID, rec.ChannelID,
		rec.Attempts, rec.QueuedAt, rec.FailedAt, history,
	); err != nil {
		return fmt.Errorf("failed to archive dead letter: %w", err)
	}
	return nil
}

func (r *DeadLetterRepository) ListRecent(ctx context.Context, limit int) ([]domain.DeadLetterRecord, error) {
	query := `
		SELECT event_id, kind, actor_id, channel_id, attempts, queued_at, failed_at, error_history
		FROM dead_letters
		ORDER BY failed_at DESC
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var records []domain.DeadLetterRecord
	for rows.Next() {
		var rec domain.DeadLetterRecord
		var kind string
		var history []byte
		if err := rows.Scan(&rec.EventID, &kind, &rec.ActorID, &rec.ChannelID,
			&rec.Attempts, &rec.QueuedAt, &rec.FailedAt, &history); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter row: %w", err)
		}
		rec.Kind = domain.EventKind(kind)
		if err := json.Unmarshal(history, &rec.ErrorHistory); err != nil {
			return nil, fmt.Errorf("failed to decode error history: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
