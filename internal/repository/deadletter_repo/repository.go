package deadletter_repo

import (
	"context"

	"merchbot/internal/domain"
)

// Repository archives terminal dead-letter records for inspection that
// survives a process restart. The in-memory list inside the processor is
// the source of truth; the archive is operator tooling.
type Repository interface {
	Archive(ctx context.Context, rec domain.DeadLetterRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.DeadLetterRecord, error)
}
