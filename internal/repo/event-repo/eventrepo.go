package eventrepo

import (
	"context"

	"github.com/dkotelnikov/creditcore/internal/pg"
	"go.uber.org/zap"
)

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

// RecordIfNew inserts the processed-event marker and reports whether this
// delivery is the first one. A conflict on (provider, event_id) means the
// event was already processed and must be acknowledged, not re-applied.
func (r *Repository) RecordIfNew(ctx context.Context, provider, eventID, fingerprint string) (bool, error) {
	query := `
        INSERT INTO processed_events (provider, event_id, fingerprint)
        VALUES ($1, $2, $3)
        ON CONFLICT (provider, event_id) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query, provider, eventID, fingerprint)
	if err != nil {
		zap.L().Error("can't record processed event", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
