package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/manojawesome/AQueueMan/internal/models"
	"github.com/manojawesome/AQueueMan/internal/snapshot"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store keeps one snapshot row per tenant in a jsonb column. The snapshot
// stays a single record, the write stays a single statement.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the snapshot table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS queue_snapshots (
			tenant_id TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (s *Store) Load(ctx context.Context, tenantID string) (models.Snapshot, error) {
	var data []byte
	row := s.pool.QueryRow(ctx, `
		SELECT data
		FROM queue_snapshots
		WHERE tenant_id = $1
	`, tenantID)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DefaultSnapshot(), nil
		}
		return models.Snapshot{}, err
	}
	return snapshot.Decode(data), nil
}

func (s *Store) Save(ctx context.Context, tenantID string, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO queue_snapshots (tenant_id, data, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, tenantID, string(data))
	return err
}
