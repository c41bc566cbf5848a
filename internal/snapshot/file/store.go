package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manojawesome/AQueueMan/internal/models"
	"github.com/manojawesome/AQueueMan/internal/snapshot"
)

// Store keeps one JSON snapshot file per tenant under a data directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Load(ctx context.Context, tenantID string) (models.Snapshot, error) {
	data, err := os.ReadFile(s.path(tenantID))
	if err != nil {
		// Missing or unreadable snapshot starts the tenant from defaults.
		return models.DefaultSnapshot(), nil
	}
	return snapshot.Decode(data), nil
}

func (s *Store) Save(ctx context.Context, tenantID string, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	path := s.path(tenantID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *Store) path(tenantID string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, tenantID)
	return filepath.Join(s.dir, name+".json")
}
