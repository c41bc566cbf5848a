package snapshot

import (
	"context"
	"encoding/json"

	"github.com/manojawesome/AQueueMan/internal/models"
)

// Store persists the full per-tenant snapshot as one record. Load returns
// defaults when no snapshot exists; it never fails a tenant over a corrupt
// record.
type Store interface {
	Load(ctx context.Context, tenantID string) (models.Snapshot, error)
	Save(ctx context.Context, tenantID string, snap models.Snapshot) error
}

// Decode unmarshals a snapshot record field by field. A field that is
// missing or fails to parse falls back to its default without blocking the
// other fields.
func Decode(data []byte) models.Snapshot {
	snap := models.DefaultSnapshot()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return snap
	}

	if raw, ok := fields["business_config"]; ok {
		var config models.BusinessConfig
		if err := json.Unmarshal(raw, &config); err == nil {
			snap.BusinessConfig = config
		}
	}
	if raw, ok := fields["departments"]; ok {
		var departments []models.Department
		if err := json.Unmarshal(raw, &departments); err == nil {
			snap.Departments = departments
		}
	}
	if raw, ok := fields["queue"]; ok {
		var queue []models.Token
		if err := json.Unmarshal(raw, &queue); err == nil {
			snap.Queue = queue
		}
	}
	if raw, ok := fields["completed_tokens"]; ok {
		var completed []models.Token
		if err := json.Unmarshal(raw, &completed); err == nil {
			snap.CompletedTokens = completed
		}
	}
	if raw, ok := fields["token_counter"]; ok {
		var counter int
		if err := json.Unmarshal(raw, &counter); err == nil && counter >= 1 {
			snap.TokenCounter = counter
		}
	}

	return snap
}
