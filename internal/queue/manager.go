package queue

import (
	"context"
	"sync"

	"github.com/manojawesome/AQueueMan/internal/snapshot"
)

// Manager hands out one engine per tenant, loading the tenant's snapshot on
// first use. Engines are kept for the life of the process so all calls for a
// tenant go through the same mutex.
type Manager struct {
	mu      sync.Mutex
	store   snapshot.Store
	engines map[string]*Engine
}

func NewManager(store snapshot.Store) *Manager {
	return &Manager{
		store:   store,
		engines: make(map[string]*Engine),
	}
}

func (m *Manager) Engine(ctx context.Context, tenantID string) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if engine, ok := m.engines[tenantID]; ok {
		return engine, nil
	}

	snap, err := m.store.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	engine := NewEngine(tenantID, m.store, snap)
	m.engines[tenantID] = engine
	return engine, nil
}
