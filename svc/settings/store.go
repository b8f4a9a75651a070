package settings

import (
	"context"
	"sync"
)

// Store persists the settings document. Load returns ErrNotFound when
// nothing was saved yet.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// MemoryStore keeps the document in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	doc   *Settings
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return Settings{}, ErrNotFound
	}
	return m.doc.clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.clone()
	m.doc = &c
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
