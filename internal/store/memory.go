package store

import (
	"context"
	"sync"

	"github.com/park285/cheese-elo-bot/internal/domain"
)

// MemoryStore keeps the state in process. Used by tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	state *domain.State
	saves int
	err   error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: domain.NewState()}
}

func (m *MemoryStore) Load(_ context.Context) (*domain.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, st *domain.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.state = st.Clone()
	m.saves++
	return nil
}

// Saves returns how many successful saves happened.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// FailWith makes subsequent saves return err; nil restores normal behaviour.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MemoryStore) Close() error { return nil }
