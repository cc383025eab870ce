package store

import (
	"context"
	"sync"
)

// Memory is an in-process [Store]. Values do not survive a restart.
type Memory struct {
	mu     sync.RWMutex
	values map[Role]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[Role]string, len(Roles))}
}

func (m *Memory) Get(ctx context.Context, role Role) (string, bool, error) {
	if err := checkRole(role); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[role]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, role Role, value string) error {
	if err := checkRole(role); err != nil {
		return err
	}
	m.mu.Lock()
	m.values[role] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(ctx context.Context, role Role) error {
	if err := checkRole(role); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.values, role)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	clear(m.values)
	m.mu.Unlock()
	return nil
}
