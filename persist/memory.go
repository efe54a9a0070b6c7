package persist

import (
	"context"
	"sync"
)

// Memory is a Backend kept in process memory. It backs tests and the
// "memory" storage driver.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
	// writes records every key passed to Set, in order.
	writes []string
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	m.writes = append(m.writes, key)
	return nil
}

// Writes returns the keys written so far, oldest first.
func (m *Memory) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}
