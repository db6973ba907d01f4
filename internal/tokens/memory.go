package tokens

import (
	"context"
	"sync"
)

type memoryRegistry struct {
	mu     sync.RWMutex
	tokens map[string]DeviceToken
}

// NewMemory returns a process-memory registry for dev and tests.
func NewMemory() Registry {
	return &memoryRegistry{tokens: map[string]DeviceToken{}}
}

func (m *memoryRegistry) Store(_ context.Context, userID string, token DeviceToken) error {
	if err := token.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = token
	return nil
}

func (m *memoryRegistry) ActiveToken(_ context.Context, userID string) (DeviceToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[userID]
	if !ok {
		return DeviceToken{}, ErrNoToken
	}
	return t, nil
}

func (m *memoryRegistry) Deactivate(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID)
	return nil
}

func (m *memoryRegistry) Close() error { return nil }
