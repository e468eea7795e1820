package policy

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	settings map[string]Settings
}

// NewMemoryRepository builds an in-memory settings store for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{settings: make(map[string]Settings)}
}

func (r *memoryRepository) Get(_ context.Context, userID string) (Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[userID]
	if !ok {
		return Settings{}, ErrNotConfigured
	}
	return s, nil
}

func (r *memoryRepository) Update(_ context.Context, userID string, fn UpdateFunc) (Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.settings[userID]
	next, err := fn(current, exists)
	if err != nil {
		return Settings{}, err
	}
	next.UserID = userID
	if exists {
		next.CreatedAt = current.CreatedAt
	} else {
		next.CreatedAt = next.UpdatedAt
	}
	r.settings[userID] = next
	return next, nil
}
