package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryRepository builds an in-memory user store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Phone == user.Phone || (user.Email != "" && strings.EqualFold(u.Email, user.Email)) {
			return ErrUserExists
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	return r.find(func(u User) bool { return u.Phone == phone })
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	return r.find(func(u User) bool { return u.Email != "" && strings.EqualFold(u.Email, email) })
}

func (r *memoryRepository) find(match func(User) bool) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *memoryRepository) UpdateDevice(_ context.Context, id, deviceID string) error {
	return r.update(id, func(u *User) { u.DeviceID = deviceID })
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, id string, version int) error {
	return r.update(id, func(u *User) { u.TokenVersion = version })
}

func (r *memoryRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *User) { u.LastLogin = &at })
}

func (r *memoryRepository) UpdateTier(_ context.Context, id, tier string) error {
	return r.update(id, func(u *User) { u.Tier = tier })
}

func (r *memoryRepository) SetActive(_ context.Context, id string, active bool) error {
	return r.update(id, func(u *User) { u.Active = active })
}

func (r *memoryRepository) update(id string, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&user)
	r.users[id] = user
	return nil
}
