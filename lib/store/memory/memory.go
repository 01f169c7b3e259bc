// Package memory implements the store interface in memory. It backs the demo mode of the wallet service and is used
// as a fake by tests.
package memory

import (
	"context"
	"sync"

	"github.com/sentrywallet/sentry/lib/store"
)

// Memory keeps the profiles in a map.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]string
}

// New returns an empty in-memory store.
func New() *Memory {
	return &Memory{profiles: make(map[string]string)}
}

// GetNomineeEmail returns the nominee email of the account or store.ErrDataNotFound.
func (m *Memory) GetNomineeEmail(ctx context.Context, accountID string) (store.NomineeRecord, error) {
	if accountID == "" {
		return store.NomineeRecord{}, store.ErrNoAccount
	}

	if err := ctx.Err(); err != nil {
		return store.NomineeRecord{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	email, ok := m.profiles[accountID]
	if !ok || email == "" {
		return store.NomineeRecord{}, store.ErrDataNotFound
	}

	return store.NomineeRecord{AccountID: accountID, NomineeEmail: email}, nil
}

// SetNomineeEmail saves the nominee email of the account.
func (m *Memory) SetNomineeEmail(ctx context.Context, accountID, email string) error {
	if accountID == "" {
		return store.ErrNoAccount
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.profiles[accountID] = email
	m.mu.Unlock()

	return nil
}
