package tokencache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/b2cauth/b2cauth/b2c"
)

type memoryEntry struct {
	token  b2c.AccessToken
	expiry time.Time
}

// Memory is an in-memory b2c.TokenCache. It is safe for concurrent use, but
// only within a single process.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ b2c.TokenCache = (*Memory)(nil)

// NewMemory creates an empty Memory cache.
// Supported options: WithNow
func NewMemory(opt ...Option) *Memory {
	opts := getOpts(opt...)
	return &Memory{
		entries: map[string]memoryEntry{},
		now:     opts.withNowFunc,
	}
}

// Get returns identityId's token unless it is missing or expired.
func (m *Memory) Get(_ context.Context, identityId string) (b2c.AccessToken, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[identityId]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiry.IsZero() && !m.now().Before(e.expiry) {
		m.mu.Lock()
		// a concurrent Set may have replaced the entry since it was read
		if cur, ok := m.entries[identityId]; ok && cur == e {
			delete(m.entries, identityId)
		}
		m.mu.Unlock()
		return "", false, nil
	}
	return e.token, true, nil
}

// Set stores t for identityId, replacing any existing entry.
func (m *Memory) Set(_ context.Context, identityId string, t b2c.AccessToken, expiry time.Time) error {
	const op = "Memory.Set"
	if identityId == "" {
		return fmt.Errorf("%s: identity id is empty: %w", op, b2c.ErrInvalidParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[identityId] = memoryEntry{token: t, expiry: expiry}
	return nil
}

// Len returns the number of entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
