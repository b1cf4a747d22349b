package tokenstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keithlinneman/linnemanlabs-seed/internal/token"
)

// Memory is an in-process Store. Tokens do not survive a restart.
type Memory struct {
	mu   sync.Mutex
	rows map[string]token.Token
}

var _ token.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{rows: make(map[string]token.Token)}
}

func (m *Memory) Insert(_ context.Context, t token.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.Value]; ok {
		return fmt.Errorf("token already exists for nid %d", t.OwnerID)
	}
	m.rows[t.Value] = t
	return nil
}

func (m *Memory) Take(_ context.Context, value string) (token.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[value]
	if !ok {
		return token.Token{}, token.ErrNotFound
	}
	delete(m.rows, value)
	return t, nil
}

func (m *Memory) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.rows {
		if t.CreatedAt.Before(cutoff) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

// Len reports how many tokens are held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
