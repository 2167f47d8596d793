package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/periop/periop/internal/domain/analysis"
)

// memoryCap bounds the in-process log so a long dev run cannot grow
// without limit; the oldest records fall off first.
const memoryCap = 1000

var _ analysis.SessionStore = (*MemoryStore)(nil)

// MemoryStore is the fallback session log used in development and tests
// when no audit database path is configured. Records round-trip through
// JSON so callers never share memory with the log.
type MemoryStore struct {
	mu      sync.Mutex
	records [][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(ctx context.Context, session *analysis.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, payload)
	if len(m.records) > memoryCap {
		m.records = m.records[len(m.records)-memoryCap:]
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (m *MemoryStore) Recent(ctx context.Context, limit int) ([]*analysis.Session, error) {
	if limit <= 0 {
		limit = defaultRecent
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*analysis.Session, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		var session analysis.Session
		if err := json.Unmarshal(m.records[i], &session); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		out = append(out, &session)
	}
	return out, nil
}
