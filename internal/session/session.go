// Package session persists per-session form state between requests.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/form"
)

// Store loads and saves form state by session id. Load of an unknown or
// expired session returns a fresh state, never an error.
type Store interface {
	Load(ctx context.Context, id string) (*form.State, error)
	Save(ctx context.Context, id string, st *form.State) error
	Delete(ctx context.Context, id string) error
}

func checkID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: session id is required", apperr.ErrInvalid)
	}
	return nil
}

func decode(blob []byte) (*form.State, error) {
	st := form.NewState()
	if err := json.Unmarshal(blob, st); err != nil {
		return nil, fmt.Errorf("session: decode state: %w", err)
	}
	return st, nil
}

type entry struct {
	blob    []byte
	expires time.Time
}

// Memory keeps state in process. Values are stored serialised so callers
// never share maps with the store.
type Memory struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]entry
	now  func() time.Time
}

// NewMemory returns a Memory store. A zero ttl keeps sessions forever.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, data: make(map[string]entry), now: time.Now}
}

func (m *Memory) Load(_ context.Context, id string) (*form.State, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	e, ok := m.data[id]
	if ok && m.ttl > 0 && m.now().After(e.expires) {
		delete(m.data, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return form.NewState(), nil
	}
	return decode(e.blob)
}

func (m *Memory) Save(_ context.Context, id string, st *form.State) error {
	if err := checkID(id); err != nil {
		return err
	}
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session: encode state: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = entry{blob: blob, expires: m.now().Add(m.ttl)}
	m.sweep()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.data, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live sessions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	return len(m.data)
}

// sweep drops expired entries. Callers hold mu.
func (m *Memory) sweep() {
	if m.ttl <= 0 {
		return
	}
	now := m.now()
	for id, e := range m.data {
		if now.After(e.expires) {
			delete(m.data, id)
		}
	}
}
