package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store used as the development default and in
// tests. Snapshots are delivered synchronously from the mutating call,
// which gives the same per-subscription total order the remote drivers
// guarantee.
type Memory struct {
	mu        sync.Mutex
	data      map[string]map[string]json.RawMessage
	listeners map[string]map[int]SnapshotFunc
	nextID    int
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		data:      make(map[string]map[string]json.RawMessage),
		listeners: make(map[string]map[int]SnapshotFunc),
	}
}

func (m *Memory) Subscribe(ctx context.Context, collection string, fn SnapshotFunc) (Unsubscribe, error) {
	m.mu.Lock()
	if m.listeners[collection] == nil {
		m.listeners[collection] = make(map[int]SnapshotFunc)
	}
	m.nextID++
	id := m.nextID
	m.listeners[collection][id] = fn
	// The initial delivery happens under the same lock that guards
	// notifyLocked, so a concurrent mutation's snapshot can never
	// overtake the older registration-time one.
	fn(m.snapshotLocked(collection))
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners[collection], id)
		m.mu.Unlock()
	}, nil
}

func (m *Memory) Write(ctx context.Context, path string, record any) (string, error) {
	collection, id, err := splitPath(path)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]json.RawMessage)
	}
	m.data[collection][id] = raw
	m.notifyLocked(collection)
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) Patch(ctx context.Context, path string, fields map[string]any) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}
	if id == "" {
		return ErrBadPath
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	merged, err := mergeFields(raw, fields)
	if err != nil {
		return err
	}
	m.data[collection][id] = merged
	m.notifyLocked(collection)
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		delete(m.data, collection)
	} else {
		delete(m.data[collection], id)
	}
	m.notifyLocked(collection)
	return nil
}

// snapshotLocked copies the current collection state. Callers hold mu.
func (m *Memory) snapshotLocked(collection string) Snapshot {
	snap := make(Snapshot, len(m.data[collection]))
	for id, raw := range m.data[collection] {
		snap[id] = raw
	}
	return snap
}

func (m *Memory) notifyLocked(collection string) {
	snap := m.snapshotLocked(collection)
	for _, fn := range m.listeners[collection] {
		fn(snap)
	}
}
