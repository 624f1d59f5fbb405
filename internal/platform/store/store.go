// Package store provides access to the realtime document store that
// owns all supplier data. Records live under slash-separated paths
// ("suppliers/<id>"); readers observe a collection through a
// subscription that pushes the full current snapshot on every change.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Snapshot is the complete current state of a collection, keyed by
// record id.
type Snapshot map[string]json.RawMessage

// SnapshotFunc receives collection snapshots. The first call happens
// immediately upon subscription with the current state.
type SnapshotFunc func(Snapshot)

// Unsubscribe detaches a listener registered with Subscribe.
type Unsubscribe func()

var (
	// ErrBadPath indicates a path that is neither "collection" nor
	// "collection/id".
	ErrBadPath = errors.New("store: bad path")
	// ErrNotFound indicates no record exists at the given path.
	ErrNotFound = errors.New("store: not found")
)

// Store is the remote document store contract. Write on a bare
// collection path creates a record under a generated id and returns
// it; Write on a "collection/id" path overwrites. Patch merges the
// given fields into the stored object. Completion of a mutation is
// observed by subscribers through the next snapshot.
type Store interface {
	Subscribe(ctx context.Context, collection string, fn SnapshotFunc) (Unsubscribe, error)
	Write(ctx context.Context, path string, record any) (string, error)
	Patch(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
}

// splitPath resolves a path into collection and optional record id.
func splitPath(path string) (collection, id string, err error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", "", ErrBadPath
	}
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	if parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
		return "", "", ErrBadPath
	}
	return parts[0], parts[1], nil
}

// mergeFields applies a partial update to a stored JSON object.
func mergeFields(raw json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	record := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, err
		}
	}
	for k, v := range fields {
		record[k] = v
	}
	return json.Marshal(record)
}
