package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	col, id, err := splitPath("suppliers")
	require.NoError(t, err)
	require.Equal(t, "suppliers", col)
	require.Empty(t, id)

	col, id, err = splitPath("suppliers/abc")
	require.NoError(t, err)
	require.Equal(t, "suppliers", col)
	require.Equal(t, "abc", id)

	_, _, err = splitPath("")
	require.ErrorIs(t, err, ErrBadPath)

	_, _, err = splitPath("suppliers/abc/extra")
	require.ErrorIs(t, err, ErrBadPath)
}

func TestMemorySubscribeDeliversInitialSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Write(ctx, "suppliers", map[string]any{"name": "Acme"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var got Snapshot
	unsub, err := m.Subscribe(ctx, "suppliers", func(s Snapshot) { got = s })
	require.NoError(t, err)
	defer unsub()

	require.Len(t, got, 1)
	require.Contains(t, got, id)
}

func TestMemoryWriteEchoesToSubscribers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var calls []Snapshot
	unsub, err := m.Subscribe(ctx, "suppliers", func(s Snapshot) { calls = append(calls, s) })
	require.NoError(t, err)
	defer unsub()
	require.Len(t, calls, 1)
	require.Empty(t, calls[0])

	id, err := m.Write(ctx, "suppliers", map[string]any{"name": "Acme"})
	require.NoError(t, err)
	require.Len(t, calls, 2)
	require.Contains(t, calls[1], id)

	_, err = m.Write(ctx, "suppliers/"+id, map[string]any{"name": "Acme Ltd"})
	require.NoError(t, err)
	require.Len(t, calls, 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(calls[2][id], &rec))
	require.Equal(t, "Acme Ltd", rec["name"])
}

func TestMemoryPatchMergesFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Write(ctx, "suppliers", map[string]any{"name": "Acme", "origin": "MY"})
	require.NoError(t, err)

	require.NoError(t, m.Patch(ctx, "suppliers/"+id, map[string]any{"category": "Mechanical"}))

	var got Snapshot
	unsub, err := m.Subscribe(ctx, "suppliers", func(s Snapshot) { got = s })
	require.NoError(t, err)
	defer unsub()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(got[id], &rec))
	require.Equal(t, "Acme", rec["name"])
	require.Equal(t, "MY", rec["origin"])
	require.Equal(t, "Mechanical", rec["category"])
}

func TestMemoryPatchMissingRecord(t *testing.T) {
	m := NewMemory()
	err := m.Patch(context.Background(), "suppliers/nope", map[string]any{"a": 1})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDeleteRemovesRecord(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Write(ctx, "suppliers", map[string]any{"name": "Acme"})
	require.NoError(t, err)

	var got Snapshot
	unsub, err := m.Subscribe(ctx, "suppliers", func(s Snapshot) { got = s })
	require.NoError(t, err)
	defer unsub()
	require.Len(t, got, 1)

	require.NoError(t, m.Delete(ctx, "suppliers/"+id))
	require.Empty(t, got)
}

// versionOf reads the "v" field of one record in a snapshot; it runs
// inside snapshot callbacks, so it reports failures as -1 instead of
// stopping the test from a foreign goroutine.
func versionOf(snap Snapshot, id string) int {
	var rec struct {
		V int `json:"v"`
	}
	if err := json.Unmarshal(snap[id], &rec); err != nil {
		return -1
	}
	return rec.V
}

func TestMemorySubscribeNeverDeliversStaleAfterFresh(t *testing.T) {
	ctx := context.Background()

	// A write racing the subscription must not leave the subscriber
	// on the older registration-time snapshot: deliveries have to
	// arrive in version order, ending on the latest state.
	for i := 0; i < 200; i++ {
		m := NewMemory()
		id, err := m.Write(ctx, "suppliers", map[string]any{"v": 0})
		require.NoError(t, err)

		var (
			mu       sync.Mutex
			versions []int
			unsub    Unsubscribe
			writeErr error
			subErr   error
		)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, writeErr = m.Write(ctx, "suppliers/"+id, map[string]any{"v": 1})
		}()
		go func() {
			defer wg.Done()
			unsub, subErr = m.Subscribe(ctx, "suppliers", func(snap Snapshot) {
				mu.Lock()
				versions = append(versions, versionOf(snap, id))
				mu.Unlock()
			})
		}()
		wg.Wait()
		require.NoError(t, writeErr)
		require.NoError(t, subErr)
		unsub()

		for j := 1; j < len(versions); j++ {
			require.GreaterOrEqual(t, versions[j], versions[j-1],
				"iteration %d: snapshot order inverted: %v", i, versions)
		}
		require.Equal(t, 1, versions[len(versions)-1],
			"iteration %d: subscriber left on stale state: %v", i, versions)
	}
}

func TestMemoryUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	calls := 0
	unsub, err := m.Subscribe(ctx, "suppliers", func(Snapshot) { calls++ })
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	unsub()
	_, err = m.Write(ctx, "suppliers", map[string]any{"name": "Acme"})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
