package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (rec *snapshotRecorder) record(s Snapshot) {
	rec.mu.Lock()
	rec.snaps = append(rec.snaps, s)
	rec.mu.Unlock()
}

func (rec *snapshotRecorder) latest() Snapshot {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.snaps) == 0 {
		return nil
	}
	return rec.snaps[len(rec.snaps)-1]
}

func TestRedisSubscribeDeliversInitialSnapshot(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)

	id, err := r.Write(ctx, "suppliers", map[string]any{"name": "Acme"})
	require.NoError(t, err)

	rec := &snapshotRecorder{}
	unsub, err := r.Subscribe(ctx, "suppliers", rec.record)
	require.NoError(t, err)
	defer unsub()

	require.Contains(t, rec.latest(), id)
}

func TestRedisWriteEchoesToSubscribers(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)

	rec := &snapshotRecorder{}
	unsub, err := r.Subscribe(ctx, "suppliers", rec.record)
	require.NoError(t, err)
	defer unsub()
	require.Empty(t, rec.latest())

	id, err := r.Write(ctx, "suppliers", map[string]any{"name": "Acme"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap := rec.latest()
		_, ok := snap[id]
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisPatchMergesFields(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)

	id, err := r.Write(ctx, "suppliers", map[string]any{"name": "Acme", "origin": "MY"})
	require.NoError(t, err)

	require.NoError(t, r.Patch(ctx, "suppliers/"+id, map[string]any{"category": "Mechanical"}))
	require.ErrorIs(t, r.Patch(ctx, "suppliers/nope", map[string]any{"a": 1}), ErrNotFound)

	rec := &snapshotRecorder{}
	unsub, err := r.Subscribe(ctx, "suppliers", rec.record)
	require.NoError(t, err)
	defer unsub()

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.latest()[id], &got))
	require.Equal(t, "Acme", got["name"])
	require.Equal(t, "Mechanical", got["category"])
}

func TestRedisSubscribeNeverDeliversStaleAfterFresh(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)

	// A write racing the subscription must not leave the subscriber
	// on the older registration-time snapshot. Each round uses its
	// own collection so notifications cannot leak across rounds.
	for i := 0; i < 25; i++ {
		collection := fmt.Sprintf("suppliers%d", i)
		id, err := r.Write(ctx, collection, map[string]any{"v": 0})
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
			_, writeErr = r.Write(ctx, collection+"/"+id, map[string]any{"v": 1})
		}()
		go func() {
			defer wg.Done()
			unsub, subErr = r.Subscribe(ctx, collection, func(snap Snapshot) {
				mu.Lock()
				versions = append(versions, versionOf(snap, id))
				mu.Unlock()
			})
		}()
		wg.Wait()
		require.NoError(t, writeErr)
		require.NoError(t, subErr)

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(versions) > 0 && versions[len(versions)-1] == 1
		}, 2*time.Second, 5*time.Millisecond, "subscriber left on stale state")
		unsub()

		mu.Lock()
		for j := 1; j < len(versions); j++ {
			require.GreaterOrEqual(t, versions[j], versions[j-1],
				"round %d: snapshot order inverted: %v", i, versions)
		}
		mu.Unlock()
	}
}

func TestRedisDelete(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)

	id, err := r.Write(ctx, "suppliers", map[string]any{"name": "Acme"})
	require.NoError(t, err)

	rec := &snapshotRecorder{}
	unsub, err := r.Subscribe(ctx, "suppliers", rec.record)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, r.Delete(ctx, "suppliers/"+id))
	require.Eventually(t, func() bool {
		return len(rec.latest()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
