package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const changeChannelPrefix = "store:"

// Redis is a Store backed by a Redis instance. Each collection is a
// hash keyed by record id with JSON values; mutations publish on
// "store:<collection>" and every subscriber reloads the hash on a
// notification. A burst of notifications collapses into a single
// reload per collection via singleflight.
type Redis struct {
	client *redis.Client

	mu        sync.Mutex
	fanouts   map[string]*fanout
	reloads   singleflight.Group
	closeOnce sync.Once
	done      chan struct{}
}

type fanout struct {
	mu        sync.Mutex
	listeners map[int]SnapshotFunc
	nextID    int
}

// NewRedis connects to Redis and verifies the connection, the same way
// the rest of the platform dials its backends.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("platform/store: redis ping: %w", err)
	}

	return &Redis{
		client:  client,
		fanouts: make(map[string]*fanout),
		done:    make(chan struct{}),
	}, nil
}

// Close releases the underlying client. Active subscriptions stop
// receiving snapshots.
func (r *Redis) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return r.client.Close()
}

func (r *Redis) Subscribe(ctx context.Context, collection string, fn SnapshotFunc) (Unsubscribe, error) {
	f, err := r.fanoutFor(ctx, collection)
	if err != nil {
		return nil, err
	}

	// Load and register under the fanout lock: a change notification
	// that lands mid-subscribe is delivered after the initial
	// snapshot, never before it.
	f.mu.Lock()
	snap, err := r.loadShared(ctx, collection)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.nextID++
	id := f.nextID
	f.listeners[id] = fn
	fn(snap)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}, nil
}

func (r *Redis) Write(ctx context.Context, path string, record any) (string, error) {
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
	if err := r.client.HSet(ctx, collection, id, string(raw)).Err(); err != nil {
		return "", fmt.Errorf("platform/store: hset %s: %w", collection, err)
	}
	return id, r.publish(ctx, collection)
}

func (r *Redis) Patch(ctx context.Context, path string, fields map[string]any) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}
	if id == "" {
		return ErrBadPath
	}

	raw, err := r.client.HGet(ctx, collection, id).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("platform/store: hget %s/%s: %w", collection, id, err)
	}
	merged, err := mergeFields(raw, fields)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, collection, id, string(merged)).Err(); err != nil {
		return fmt.Errorf("platform/store: hset %s: %w", collection, err)
	}
	return r.publish(ctx, collection)
}

func (r *Redis) Delete(ctx context.Context, path string) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}
	if id == "" {
		if err := r.client.Del(ctx, collection).Err(); err != nil {
			return fmt.Errorf("platform/store: del %s: %w", collection, err)
		}
	} else {
		if err := r.client.HDel(ctx, collection, id).Err(); err != nil {
			return fmt.Errorf("platform/store: hdel %s/%s: %w", collection, id, err)
		}
	}
	return r.publish(ctx, collection)
}

func (r *Redis) publish(ctx context.Context, collection string) error {
	return r.client.Publish(ctx, changeChannelPrefix+collection, "1").Err()
}

func (r *Redis) load(ctx context.Context, collection string) (Snapshot, error) {
	values, err := r.client.HGetAll(ctx, collection).Result()
	if err != nil {
		return nil, fmt.Errorf("platform/store: hgetall %s: %w", collection, err)
	}
	snap := make(Snapshot, len(values))
	for id, raw := range values {
		snap[id] = json.RawMessage(raw)
	}
	return snap, nil
}

// loadShared collapses concurrent reloads of the same collection into
// a single HGETALL.
func (r *Redis) loadShared(ctx context.Context, collection string) (Snapshot, error) {
	snap, err, _ := r.reloads.Do(collection, func() (any, error) {
		return r.load(ctx, collection)
	})
	if err != nil {
		return nil, err
	}
	return snap.(Snapshot), nil
}

// fanoutFor lazily starts the pubsub listener for a collection.
func (r *Redis) fanoutFor(ctx context.Context, collection string) (*fanout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fanouts[collection]; ok {
		return f, nil
	}

	pubsub := r.client.Subscribe(ctx, changeChannelPrefix+collection)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("platform/store: subscribe %s: %w", collection, err)
	}

	f := &fanout{listeners: make(map[int]SnapshotFunc)}
	r.fanouts[collection] = f

	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-r.done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				r.broadcast(collection, f)
			}
		}
	}()

	return f, nil
}

func (r *Redis) broadcast(collection string, f *fanout) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := r.loadShared(ctx, collection)
	if err != nil {
		// Listeners keep their last snapshot; the next change
		// triggers another reload.
		return
	}

	// Delivery holds the fanout lock so it serializes against
	// subscription-time initial snapshots.
	f.mu.Lock()
	for _, fn := range f.listeners {
		fn(snap)
	}
	f.mu.Unlock()
}
