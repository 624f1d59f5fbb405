package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const duplicateTable = "42P07"

// Postgres is a Store backed by a single documents table. Change
// fan-out rides on LISTEN/NOTIFY: every mutation NOTIFYs the
// collection's channel and a dedicated listener connection reloads the
// collection for all subscribers.
type Postgres struct {
	pool *pgxpool.Pool

	mu        sync.Mutex
	fanouts   map[string]*fanout
	closeOnce sync.Once
	done      chan struct{}
}

// NewPostgres connects a pool, verifies it, and ensures the documents
// table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/store: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/store: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/store: ping: %w", err)
	}

	p := &Postgres{
		pool:    pool,
		fanouts: make(map[string]*fanout),
		done:    make(chan struct{}),
	}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close stops notification listeners and releases the pool.
func (p *Postgres) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	p.pool.Close()
	return nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, id)
	)`
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		var pgErr *pgconn.PgError
		// Concurrent startup can race on CREATE TABLE; a duplicate
		// object error means another instance won.
		if errors.As(err, &pgErr) && pgErr.Code == duplicateTable {
			return nil
		}
		return fmt.Errorf("platform/store: ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) Subscribe(ctx context.Context, collection string, fn SnapshotFunc) (Unsubscribe, error) {
	f, err := p.fanoutFor(ctx, collection)
	if err != nil {
		return nil, err
	}

	// Load and register under the fanout lock: a notification that
	// lands mid-subscribe is delivered after the initial snapshot,
	// never before it.
	f.mu.Lock()
	snap, err := p.load(ctx, collection)
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

func (p *Postgres) Write(ctx context.Context, path string, record any) (string, error) {
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
	const q = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	if _, err := p.pool.Exec(ctx, q, collection, id, raw); err != nil {
		return "", fmt.Errorf("platform/store: write %s/%s: %w", collection, id, err)
	}
	return id, p.notify(ctx, collection)
}

func (p *Postgres) Patch(ctx context.Context, path string, fields map[string]any) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}
	if id == "" {
		return ErrBadPath
	}
	partial, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	const q = `UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2`
	tag, err := p.pool.Exec(ctx, q, collection, id, partial)
	if err != nil {
		return fmt.Errorf("platform/store: patch %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return p.notify(ctx, collection)
}

func (p *Postgres) Delete(ctx context.Context, path string) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}
	if id == "" {
		_, err = p.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1`, collection)
	} else {
		_, err = p.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	}
	if err != nil {
		return fmt.Errorf("platform/store: delete %s: %w", path, err)
	}
	return p.notify(ctx, collection)
}

func (p *Postgres) notify(ctx context.Context, collection string) error {
	_, err := p.pool.Exec(ctx, `SELECT pg_notify($1, '1')`, changeChannelPrefix+collection)
	if err != nil {
		return fmt.Errorf("platform/store: notify %s: %w", collection, err)
	}
	return nil
}

func (p *Postgres) load(ctx context.Context, collection string) (Snapshot, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, data FROM documents WHERE collection = $1`, collection)
	if err != nil {
		return nil, fmt.Errorf("platform/store: load %s: %w", collection, err)
	}
	defer rows.Close()

	snap := make(Snapshot)
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		snap[id] = json.RawMessage(data)
	}
	return snap, rows.Err()
}

// fanoutFor lazily starts the LISTEN loop for a collection on a
// dedicated connection.
func (p *Postgres) fanoutFor(ctx context.Context, collection string) (*fanout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.fanouts[collection]; ok {
		return f, nil
	}

	f := &fanout{listeners: make(map[int]SnapshotFunc)}
	p.fanouts[collection] = f

	go p.listen(collection, f)
	return f, nil
}

func (p *Postgres) listen(collection string, f *fanout) {
	channel := changeChannelPrefix + collection
	for {
		select {
		case <-p.done:
			return
		default:
		}
		if err := p.listenOnce(channel, collection, f); err != nil {
			// Connection lost; back off and re-establish LISTEN.
			select {
			case <-p.done:
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (p *Postgres) listenOnce(channel, collection string, f *fanout) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return err
	}

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return err
		}
		p.broadcast(collection, f)
	}
}

func (p *Postgres) broadcast(collection string, f *fanout) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := p.load(ctx, collection)
	if err != nil {
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
