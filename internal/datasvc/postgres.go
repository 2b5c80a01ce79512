package datasvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	changeChannel = "data_nodes_changed"

	createDataNodesSQL = `
	CREATE TABLE IF NOT EXISTS data_nodes (
		path       TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

	deleteSubtreeSQL   = `DELETE FROM data_nodes WHERE path = $1 OR starts_with(path, $1 || '/')`
	deleteAncestorsSQL = `DELETE FROM data_nodes WHERE path = ANY($1)`
	insertLeafSQL      = `INSERT INTO data_nodes (path, value, updated_at) VALUES ($1, $2::text::jsonb, NOW())`
	selectSubtreeSQL   = `SELECT path, value::text FROM data_nodes WHERE path = $1 OR starts_with(path, $1 || '/')`
	selectAllSQL       = `SELECT path, value::text FROM data_nodes`
	notifySQL          = `SELECT pg_notify($1, $2)`
)

// PostgresService stores the tree as one row per leaf, keyed by full path.
// Writers publish the changed path with NOTIFY; a single LISTEN connection
// fans changes out to the subscriptions whose path overlaps it.
type PostgresService struct {
	pool *pgxpool.Pool
	load func(ctx context.Context, path string) (RecordSet, error)

	mu     sync.Mutex
	subs   map[*subscription]*pgTarget
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPostgresService(ctx context.Context, pool *pgxpool.Pool) (*PostgresService, error) {
	if _, err := pool.Exec(ctx, createDataNodesSQL); err != nil {
		return nil, fmt.Errorf("failed to create data_nodes table: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	p := &PostgresService{
		pool:   pool,
		subs:   make(map[*subscription]*pgTarget),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.load = p.read
	go p.listen(listenCtx)

	return p, nil
}

func (p *PostgresService) listen(ctx context.Context) {
	defer close(p.done)

	for {
		err := p.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("[datasvc/postgres] listener stopped: %v, reconnecting", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
		// Changes may have been missed while disconnected.
		p.refreshAll(ctx, "")
	}
}

func (p *PostgresService) listenOnce(ctx context.Context) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		p.refreshAll(ctx, n.Payload)
	}
}

// pgTarget is the subscribed path. mu keeps read-then-enqueue atomic per
// subscription, so snapshots are queued in the order they were read.
type pgTarget struct {
	path string
	mu   sync.Mutex
}

func (p *PostgresService) deliver(ctx context.Context, s *subscription, t *pgTarget) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.d.stopped() {
		return nil
	}
	rs, err := p.load(ctx, t.path)
	if err != nil {
		return err
	}
	s.d.enqueue(rs)
	return nil
}

// refreshAll re-reads every subscription affected by a change at changed.
func (p *PostgresService) refreshAll(ctx context.Context, changed string) {
	p.mu.Lock()
	targets := make(map[*subscription]*pgTarget)
	for s, t := range p.subs {
		if overlaps(t.path, changed) {
			targets[s] = t
		}
	}
	p.mu.Unlock()

	for s, t := range targets {
		if err := p.deliver(ctx, s, t); err != nil {
			log.Printf("[datasvc/postgres] refresh %s failed: %v", t.path, err)
		}
	}
}

// Subscribe registers before the first read, so a change committed while
// that read runs is delivered as a later snapshot.
func (p *PostgresService) Subscribe(ctx context.Context, path string, onChange ChangeFunc) (Subscription, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	s := &subscription{d: newDispatcher(onChange)}
	s.release = func() {
		p.mu.Lock()
		delete(p.subs, s)
		p.mu.Unlock()
	}
	t := &pgTarget{path: clean}
	p.subs[s] = t
	p.mu.Unlock()

	if err := p.deliver(ctx, s, t); err != nil {
		s.Unsubscribe()
		return nil, fmt.Errorf("failed to read %s: %w", clean, err)
	}
	bindContext(ctx, s)

	return s, nil
}

func (p *PostgresService) ReadOnce(ctx context.Context, path string) (RecordSet, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	return p.read(ctx, clean)
}

func (p *PostgresService) read(ctx context.Context, path string) (RecordSet, error) {
	query, args := selectSubtreeSQL, []any{path}
	if path == "" {
		query, args = selectAllSQL, nil
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer rows.Close()

	tree := make(map[string]any)
	for rows.Next() {
		var leafPath, raw string
		if err := rows.Scan(&leafPath, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", path, err)
		}
		if leafPath == path {
			// The path itself holds a scalar, so it has no children.
			return RecordSet{}, nil
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			log.Printf("[datasvc/postgres] skipping undecodable leaf %s: %v", leafPath, err)
			continue
		}

		rel := leafPath
		if path != "" {
			rel = strings.TrimPrefix(leafPath, path+"/")
		}
		setLeaf(tree, strings.Split(rel, "/"), value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return children(tree), nil
}

func setLeaf(tree map[string]any, keys []string, value any) {
	node := tree
	for _, k := range keys[:len(keys)-1] {
		next, ok := node[k].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[k] = next
		}
		node = next
	}
	node[keys[len(keys)-1]] = value
}

func (p *PostgresService) Write(ctx context.Context, path string, value any) error {
	keys, err := Split(path)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: cannot write the root", ErrInvalidKey)
	}
	clean := strings.Join(keys, "/")

	normalized, err := normalize(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", clean, err)
	}
	leaves := make(map[string]string)
	if err := flatten(clean, normalized, leaves); err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", clean, err)
	}

	ancestors := make([]string, 0, len(keys)-1)
	for i := 1; i < len(keys); i++ {
		ancestors = append(ancestors, strings.Join(keys[:i], "/"))
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin write of %s: %w", clean, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteSubtreeSQL, clean); err != nil {
		return fmt.Errorf("failed to clear %s: %w", clean, err)
	}
	if len(ancestors) > 0 {
		if _, err := tx.Exec(ctx, deleteAncestorsSQL, ancestors); err != nil {
			return fmt.Errorf("failed to clear parents of %s: %w", clean, err)
		}
	}
	for leafPath, raw := range leaves {
		if _, err := tx.Exec(ctx, insertLeafSQL, leafPath, raw); err != nil {
			return fmt.Errorf("failed to write %s: %w", leafPath, err)
		}
	}
	if _, err := tx.Exec(ctx, notifySQL, changeChannel, clean); err != nil {
		return fmt.Errorf("failed to publish change of %s: %w", clean, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit write of %s: %w", clean, err)
	}
	return nil
}

// flatten encodes every scalar under value as a JSON leaf keyed by path.
// Empty objects produce no rows, matching the realtime database.
func flatten(path string, value any, out map[string]string) error {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range v {
			if err := ValidateKey(k); err != nil {
				return err
			}
			if err := flatten(path+"/"+k, child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, child := range v {
			if err := flatten(fmt.Sprintf("%s/%d", path, i), child, out); err != nil {
				return err
			}
		}
		return nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[path] = string(b)
		return nil
	}
}

func (p *PostgresService) Push(ctx context.Context, path string) (string, error) {
	if _, err := cleanPath(path); err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to allocate push id: %w", err)
	}
	return id.String(), nil
}

func (p *PostgresService) Delete(ctx context.Context, path string) error {
	clean, err := cleanPath(path)
	if err != nil {
		return err
	}
	if clean == "" {
		return fmt.Errorf("%w: cannot delete the root", ErrInvalidKey)
	}

	tag, err := p.pool.Exec(ctx, deleteSubtreeSQL, clean)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", clean, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	if _, err := p.pool.Exec(ctx, notifySQL, changeChannel, clean); err != nil {
		return fmt.Errorf("failed to publish change of %s: %w", clean, err)
	}
	return nil
}

// Close stops the listener and cancels every subscription. The pool is
// owned by the caller.
func (p *PostgresService) Close() error {
	p.mu.Lock()
	p.closed = true
	subs := make([]*subscription, 0, len(p.subs))
	for s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	p.cancel()
	<-p.done
	return nil
}
