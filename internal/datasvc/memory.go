package datasvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryService keeps the tree in process. Values are normalized through
// JSON on write so readers see the same types a remote backend returns.
type MemoryService struct {
	mu     sync.Mutex
	root   map[string]any
	subs   map[*subscription]string
	closed bool
}

func NewMemoryService() *MemoryService {
	return &MemoryService{
		root: make(map[string]any),
		subs: make(map[*subscription]string),
	}
}

func (m *MemoryService) Subscribe(ctx context.Context, path string, onChange ChangeFunc) (Subscription, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	s := &subscription{d: newDispatcher(onChange)}
	s.release = func() {
		m.mu.Lock()
		delete(m.subs, s)
		m.mu.Unlock()
	}
	m.subs[s] = p
	s.d.enqueue(children(m.nodeAt(p)))
	bindContext(ctx, s)

	return s, nil
}

func (m *MemoryService) ReadOnce(ctx context.Context, path string) (RecordSet, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return children(m.nodeAt(p)), nil
}

func (m *MemoryService) Write(ctx context.Context, path string, value any) error {
	keys, err := Split(path)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: cannot write the root", ErrInvalidKey)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	normalized, err := normalize(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", path, err)
	}
	if normalized == nil {
		return m.Delete(ctx, path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	node := m.root
	for _, k := range keys[:len(keys)-1] {
		next, ok := node[k].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[k] = next
		}
		node = next
	}
	node[keys[len(keys)-1]] = normalized

	m.notifyLocked(joinKeys(keys))
	return nil
}

func (m *MemoryService) Push(ctx context.Context, path string) (string, error) {
	if _, err := cleanPath(path); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to allocate push id: %w", err)
	}
	return id.String(), nil
}

func (m *MemoryService) Delete(ctx context.Context, path string) error {
	keys, err := Split(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if len(keys) == 0 {
		m.root = make(map[string]any)
		m.notifyLocked("")
		return nil
	}

	// Remember the chain so empty parents can be pruned afterwards.
	chain := []map[string]any{m.root}
	node := m.root
	for _, k := range keys[:len(keys)-1] {
		next, ok := node[k].(map[string]any)
		if !ok {
			return nil
		}
		chain = append(chain, next)
		node = next
	}
	last := keys[len(keys)-1]
	if _, ok := node[last]; !ok {
		return nil
	}
	delete(node, last)

	for i := len(chain) - 1; i > 0; i-- {
		if len(chain[i]) > 0 {
			break
		}
		delete(chain[i-1], keys[i-1])
	}

	m.notifyLocked(joinKeys(keys))
	return nil
}

func (m *MemoryService) Close() error {
	m.mu.Lock()
	subs := make([]*subscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.closed = true
	m.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	return nil
}

func (m *MemoryService) nodeAt(path string) any {
	keys, _ := Split(path)
	var node any = m.root
	for _, k := range keys {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = obj[k]
	}
	return node
}

func (m *MemoryService) notifyLocked(changed string) {
	for s, p := range m.subs {
		if overlaps(p, changed) {
			s.d.enqueue(children(m.nodeAt(p)))
		}
	}
}

func joinKeys(keys []string) string {
	p, _ := Join(keys...)
	return p
}

func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
