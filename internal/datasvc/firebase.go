package datasvc

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"firebase.google.com/go/v4/db"
)

const defaultPollInterval = 2 * time.Second

// FirebaseService talks to the Firebase Realtime Database through the Admin
// SDK. The SDK has no streaming listener, so subscriptions poll the path
// with ETag-conditional reads and only fire when the value changed.
type FirebaseService struct {
	client       *db.Client
	pollInterval time.Duration

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

func NewFirebaseService(client *db.Client, pollInterval time.Duration) *FirebaseService {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &FirebaseService{
		client:       client,
		pollInterval: pollInterval,
		subs:         make(map[*subscription]struct{}),
	}
}

// conditionalGetter is the part of *db.Ref the poll loop uses.
type conditionalGetter interface {
	GetIfChanged(ctx context.Context, etag string, v interface{}) (bool, string, error)
}

func (f *FirebaseService) ref(path string) (*db.Ref, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	return f.client.NewRef(p), nil
}

func (f *FirebaseService) Subscribe(ctx context.Context, path string, onChange ChangeFunc) (Subscription, error) {
	ref, err := f.ref(path)
	if err != nil {
		return nil, err
	}

	// The first read runs on the caller's context so permission and network
	// failures surface to the subscriber instead of a log line.
	var node any
	etag, err := ref.GetWithETag(ctx, &node)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref.Path, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	s := &subscription{d: newDispatcher(onChange)}
	s.release = func() {
		cancel()
		f.mu.Lock()
		delete(f.subs, s)
		f.mu.Unlock()
	}
	f.subs[s] = struct{}{}
	s.d.enqueue(children(node))
	bindContext(ctx, s)

	go f.poll(pollCtx, ref, ref.Path, etag, s.d)

	return s, nil
}

func (f *FirebaseService) poll(ctx context.Context, ref conditionalGetter, path, etag string, d *dispatcher) {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var node any
		changed, newETag, err := ref.GetIfChanged(ctx, etag, &node)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[datasvc/firebase] poll %s failed: %v", path, err)
			continue
		}
		if !changed {
			continue
		}
		etag = newETag
		d.enqueue(children(node))
	}
}

func (f *FirebaseService) ReadOnce(ctx context.Context, path string) (RecordSet, error) {
	ref, err := f.ref(path)
	if err != nil {
		return nil, err
	}
	var node any
	if err := ref.Get(ctx, &node); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref.Path, err)
	}
	return children(node), nil
}

func (f *FirebaseService) Write(ctx context.Context, path string, value any) error {
	ref, err := f.ref(path)
	if err != nil {
		return err
	}
	if ref.Path == "/" {
		return fmt.Errorf("%w: cannot write the root", ErrInvalidKey)
	}
	if err := ref.Set(ctx, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", ref.Path, err)
	}
	return nil
}

// Push lets the server allocate the key. The SDK stores an empty string at
// the new key until the caller writes the record; readers skip it as
// malformed in the meantime.
func (f *FirebaseService) Push(ctx context.Context, path string) (string, error) {
	ref, err := f.ref(path)
	if err != nil {
		return "", err
	}
	child, err := ref.Push(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to push under %s: %w", ref.Path, err)
	}
	return child.Key, nil
}

func (f *FirebaseService) Delete(ctx context.Context, path string) error {
	ref, err := f.ref(path)
	if err != nil {
		return err
	}
	if err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref.Path, err)
	}
	return nil
}

func (f *FirebaseService) Close() error {
	f.mu.Lock()
	subs := make([]*subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.closed = true
	f.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	return nil
}
