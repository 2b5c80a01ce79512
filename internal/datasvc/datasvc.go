// Package datasvc is the remote key-value store the planner persists to:
// a tree addressed by slash-separated paths, with one-shot reads, upserts,
// server-assigned child ids, deletes and change subscriptions.
package datasvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidKey = errors.New("invalid data path key")
	ErrClosed     = errors.New("data service closed")
)

// RecordSet maps child keys of a path to their raw values. Nested records
// are map[string]any; leaves are string, float64, bool or nil.
type RecordSet map[string]any

// ChangeFunc receives the full child set of the subscribed path.
type ChangeFunc func(RecordSet)

type Subscription interface {
	// Unsubscribe stops further callbacks and releases the listener. It is
	// safe to call more than once.
	Unsubscribe()
}

type Service interface {
	// Subscribe calls onChange with the current children of path and again
	// after every change under it, in order, until the subscription is
	// cancelled or ctx is done.
	Subscribe(ctx context.Context, path string, onChange ChangeFunc) (Subscription, error)
	ReadOnce(ctx context.Context, path string) (RecordSet, error)
	// Write replaces the value at path.
	Write(ctx context.Context, path string, value any) error
	// Push allocates a new unique child key under path. Keys sort in
	// allocation order.
	Push(ctx context.Context, path string) (string, error)
	// Delete removes path and everything below it. Deleting a missing path
	// is not an error.
	Delete(ctx context.Context, path string) error
	Close() error
}

// ValidateKey rejects keys the realtime database refuses.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.ContainsAny(key, ".$#[]/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// Join validates every key and joins them into a path.
func Join(keys ...string) (string, error) {
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			return "", err
		}
	}
	return strings.Join(keys, "/"), nil
}

// Split cleans path and returns its keys.
func Split(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	keys := strings.Split(path, "/")
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func cleanPath(path string) (string, error) {
	keys, err := Split(path)
	if err != nil {
		return "", err
	}
	return strings.Join(keys, "/"), nil
}

// overlaps reports whether a change at one path can alter the value at the
// other.
func overlaps(a, b string) bool {
	if a == "" || b == "" || a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// children converts a raw node into its child set. Arrays come back from
// the realtime database for integer-like keys and are keyed by index.
func children(node any) RecordSet {
	switch v := node.(type) {
	case map[string]any:
		out := make(RecordSet, len(v))
		for k, child := range v {
			if child != nil {
				out[k] = clone(child)
			}
		}
		return out
	case []any:
		out := make(RecordSet, len(v))
		for i, child := range v {
			if child != nil {
				out[fmt.Sprint(i)] = clone(child)
			}
		}
		return out
	default:
		return RecordSet{}
	}
}

// clone deep-copies maps and slices so subscribers never share state with
// the store or with each other.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = clone(c)
		}
		return out
	case RecordSet:
		return clone(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = clone(c)
		}
		return out
	default:
		return t
	}
}
