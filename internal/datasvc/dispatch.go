package datasvc

import (
	"context"
	"sync"
)

// dispatcher delivers snapshots to one subscriber on its own goroutine, in
// the order they were queued. The queue is unbounded so a slow subscriber
// never blocks the backend that produces changes.
type dispatcher struct {
	fn ChangeFunc

	mu     sync.Mutex
	queue  []RecordSet
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newDispatcher(fn ChangeFunc) *dispatcher {
	d := &dispatcher{
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(rs RecordSet) {
	d.mu.Lock()
	d.queue = append(d.queue, rs)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher) stop() {
	d.once.Do(func() { close(d.done) })
}

func (d *dispatcher) stopped() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.signal:
		}

		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			next := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()

			if d.stopped() {
				return
			}
			d.fn(next)
		}
	}
}

// subscription ties a dispatcher to the backend-specific release function.
type subscription struct {
	d       *dispatcher
	release func()
	once    sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.d.stop()
		if s.release != nil {
			s.release()
		}
	})
}

// bindContext cancels the subscription when ctx is done.
func bindContext(ctx context.Context, s *subscription) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Unsubscribe()
		case <-s.d.done:
		}
	}()
}
