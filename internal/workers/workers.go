package workers

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RefreshFunc recomputes a cached view.
type RefreshFunc func(ctx context.Context) error

// Scheduler runs named refresh jobs on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration

	// ctx is cancelled by Stop; every run derives its deadline from it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]bool
}

func NewScheduler(loc *time.Location, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]bool),
	}
}

// Add registers fn under spec, for example "@every 5m" or "*/10 * * * *".
// A run is skipped while the previous run of the same job is in flight.
func (s *Scheduler) Add(name, spec string, fn RefreshFunc) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s with %q: %w", name, spec, err)
	}
	log.Printf("Scheduled %s with %q", name, spec)
	return nil
}

func (s *Scheduler) run(name string, fn RefreshFunc) {
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		log.Printf("Skipping %s: previous run still in progress", name)
		return
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		log.Printf("Error running %s: %v", name, err)
		return
	}
	log.Printf("Finished %s in %s", name, time.Since(start).Round(time.Millisecond))
}

// RunNow runs a job once on the caller's goroutine.
func (s *Scheduler) RunNow(name string, fn RefreshFunc) {
	s.run(name, fn)
}

// Go runs a job once in the background. Stop waits for it.
func (s *Scheduler) Go(name string, fn RefreshFunc) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(name, fn)
	}()
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels the context of running jobs and waits for them to return,
// including those started with Go.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}
