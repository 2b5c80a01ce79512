package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"travelPlannerAPI/internal/calendar"
	"travelPlannerAPI/internal/datasvc"
	"travelPlannerAPI/internal/itinerary"
)

const scheduleRoot = "schedule"

// ScheduleService reads and writes per-day itineraries under
// schedule/{user}/{date}/{entryID}.
type ScheduleService struct {
	data datasvc.Service
	nav  *calendar.Navigator
}

func NewScheduleService(data datasvc.Service, nav *calendar.Navigator) *ScheduleService {
	return &ScheduleService{
		data: data,
		nav:  nav,
	}
}

func (s *ScheduleService) Navigator() *calendar.Navigator {
	return s.nav
}

func bucketPath(userID string, date calendar.Date) (string, error) {
	return datasvc.Join(scheduleRoot, userID, date.String())
}

func entryPath(userID string, date calendar.Date, entryID string, field ...string) (string, error) {
	return datasvc.Join(append([]string{scheduleRoot, userID, date.String(), entryID}, field...)...)
}

func materialize(path, userID string, date calendar.Date, records datasvc.RecordSet) itinerary.Bucket {
	bucket, skipped := itinerary.Materialize(userID, date, records)
	for _, err := range skipped {
		log.Printf("[Schedule] skipping record in %s: %v", path, err)
	}
	return bucket
}

// BucketWatch streams snapshots of one day's itinerary. The first snapshot
// is the current state; each later one replaces the previous wholesale.
type BucketWatch struct {
	snapshots chan itinerary.Bucket
	sub       datasvc.Subscription
	done      chan struct{}

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// Snapshots is closed after Cancel.
func (w *BucketWatch) Snapshots() <-chan itinerary.Bucket {
	return w.snapshots
}

// Cancel stops the watch and releases the remote listener. It is safe to
// call more than once; a cancelled watch cannot be restarted.
func (w *BucketWatch) Cancel() {
	w.once.Do(func() {
		close(w.done)
		if w.sub != nil {
			w.sub.Unsubscribe()
		}
		w.mu.Lock()
		w.closed = true
		close(w.snapshots)
		w.mu.Unlock()
	})
}

func (w *BucketWatch) publish(b itinerary.Bucket) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.snapshots <- b:
	case <-w.done:
	}
}

// LoadBucket subscribes to the itinerary of userID on date. The watch ends
// when Cancel is called or ctx is done.
func (s *ScheduleService) LoadBucket(ctx context.Context, userID string, date calendar.Date) (*BucketWatch, error) {
	path, err := bucketPath(userID, date)
	if err != nil {
		return nil, err
	}

	w := &BucketWatch{
		snapshots: make(chan itinerary.Bucket, 1),
		done:      make(chan struct{}),
	}
	sub, err := s.data.Subscribe(ctx, path, func(rs datasvc.RecordSet) {
		w.publish(materialize(path, userID, date, rs))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}
	w.sub = sub

	go func() {
		select {
		case <-ctx.Done():
			w.Cancel()
		case <-w.done:
		}
	}()

	return w, nil
}

// GetBucket is a one-shot read of the itinerary of userID on date.
func (s *ScheduleService) GetBucket(ctx context.Context, userID string, date calendar.Date) (itinerary.Bucket, error) {
	path, err := bucketPath(userID, date)
	if err != nil {
		return itinerary.Bucket{}, err
	}
	rs, err := s.data.ReadOnce(ctx, path)
	if err != nil {
		return itinerary.Bucket{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return materialize(path, userID, date, rs), nil
}

// AddEntryIfAbsent schedules the destination on date unless an entry with
// the same name already exists, in which case that entry is returned and
// created is false. The check and the write are not atomic.
func (s *ScheduleService) AddEntryIfAbsent(ctx context.Context, userID string, date calendar.Date, name, place string) (itinerary.Entry, bool, error) {
	entry, err := itinerary.NewEntry(name, place)
	if err != nil {
		return itinerary.Entry{}, false, err
	}

	path, err := bucketPath(userID, date)
	if err != nil {
		return itinerary.Entry{}, false, err
	}
	records, err := s.data.ReadOnce(ctx, path)
	if err != nil {
		return itinerary.Entry{}, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if existing, ok := findRecordByName(records, name); ok {
		return existing, false, nil
	}

	id, err := s.data.Push(ctx, path)
	if err != nil {
		return itinerary.Entry{}, false, fmt.Errorf("failed to allocate entry in %s: %w", path, err)
	}
	entry.ID = id

	recordPath, err := entryPath(userID, date, id)
	if err != nil {
		return itinerary.Entry{}, false, err
	}
	if err := s.data.Write(ctx, recordPath, entry.Record()); err != nil {
		return itinerary.Entry{}, false, fmt.Errorf("failed to add entry %s: %w", recordPath, err)
	}

	log.Printf("[Schedule] %s added %q on %s", userID, name, date)
	return entry, true, nil
}

// findRecordByName matches on the stored locationName of every child,
// including records the bucket would skip as malformed.
func findRecordByName(records datasvc.RecordSet, name string) (itinerary.Entry, bool) {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec, ok := records[id].(map[string]any)
		if !ok {
			continue
		}
		if stored, _ := rec[itinerary.FieldLocationName].(string); stored != name {
			continue
		}
		if entry, err := itinerary.ParseRecord(id, rec); err == nil {
			return entry, true
		}
		place, _ := rec[itinerary.FieldLocationPlace].(string)
		return itinerary.Entry{
			ID:               id,
			DestinationName:  name,
			DestinationPlace: place,
			Hour:             itinerary.UnsetHour,
		}, true
	}
	return itinerary.Entry{}, false
}

// UpdateEntry writes the plan and time of an entry. Values are stored as
// given; callers normalize them with an itinerary.Editor first.
func (s *ScheduleService) UpdateEntry(ctx context.Context, userID string, date calendar.Date, entryID, plan string, hour, minute int) error {
	planPath, err := entryPath(userID, date, entryID, itinerary.FieldPlan)
	if err != nil {
		return err
	}
	timePath, _ := entryPath(userID, date, entryID, itinerary.FieldTime)

	if err := s.data.Write(ctx, planPath, plan); err != nil {
		return fmt.Errorf("failed to update plan of %s: %w", entryID, err)
	}
	if err := s.data.Write(ctx, timePath, itinerary.FormatTime(hour, minute)); err != nil {
		return fmt.Errorf("failed to update time of %s: %w", entryID, err)
	}
	return nil
}

// RemoveEntry deletes an entry. Removing a missing entry succeeds.
func (s *ScheduleService) RemoveEntry(ctx context.Context, userID string, date calendar.Date, entryID string) error {
	path, err := entryPath(userID, date, entryID)
	if err != nil {
		return err
	}
	if err := s.data.Delete(ctx, path); err != nil {
		return fmt.Errorf("failed to remove entry %s: %w", path, err)
	}
	return nil
}

// Buckets materializes every scheduled day of userID with one read.
func (s *ScheduleService) Buckets(ctx context.Context, userID string) (map[string]itinerary.Bucket, error) {
	path, err := datasvc.Join(scheduleRoot, userID)
	if err != nil {
		return nil, err
	}
	days, err := s.data.ReadOnce(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	out := make(map[string]itinerary.Bucket, len(days))
	for key, raw := range days {
		date, err := calendar.ParseDate(key)
		if err != nil {
			log.Printf("[Schedule] skipping day %s/%s: %v", path, key, err)
			continue
		}
		records, ok := raw.(map[string]any)
		if !ok {
			log.Printf("[Schedule] skipping day %s/%s: not a record set", path, key)
			continue
		}
		out[key] = materialize(path+"/"+key, userID, date, records)
	}
	return out, nil
}

// CountByDate returns the number of well-formed entries per scheduled day.
func (s *ScheduleService) CountByDate(ctx context.Context, userID string) (map[string]int, error) {
	buckets, err := s.Buckets(ctx, userID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(buckets))
	for key, b := range buckets {
		if len(b.Entries) > 0 {
			counts[key] = len(b.Entries)
		}
	}
	return counts, nil
}

// Calendar builds the grid around ref with per-day entry counts.
func (s *ScheduleService) Calendar(ctx context.Context, userID string, ref calendar.Date, span calendar.Span) (*calendar.CalendarResponse, error) {
	counts, err := s.CountByDate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.nav.Grid(ref, span, counts), nil
}
