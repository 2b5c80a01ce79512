package itinerary

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"travelPlannerAPI/internal/calendar"
)

// Field names of an entry record under schedule/{user}/{date}/{entryID}.
const (
	FieldLocationName  = "locationName"
	FieldLocationPlace = "locationPlace"
	FieldPlan          = "plan"
	FieldTime          = "time"
)

const (
	// UnsetHour marks an entry without a time of day.
	UnsetHour = 24
	MaxHour   = 24
	MaxMinute = 59
)

var (
	ErrEmptyDestination = errors.New("destination name is required")
	ErrMalformedRecord  = errors.New("malformed itinerary record")
)

type Entry struct {
	ID               string `json:"id"`
	DestinationName  string `json:"destination_name"`
	DestinationPlace string `json:"destination_place"`
	Hour             int    `json:"hour"`
	Minute           int    `json:"minute"`
	Plan             string `json:"plan"`
}

// NewEntry is an unpersisted entry with no time and an empty plan.
func NewEntry(name, place string) (Entry, error) {
	if strings.TrimSpace(name) == "" {
		return Entry{}, ErrEmptyDestination
	}
	return Entry{
		DestinationName:  name,
		DestinationPlace: place,
		Hour:             UnsetHour,
		Minute:           0,
	}, nil
}

func (e Entry) HasTime() bool {
	return e.Hour != UnsetHour
}

// SortKey is minutes since midnight; unset entries sort after every timed one.
func (e Entry) SortKey() int {
	return e.Hour*60 + e.Minute
}

func (e Entry) TimeString() string {
	return FormatTime(e.Hour, e.Minute)
}

// Record is the stored form of the entry, without its id.
func (e Entry) Record() map[string]any {
	return map[string]any{
		FieldLocationName:  e.DestinationName,
		FieldLocationPlace: e.DestinationPlace,
		FieldPlan:          e.Plan,
		FieldTime:          e.TimeString(),
	}
}

// FormatTime renders the stored "{hour}:{minute}" form, without padding.
func FormatTime(hour, minute int) string {
	return strconv.Itoa(hour) + ":" + strconv.Itoa(minute)
}

// ParseTime decodes "{hour}:{minute}". Values out of range are coerced the
// same way the editor coerces user input.
func ParseTime(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: time %q", ErrMalformedRecord, s)
	}
	hour, err = strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time %q", ErrMalformedRecord, s)
	}
	minute, err = strconv.Atoi(strings.TrimSpace(m))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time %q", ErrMalformedRecord, s)
	}
	hour = clampHour(hour)
	return hour, clampMinute(minute, hour), nil
}

// ParseRecord decodes one child of a bucket. Missing place, plan and time
// fall back to defaults; a missing or empty name, or any field of the wrong
// type, makes the record malformed.
func ParseRecord(id string, raw any) (Entry, error) {
	rec, ok := raw.(map[string]any)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s is %T", ErrMalformedRecord, id, raw)
	}

	name, err := stringField(rec, FieldLocationName)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", id, err)
	}
	if strings.TrimSpace(name) == "" {
		return Entry{}, fmt.Errorf("%w: %s has no %s", ErrMalformedRecord, id, FieldLocationName)
	}
	place, err := stringField(rec, FieldLocationPlace)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", id, err)
	}
	plan, err := stringField(rec, FieldPlan)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", id, err)
	}

	entry := Entry{
		ID:               id,
		DestinationName:  name,
		DestinationPlace: place,
		Hour:             UnsetHour,
		Plan:             plan,
	}

	ts, err := stringField(rec, FieldTime)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", id, err)
	}
	if ts != "" {
		entry.Hour, entry.Minute, err = ParseTime(ts)
		if err != nil {
			return Entry{}, fmt.Errorf("%s: %w", id, err)
		}
	}

	return entry, nil
}

func stringField(rec map[string]any, key string) (string, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T", ErrMalformedRecord, key, v)
	}
	return s, nil
}

// Bucket is one user's itinerary for one day. Entries are always sorted.
type Bucket struct {
	UserID  string        `json:"user_id"`
	Date    calendar.Date `json:"date"`
	Entries []Entry       `json:"entries"`
}

// Find returns the entry scheduled for the named destination.
func (b Bucket) Find(name string) (Entry, bool) {
	for _, e := range b.Entries {
		if e.DestinationName == name {
			return e, true
		}
	}
	return Entry{}, false
}

func (b Bucket) Get(id string) (Entry, bool) {
	for _, e := range b.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Materialize parses every child record, drops the malformed ones and
// returns the sorted bucket together with the parse errors it skipped.
func Materialize(userID string, date calendar.Date, records map[string]any) (Bucket, []error) {
	var skipped []error
	entries := make([]Entry, 0, len(records))
	for id, raw := range records {
		entry, err := ParseRecord(id, raw)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		entries = append(entries, entry)
	}
	SortEntries(entries)

	return Bucket{UserID: userID, Date: date, Entries: entries}, skipped
}

// SortEntries orders by time of day, then by id. Push ids are time-ordered,
// so equal times keep insertion order.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ki, kj := entries[i].SortKey(), entries[j].SortKey()
		if ki != kj {
			return ki < kj
		}
		return entries[i].ID < entries[j].ID
	})
}
