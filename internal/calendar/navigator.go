package calendar

import (
	"fmt"
	"time"
)

type Span string

const (
	SpanWeek      Span = "week"
	SpanFortnight Span = "fortnight"
)

// ParseSpan defaults to a week when s is empty.
func ParseSpan(s string) (Span, error) {
	switch Span(s) {
	case "", SpanWeek:
		return SpanWeek, nil
	case SpanFortnight:
		return SpanFortnight, nil
	default:
		return "", fmt.Errorf("unknown calendar span %q", s)
	}
}

// Days is the number of cells shown for the span, which is also its paging step.
func (s Span) Days() int {
	if s == SpanFortnight {
		return 14
	}
	return 7
}

type CalendarDay struct {
	Date       Date   `json:"date"`
	Weekday    string `json:"weekday"`
	IsToday    bool   `json:"is_today"`
	IsSelected bool   `json:"is_selected"`
	EntryCount int    `json:"entry_count"`
}

type CalendarResponse struct {
	Reference Date           `json:"reference"`
	Span      Span           `json:"span"`
	Year      int            `json:"year"`
	Month     int            `json:"month"`
	Days      []*CalendarDay `json:"days"`
}

// Navigator resolves "today" against an injectable clock.
type Navigator struct {
	now func() time.Time
	loc *time.Location
}

func NewNavigator(loc *time.Location) *Navigator {
	if loc == nil {
		loc = time.UTC
	}
	return &Navigator{now: time.Now, loc: loc}
}

// WithClock returns a copy of the navigator that reads the time from now.
func (n *Navigator) WithClock(now func() time.Time) *Navigator {
	return &Navigator{now: now, loc: n.loc}
}

func (n *Navigator) Location() *time.Location {
	return n.loc
}

func (n *Navigator) Today() Date {
	return FromTime(n.now().In(n.loc))
}

func (n *Navigator) IsToday(d Date) bool {
	return IsSameDate(d, n.Today())
}

// Page moves ref one span forward (direction > 0) or back (direction < 0).
func (n *Navigator) Page(ref Date, span Span, direction int) Date {
	switch {
	case direction > 0:
		return PageBy(ref, span.Days())
	case direction < 0:
		return PageBy(ref, -span.Days())
	default:
		return ref
	}
}

// Grid lays out the span containing ref. counts maps yyyy-MM-dd to the
// number of itinerary entries on that day and may be nil.
func (n *Navigator) Grid(ref Date, span Span, counts map[string]int) *CalendarResponse {
	var dates []Date
	if span == SpanFortnight {
		dates = FortnightGrid(ref)
	} else {
		span = SpanWeek
		dates = WeekGrid(ref)
	}

	today := n.Today()
	days := make([]*CalendarDay, 0, len(dates))
	for _, d := range dates {
		days = append(days, &CalendarDay{
			Date:       d,
			Weekday:    d.Time().Weekday().String()[:3],
			IsToday:    IsSameDate(d, today),
			IsSelected: IsSameDate(d, ref),
			EntryCount: counts[d.String()],
		})
	}

	return &CalendarResponse{
		Reference: ref,
		Span:      span,
		Year:      ref.Year,
		Month:     int(ref.Month),
		Days:      days,
	}
}
