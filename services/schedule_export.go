package services

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"travelPlannerAPI/internal/calendar"
	"travelPlannerAPI/internal/itinerary"
)

const (
	icsProductID     = "-//travelPlanner//Itinerary//EN"
	timedEntryLength = time.Hour
)

// ExportICS renders the itinerary of every day in the span around ref as
// an iCalendar document. Entries without a time become all-day events.
func (s *ScheduleService) ExportICS(ctx context.Context, userID string, ref calendar.Date, span calendar.Span) (string, error) {
	buckets, err := s.Buckets(ctx, userID)
	if err != nil {
		return "", err
	}

	var dates []calendar.Date
	if span == calendar.SpanFortnight {
		dates = calendar.FortnightGrid(ref)
	} else {
		dates = calendar.WeekGrid(ref)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetXWRCalName(fmt.Sprintf("Itinerary %s", dates[0]))

	stamp := time.Now().UTC()
	for _, d := range dates {
		b, ok := buckets[d.String()]
		if !ok {
			continue
		}
		for _, e := range b.Entries {
			addEntryEvent(cal, userID, d, e, s.nav.Location(), stamp)
		}
	}

	return cal.Serialize(), nil
}

func addEntryEvent(cal *ics.Calendar, userID string, d calendar.Date, e itinerary.Entry, loc *time.Location, stamp time.Time) {
	event := cal.AddEvent(fmt.Sprintf("%s-%s@travelplanner", userID, e.ID))
	event.SetDtStampTime(stamp)
	event.SetSummary(e.DestinationName)
	if e.DestinationPlace != "" {
		event.SetLocation(e.DestinationPlace)
	}
	if e.Plan != "" {
		event.SetDescription(e.Plan)
	}

	if !e.HasTime() {
		event.SetAllDayStartAt(d.In(loc))
		event.SetAllDayEndAt(d.AddDays(1).In(loc))
		return
	}
	start := time.Date(d.Year, d.Month, d.Day, e.Hour, e.Minute, 0, 0, loc)
	event.SetStartAt(start)
	event.SetEndAt(start.Add(timedEntryLength))
}
