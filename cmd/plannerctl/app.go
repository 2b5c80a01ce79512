package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"travelPlannerAPI/internal/calendar"
	"travelPlannerAPI/internal/itinerary"
	"travelPlannerAPI/services"
)

var errNoUser = errors.New("no user given: pass --user or set PLANNER_USER")

// App runs plannerctl commands against one schedule store.
type App struct {
	schedule *services.ScheduleService
	out      io.Writer
	user     string
}

func NewApp(schedule *services.ScheduleService, out io.Writer) *App {
	return &App{schedule: schedule, out: out}
}

func (a *App) userID() (string, error) {
	if a.user == "" {
		return "", errNoUser
	}
	return a.user, nil
}

// dateArg parses args[i] or falls back to today.
func (a *App) dateArg(args []string, i int) (calendar.Date, error) {
	if len(args) <= i || args[i] == "" || args[i] == "today" {
		return a.schedule.Navigator().Today(), nil
	}
	return calendar.ParseDate(args[i])
}

func (a *App) PrintGrid(ctx context.Context, ref calendar.Date, span calendar.Span) error {
	user, err := a.userID()
	if err != nil {
		return err
	}
	grid, err := a.schedule.Calendar(ctx, user, ref, span)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tDATE\tENTRIES\t")
	for _, d := range grid.Days {
		marker := ""
		switch {
		case d.IsToday && d.IsSelected:
			marker = "today, selected"
		case d.IsToday:
			marker = "today"
		case d.IsSelected:
			marker = "selected"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.Weekday, d.Date, d.EntryCount, marker)
	}
	return tw.Flush()
}

func formatEntryTime(e itinerary.Entry) string {
	if !e.HasTime() {
		return "--:--"
	}
	return fmt.Sprintf("%02d:%02d", e.Hour, e.Minute)
}

func (a *App) printBucket(b itinerary.Bucket) error {
	if len(b.Entries) == 0 {
		fmt.Fprintf(a.out, "Nothing planned on %s\n", b.Date)
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tDESTINATION\tPLACE\tPLAN\tID")
	for _, e := range b.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", formatEntryTime(e), e.DestinationName, e.DestinationPlace, strings.ReplaceAll(e.Plan, "\n", " "), e.ID)
	}
	return tw.Flush()
}

func (a *App) List(ctx context.Context, date calendar.Date) error {
	user, err := a.userID()
	if err != nil {
		return err
	}
	bucket, err := a.schedule.GetBucket(ctx, user, date)
	if err != nil {
		return err
	}
	return a.printBucket(bucket)
}

func (a *App) Add(ctx context.Context, date calendar.Date, name, place string) error {
	user, err := a.userID()
	if err != nil {
		return err
	}
	entry, created, err := a.schedule.AddEntryIfAbsent(ctx, user, date, name, place)
	if err != nil {
		return err
	}
	if !created {
		fmt.Fprintf(a.out, "%s is already planned on %s (%s)\n", name, date, entry.ID)
		return nil
	}
	fmt.Fprintf(a.out, "Added %s on %s (%s)\n", name, date, entry.ID)
	return nil
}

// Set edits an entry. Nil fields keep their stored value; the rest are
// coerced the same way the API coerces them.
func (a *App) Set(ctx context.Context, date calendar.Date, entryID string, hour, minute, plan *string) error {
	user, err := a.userID()
	if err != nil {
		return err
	}
	bucket, err := a.schedule.GetBucket(ctx, user, date)
	if err != nil {
		return err
	}
	entry, ok := bucket.Get(entryID)
	if !ok {
		return fmt.Errorf("no entry %s on %s", entryID, date)
	}

	editor := itinerary.NewEditor(entry)
	if hour != nil {
		editor.SetHour(*hour)
	}
	if minute != nil {
		editor.SetMinute(*minute)
	}
	if plan != nil {
		editor.SetPlan(*plan)
	}
	edit := editor.Submit()

	if err := a.schedule.UpdateEntry(ctx, user, date, entryID, edit.Plan, edit.Hour, edit.Minute); err != nil {
		return err
	}
	entry.Hour, entry.Minute, entry.Plan = edit.Hour, edit.Minute, edit.Plan
	fmt.Fprintf(a.out, "Updated %s: %s %s\n", entry.DestinationName, formatEntryTime(entry), entry.Plan)
	return nil
}

func (a *App) Clear(ctx context.Context, date calendar.Date, entryID string) error {
	user, err := a.userID()
	if err != nil {
		return err
	}
	if err := a.schedule.RemoveEntry(ctx, user, date, entryID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed %s from %s\n", entryID, date)
	return nil
}

// Watch prints every snapshot of the day until ctx is done.
func (a *App) Watch(ctx context.Context, date calendar.Date) error {
	user, err := a.userID()
	if err != nil {
		return err
	}
	watch, err := a.schedule.LoadBucket(ctx, user, date)
	if err != nil {
		return err
	}
	defer watch.Cancel()

	for bucket := range watch.Snapshots() {
		fmt.Fprintf(a.out, "== %s ==\n", bucket.Date)
		if err := a.printBucket(bucket); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Export(ctx context.Context, ref calendar.Date, span calendar.Span) error {
	user, err := a.userID()
	if err != nil {
		return err
	}
	doc, err := a.schedule.ExportICS(ctx, user, ref, span)
	if err != nil {
		return err
	}
	_, err = io.WriteString(a.out, doc)
	return err
}
