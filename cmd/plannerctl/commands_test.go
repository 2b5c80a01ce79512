package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelPlannerAPI/internal/calendar"
	"travelPlannerAPI/internal/datasvc"
	"travelPlannerAPI/services"
)

type cli struct {
	schedule *services.ScheduleService
	out      *bytes.Buffer
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("PLANNER_USER", "")
	data := datasvc.NewMemoryService()
	t.Cleanup(func() { data.Close() })
	nav := calendar.NewNavigator(time.UTC).WithClock(func() time.Time {
		return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	})
	return &cli{schedule: services.NewScheduleService(data, nav), out: &bytes.Buffer{}}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c.out.Reset()
	cmd := SetupCommands(NewApp(c.schedule, c.out))
	cmd.SetArgs(args)
	cmd.SetOut(c.out)
	cmd.SetErr(c.out)
	err := cmd.ExecuteContext(context.Background())
	return c.out.String(), err
}

func TestCommandsRequireUser(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "list", "2024-05-01")
	assert.ErrorIs(t, err, errNoUser)
}

func TestAddListSetClear(t *testing.T) {
	c := newCLI(t)
	ctx := context.Background()

	out, err := c.run(t, "-u", "u1", "add", "2024-05-01", "Hanoi", "Vietnam")
	require.NoError(t, err)
	assert.Contains(t, out, "Added Hanoi on 2024-05-01")

	out, err = c.run(t, "-u", "u1", "add", "2024-05-01", "Hanoi")
	require.NoError(t, err)
	assert.Contains(t, out, "already planned")

	bucket, err := c.schedule.GetBucket(ctx, "u1", calendar.Date{Year: 2024, Month: 5, Day: 1})
	require.NoError(t, err)
	require.Len(t, bucket.Entries, 1)
	id := bucket.Entries[0].ID

	out, err = c.run(t, "-u", "u1", "list", "2024-05-01")
	require.NoError(t, err)
	assert.Contains(t, out, "--:--")
	assert.Contains(t, out, "Hanoi")

	out, err = c.run(t, "-u", "u1", "set", "2024-05-01", id, "--hour", "14", "--minute", "5", "--plan", "Walk old quarter")
	require.NoError(t, err)
	assert.Contains(t, out, "14:05 Walk old quarter")

	out, err = c.run(t, "-u", "u1", "set", "2024-05-01", id, "--plan", "Eat pho")
	require.NoError(t, err)
	assert.Contains(t, out, "14:05 Eat pho")

	_, err = c.run(t, "-u", "u1", "set", "2024-05-01", "nope", "--plan", "x")
	assert.Error(t, err)

	out, err = c.run(t, "-u", "u1", "clear", "2024-05-01", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")

	out, err = c.run(t, "-u", "u1", "list", "2024-05-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing planned on 2024-05-01")
}

func TestWeekAndFortnight(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "-u", "u1", "add", "2024-05-02", "Hue")
	require.NoError(t, err)

	out, err := c.run(t, "-u", "u1", "week")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 8)
	assert.Contains(t, lines[1], "2024-04-29")
	assert.Contains(t, lines[3], "today, selected")
	assert.Regexp(t, `2024-05-02\s+1`, lines[4])

	out, err = c.run(t, "-u", "u1", "fortnight", "2024-05-01")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 15)

	_, err = c.run(t, "-u", "u1", "week", "2024-13-01")
	assert.ErrorIs(t, err, calendar.ErrInvalidDate)
}

func TestExport(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "-u", "u1", "add", "2024-05-01", "Hanoi")
	require.NoError(t, err)

	out, err := c.run(t, "-u", "u1", "export", "2024-05-01", "--span", "fortnight")
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "SUMMARY:Hanoi")

	_, err = c.run(t, "-u", "u1", "export", "--span", "year")
	assert.Error(t, err)
}

func TestWatchStopsWithContext(t *testing.T) {
	c := newCLI(t)
	app := NewApp(c.schedule, c.out)
	app.user = "u1"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, app.Watch(ctx, calendar.Date{Year: 2024, Month: 5, Day: 1}))
	assert.Contains(t, c.out.String(), "== 2024-05-01 ==")
	assert.Contains(t, c.out.String(), "Nothing planned")
}
