package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestNewDateRejectsInvalid(t *testing.T) {
	_, err := NewDate(2023, time.February, 29)
	assert.ErrorIs(t, err, ErrInvalidDate)

	d, err := NewDate(2024, time.February, 29)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())
}

func TestParseDate(t *testing.T) {
	d := mustDate(t, "2024-05-01")
	assert.Equal(t, Date{Year: 2024, Month: time.May, Day: 1}, d)

	for _, bad := range []string{"", "2024-5-1", "2024-13-01", "01/05/2024", "2024-02-30"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestISOWeekday(t *testing.T) {
	assert.Equal(t, 1, mustDate(t, "2024-04-29").ISOWeekday()) // Monday
	assert.Equal(t, 3, mustDate(t, "2024-05-01").ISOWeekday())
	assert.Equal(t, 7, mustDate(t, "2024-05-05").ISOWeekday())
}

func TestWeekGridStartsMondayAndContainsReference(t *testing.T) {
	start := mustDate(t, "2023-12-20")
	for i := 0; i < 400; i++ {
		ref := start.AddDays(i)
		week := WeekGrid(ref)

		require.Len(t, week, 7)
		assert.Equal(t, time.Monday, week[0].Time().Weekday(), ref.String())
		assert.Contains(t, week, ref)
		for j := 1; j < len(week); j++ {
			assert.Equal(t, week[j-1].AddDays(1), week[j])
		}
	}
}

func TestWeekGridAcrossYearBoundary(t *testing.T) {
	week := WeekGrid(mustDate(t, "2025-01-01"))
	assert.Equal(t, "2024-12-30", week[0].String())
	assert.Equal(t, "2025-01-05", week[6].String())
}

func TestFortnightGrid(t *testing.T) {
	ref := mustDate(t, "2024-05-05") // Sunday
	days := FortnightGrid(ref)

	require.Len(t, days, 14)
	assert.Equal(t, WeekGrid(ref), days[:7])
	assert.Equal(t, WeekGrid(ref.AddDays(7)), days[7:])
	assert.Equal(t, "2024-04-29", days[0].String())
	assert.Equal(t, "2024-05-12", days[13].String())
}

func TestPageByRoundTrip(t *testing.T) {
	ref := mustDate(t, "2024-02-27")
	for _, delta := range []int{7, -7, 14, -14, 1, 365} {
		assert.Equal(t, ref, PageBy(PageBy(ref, delta), -delta))
	}
	assert.Equal(t, "2024-03-05", PageBy(ref, 7).String())
}

func TestIsSameDate(t *testing.T) {
	assert.True(t, IsSameDate(mustDate(t, "2024-05-01"), Date{2024, time.May, 1}))
	assert.False(t, IsSameDate(mustDate(t, "2024-05-01"), mustDate(t, "2024-05-02")))
}

func TestNavigatorIsTodayUsesLocation(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	clock := func() time.Time { return time.Date(2024, time.April, 30, 20, 0, 0, 0, time.UTC) }
	nav := NewNavigator(loc).WithClock(clock)

	assert.Equal(t, "2024-05-01", nav.Today().String())
	assert.True(t, nav.IsToday(mustDate(t, "2024-05-01")))
	assert.False(t, nav.IsToday(mustDate(t, "2024-04-30")))
}

func TestNavigatorPage(t *testing.T) {
	nav := NewNavigator(nil)
	ref := mustDate(t, "2024-05-01")

	assert.Equal(t, "2024-05-08", nav.Page(ref, SpanWeek, 1).String())
	assert.Equal(t, "2024-04-17", nav.Page(ref, SpanFortnight, -1).String())
	assert.Equal(t, ref, nav.Page(ref, SpanWeek, 0))
}

func TestNavigatorGrid(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC) }
	nav := NewNavigator(time.UTC).WithClock(clock)
	ref := mustDate(t, "2024-05-01")

	resp := nav.Grid(ref, SpanFortnight, map[string]int{"2024-05-01": 2, "2024-05-10": 1})

	require.Len(t, resp.Days, 14)
	assert.Equal(t, SpanFortnight, resp.Span)
	assert.Equal(t, 2024, resp.Year)
	assert.Equal(t, 5, resp.Month)
	assert.Equal(t, "Mon", resp.Days[0].Weekday)

	wed := resp.Days[2]
	assert.Equal(t, ref, wed.Date)
	assert.True(t, wed.IsSelected)
	assert.False(t, wed.IsToday)
	assert.Equal(t, 2, wed.EntryCount)
	assert.True(t, resp.Days[3].IsToday)
	assert.Equal(t, 1, resp.Days[11].EntryCount)
}

func TestParseSpan(t *testing.T) {
	s, err := ParseSpan("")
	require.NoError(t, err)
	assert.Equal(t, SpanWeek, s)

	s, err = ParseSpan("fortnight")
	require.NoError(t, err)
	assert.Equal(t, 14, s.Days())

	_, err = ParseSpan("month")
	assert.Error(t, err)
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		D Date `json:"d"`
	}{mustDate(t, "2024-05-01")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2024-05-01"}`, string(b))

	var out struct {
		D Date `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"2024-12-31"}`), &out))
	assert.Equal(t, "2024-12-31", out.D.String())
}
