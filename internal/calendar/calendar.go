package calendar

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the text form used for dates in paths and URLs.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid calendar date")

// Date is a Gregorian calendar day without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate validates the triple and returns the corresponding Date.
func NewDate(year int, month time.Month, day int) (Date, error) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDate, year, int(month), day)
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

// FromTime takes the calendar day of t in t's own location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return FromTime(t), nil
}

func (d Date) String() string {
	return d.Time().Format(DateLayout)
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// In returns midnight of the day in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return FromTime(d.Time().AddDate(0, 0, n))
}

// ISOWeekday is 1 for Monday through 7 for Sunday.
func (d Date) ISOWeekday() int {
	wd := int(d.Time().Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// WeekStart is the Monday of the week containing ref.
func WeekStart(ref Date) Date {
	return ref.AddDays(-(ref.ISOWeekday() - 1))
}

// WeekGrid returns the Monday-first week containing ref.
func WeekGrid(ref Date) []Date {
	return grid(WeekStart(ref), 7)
}

// FortnightGrid returns two consecutive Monday-first weeks, the first of
// which contains ref.
func FortnightGrid(ref Date) []Date {
	return grid(WeekStart(ref), 14)
}

func grid(start Date, n int) []Date {
	days := make([]Date, n)
	for i := range days {
		days[i] = start.AddDays(i)
	}
	return days
}

func PageBy(ref Date, deltaDays int) Date {
	return ref.AddDays(deltaDays)
}

func IsSameDate(a, b Date) bool {
	return a == b
}
