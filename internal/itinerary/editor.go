package itinerary

import (
	"strconv"
	"strings"
)

// Edit is the normalized set of mutable fields handed to the store.
type Edit struct {
	Plan   string `json:"plan"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
}

// Editor holds the in-progress field values of one entry. Invalid input is
// coerced, never rejected.
type Editor struct {
	hour   int
	minute int
	plan   string
}

func NewEditor(e Entry) *Editor {
	hour := clampHour(e.Hour)
	return &Editor{
		hour:   hour,
		minute: clampMinute(e.Minute, hour),
		plan:   e.Plan,
	}
}

func (ed *Editor) SetHour(raw string) int {
	ed.hour = NormalizeHour(raw)
	ed.minute = clampMinute(ed.minute, ed.hour)
	return ed.hour
}

func (ed *Editor) SetMinute(raw string) int {
	ed.minute = NormalizeMinute(raw, ed.hour)
	return ed.minute
}

func (ed *Editor) SetPlan(raw string) string {
	ed.plan = raw
	return ed.plan
}

func (ed *Editor) Submit() Edit {
	return Edit{Plan: ed.plan, Hour: ed.hour, Minute: ed.minute}
}

// NormalizeHour parses raw as an hour in [0,24]; unparsable input is 0.
func NormalizeHour(raw string) int {
	return clampHour(parseInt(raw))
}

// NormalizeMinute parses raw as a minute in [0,59]; unparsable input is 0
// and any minute is 0 when currentHour is 24.
func NormalizeMinute(raw string, currentHour int) int {
	return clampMinute(parseInt(raw), currentHour)
}

func parseInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

func clampHour(h int) int {
	return min(max(h, 0), MaxHour)
}

func clampMinute(m, hour int) int {
	if hour == UnsetHour {
		return 0
	}
	return min(max(m, 0), MaxMinute)
}
