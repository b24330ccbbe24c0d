package models

import (
	"strings"
	"time"
)

// Location is a resolved location record. The scheduler only consumes the
// coordinate and operating-hours fields.
type Location struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	City           string          `json:"city,omitempty"`
	Category       string          `json:"category,omitempty"`
	Coordinates    *Coordinates    `json:"coordinates,omitempty"`
	OperatingHours *OperatingHours `json:"operating_hours,omitempty"`
}

// OperatingPeriod is one open interval on a weekday. A Close at or before
// Open means the period runs past midnight.
type OperatingPeriod struct {
	Day   string `json:"day"` // monday..sunday
	Open  string `json:"open"`
	Close string `json:"close"`
}

// OperatingHours lists the open periods of a location for a week
type OperatingHours struct {
	Periods []OperatingPeriod `json:"periods"`
}

// WeekdayName returns the lowercase English name used in OperatingPeriod.Day
func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// Window returns the operating window for the weekday and whether arrival
// (minutes since midnight) falls inside it. With several periods on the
// same day the one containing arrival wins, else the first.
func (h *OperatingHours) Window(day time.Weekday, arrival int) (*OperatingWindow, bool) {
	name := WeekdayName(day)
	var first *OperatingWindow
	for _, p := range h.Periods {
		if strings.ToLower(p.Day) != name {
			continue
		}
		open, err := ParseClock(p.Open)
		if err != nil {
			continue
		}
		closing, err := ParseClock(p.Close)
		if err != nil {
			continue
		}
		w := &OperatingWindow{Day: name, Open: p.Open, Close: p.Close}
		if first == nil {
			first = w
		}
		if periodContains(open, closing, arrival) {
			return w, true
		}
	}
	if first == nil {
		return &OperatingWindow{Day: name, Closed: true}, false
	}
	return first, false
}

func periodContains(open, closing, arrival int) bool {
	arrival %= MinutesPerDay
	if closing > MinutesPerDay {
		closing -= MinutesPerDay
	}
	if closing <= open {
		return arrival >= open || arrival < closing
	}
	return arrival >= open && arrival < closing
}
