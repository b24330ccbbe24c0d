package schedule

import (
	"time"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

// DefaultDayStart is the running clock start when a day has none configured
const DefaultDayStart = 9 * 60

// Options carries the per-day inputs of a computation pass
type Options struct {
	// DayStart is minutes since midnight
	DayStart int
	Weekday  time.Weekday
	// Hours maps activity id to operating hours. A missing or nil entry
	// means unknown hours, which never produce out-of-hours.
	Hours map[string]*models.OperatingHours
}

// Compute walks the ordered activities once and returns a copy with every
// schedule recomputed. Travel segments are read from TravelFromPrevious;
// the input slice is never modified.
func Compute(activities []models.Activity, opts Options) []models.Activity {
	out := make([]models.Activity, len(activities))
	copy(out, activities)

	clock := opts.DayStart
	if first := firstPlace(out); first >= 0 {
		if m, ok := manualMinutes(&out[first]); ok {
			clock = m
		}
	}

	for i := range out {
		a := &out[i]
		if !a.IsPlace() {
			a.Schedule = noteSchedule(a, clock)
			continue
		}

		travel := 0
		if a.TravelFromPrevious != nil {
			t := *a.TravelFromPrevious
			travel = t.DurationMinutes
			t.ArrivalTime = models.FormatClock(clock + travel)
			a.TravelFromPrevious = &t
		}
		implied := clock + travel

		arrival := implied
		buffer := 0
		if m, ok := manualMinutes(a); ok {
			arrival = m
			buffer = m - implied
		}

		departure := arrival
		if a.DurationMin > 0 {
			departure += a.DurationMin
		}

		s := &models.Schedule{
			ArrivalTime:          models.FormatClock(arrival),
			DepartureTime:        models.FormatClock(departure),
			ArrivalMinutes:       arrival,
			DepartureMinutes:     departure,
			Status:               models.StatusScheduled,
			ArrivalBufferMinutes: buffer,
		}
		if hours := opts.Hours[a.ID]; hours != nil {
			window, open := hours.Window(opts.Weekday, arrival)
			s.OperatingWindow = window
			if !open {
				s.Status = models.StatusOutOfHours
			}
		}
		a.Schedule = s
		clock = departure
	}
	return out
}

// noteSchedule pins a note at the running clock (or its manual time) without
// advancing the clock
func noteSchedule(a *models.Activity, clock int) *models.Schedule {
	arrival := clock
	if m, ok := manualMinutes(a); ok {
		arrival = m
	}
	departure := arrival
	if a.EndTime != "" {
		if end, err := models.ParseClock(a.EndTime); err == nil && end >= arrival {
			departure = end
		}
	}
	return &models.Schedule{
		ArrivalTime:      models.FormatClock(arrival),
		DepartureTime:    models.FormatClock(departure),
		ArrivalMinutes:   arrival,
		DepartureMinutes: departure,
		Status:           models.StatusScheduled,
	}
}

func manualMinutes(a *models.Activity) (int, bool) {
	if a.ManualStartTime == nil || *a.ManualStartTime == "" {
		return 0, false
	}
	m, err := models.ParseClock(*a.ManualStartTime)
	if err != nil {
		return 0, false
	}
	return m, true
}

func firstPlace(activities []models.Activity) int {
	for i := range activities {
		if activities[i].IsPlace() {
			return i
		}
	}
	return -1
}
