package schedule

import (
	"fmt"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

var severities = map[models.ConflictKind]models.Severity{
	models.ConflictOverlap:            models.SeverityError,
	models.ConflictOutOfHours:         models.SeverityWarning,
	models.ConflictInsufficientBuffer: models.SeverityWarning,
}

// SeverityOf returns the severity assigned to a conflict kind
func SeverityOf(kind models.ConflictKind) models.Severity {
	return severities[kind]
}

// DetectConflicts evaluates every rule against every scheduled place
// activity. All matching rules are reported, in list order. Notes and
// unscheduled activities are skipped.
func DetectConflicts(activities []models.Activity) []models.Conflict {
	conflicts := []models.Conflict{}
	var prev *models.Activity

	for i := range activities {
		a := &activities[i]
		if !a.IsPlace() || a.Schedule == nil {
			continue
		}
		s := a.Schedule

		if prev != nil && s.ArrivalMinutes < prev.Schedule.DepartureMinutes {
			conflicts = append(conflicts, newConflict(a.ID, models.ConflictOverlap,
				fmt.Sprintf("Arrives at %s, before %q ends at %s", s.ArrivalTime, prev.Title, prev.Schedule.DepartureTime)))
		}

		if s.Status == models.StatusOutOfHours {
			conflicts = append(conflicts, newConflict(a.ID, models.ConflictOutOfHours, outOfHoursMessage(s)))
		}

		if s.ArrivalBufferMinutes < 0 {
			conflicts = append(conflicts, newConflict(a.ID, models.ConflictInsufficientBuffer,
				fmt.Sprintf("Pinned to %s but cannot arrive before %s (%d min short)",
					s.ArrivalTime, models.FormatClock(s.ArrivalMinutes-s.ArrivalBufferMinutes), -s.ArrivalBufferMinutes)))
		}

		prev = a
	}
	return conflicts
}

func newConflict(activityID string, kind models.ConflictKind, message string) models.Conflict {
	return models.Conflict{
		ActivityID: activityID,
		Kind:       kind,
		Severity:   SeverityOf(kind),
		Message:    message,
	}
}

func outOfHoursMessage(s *models.Schedule) string {
	w := s.OperatingWindow
	switch {
	case w == nil:
		return fmt.Sprintf("Arrives at %s outside operating hours", s.ArrivalTime)
	case w.Closed:
		return fmt.Sprintf("Closed on %s", w.Day)
	default:
		return fmt.Sprintf("Arrives at %s, open %s-%s", s.ArrivalTime, w.Open, w.Close)
	}
}

// Result is the emitted state of one computation pass
type Result struct {
	Activities []models.Activity
	Conflicts  []models.Conflict
}

// Run computes the schedule and then the conflicts over it
func Run(activities []models.Activity, opts Options) Result {
	scheduled := Compute(activities, opts)
	return Result{Activities: scheduled, Conflicts: DetectConflicts(scheduled)}
}
