package service

import (
	"fmt"
	"time"

	"voicelog/internal/calendar"
	"voicelog/internal/models"
)

// nearEndDays is the largest days_remaining still shown as near the end.
const nearEndDays = 2

// ComputeProgress derives a session's progress as of today. It reads nothing
// but its arguments, so equal inputs always give equal results.
func ComputeProgress(session *models.Session, today time.Time, cal *calendar.Calendar) models.SessionProgress {
	start := calendar.DateOf(session.StartDate)
	end := calendar.DateOf(session.PlannedEndDate)
	today = calendar.DateOf(today)
	cal = cal.WithLeave(session.LeaveDates)

	total := calendar.DaysInclusive(start, end)

	elapsedUntil := today
	if elapsedUntil.After(end) {
		elapsedUntil = end
	}
	elapsed := max(0, calendar.DaysBetween(start, elapsedUntil)+1)

	remaining := calendar.DaysBetween(today, end)

	var pct float64
	if total > 0 {
		pct = min(100, max(0, 100*float64(elapsed)/float64(total)))
	}

	status := models.ProgressOnTrack
	switch {
	case remaining < 0:
		status = models.ProgressOverdue
	case remaining > 0 && remaining <= nearEndDays:
		status = models.ProgressNearEnd
	}

	return models.SessionProgress{
		ProgressPercentage: pct,
		DaysElapsed:        elapsed,
		DaysTotal:          total,
		DaysRemaining:      remaining,
		WorkingDays:        cal.WorkingDays(start, today),
		LeaveDays:          cal.LeaveDaysBetween(start, end),
		Status:             status,
		StatusText:         statusText(remaining),
	}
}

func statusText(remaining int) string {
	switch {
	case remaining < -1:
		return fmt.Sprintf("%d days overdue", -remaining)
	case remaining == -1:
		return "1 day overdue"
	case remaining == 0:
		return "Last day!"
	case remaining == 1:
		return "1 day remaining"
	default:
		return fmt.Sprintf("%d days remaining", remaining)
	}
}
