package board

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"sprintboard/internal/domain"
)

// StatusText describes where a sprint stands relative to now, or "" when
// there is nothing to say.
func StatusText(s domain.Sprint, now time.Time) string {
	start, end, err := s.Window()
	if err != nil {
		return ""
	}
	switch {
	case s.Status == domain.SprintCompleted:
		return "Sprint Ended"
	case s.Status == domain.SprintActive && now.After(end):
		return "Overdue by " + distance(now, end)
	case s.Status == domain.SprintPlanned && now.Before(start):
		return "Starts in " + distance(now, start)
	}
	return ""
}

func distance(a, b time.Time) string {
	return strings.TrimSpace(humanize.RelTime(a, b, "", ""))
}

// CanStart reports whether a start request at now would pass the lifecycle check.
func CanStart(s domain.Sprint, now time.Time) bool {
	if s.Status != domain.SprintPlanned {
		return false
	}
	start, end, err := s.Window()
	if err != nil {
		return false
	}
	return !now.Before(start) && !now.After(end)
}

func CanComplete(s domain.Sprint) bool {
	return s.Status == domain.SprintActive
}
