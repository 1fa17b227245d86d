package engine

import (
	"fmt"
	"strings"

	"github.com/classtrack/chime/internal/db"
	"github.com/classtrack/chime/internal/push"
)

func reminderPayload(s db.Session, minutes int) push.Payload {
	body := fmt.Sprintf("%s starts in %d mins", s.Subject, minutes)
	if s.Location != nil && *s.Location != "" {
		body += fmt.Sprintf(" in %s", *s.Location)
	}
	return push.Payload{
		Title: "Class Reminder",
		Body:  body,
	}
}

// digestPayload summarizes tomorrow's sessions, already sorted by start time.
func digestPayload(sessions []db.Session) push.Payload {
	parts := make([]string, len(sessions))
	for i, s := range sessions {
		parts[i] = fmt.Sprintf("%s (%s)", s.Subject, s.StartTime)
	}

	noun := "classes"
	if len(sessions) == 1 {
		noun = "class"
	}

	return push.Payload{
		Title: "Tomorrow's Schedule",
		Body: fmt.Sprintf("You have %d %s tomorrow: %s",
			len(sessions), noun, strings.Join(parts, ", ")),
	}
}
