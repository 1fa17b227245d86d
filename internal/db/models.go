package db

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is a browser push subscription for one (user, device) pair.
// At most one row exists per (user_id, endpoint); duplicate subscribes are no-ops.
type Subscription struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"keys_p256dh"`
	Auth      string    `json:"keys_auth"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one weekly-recurring timetable slot. The engine treats these as
// read-only: recurrence is explicit (weekday + time of day), never derived
// from an absolute date.
type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Subject   string    `json:"subject"`
	Location  *string   `json:"location,omitempty"`
	Weekday   int       `json:"weekday"`    // time.Weekday numbering, 0 = Sunday
	StartTime string    `json:"start_time"` // zero-padded "HH:MM"
	EndTime   string    `json:"end_time"`
}

// Entry is a joined (subscription, session) row produced by the schedule
// queries: one entry per device that should hear about one session.
type Entry struct {
	Subscription Subscription
	Session      Session
}
