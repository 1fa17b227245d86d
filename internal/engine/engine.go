// Package engine drives the class-reminder and nightly-digest schedulers:
// periodic triggers that scan the recurring timetable, build notification
// jobs, and fan them out to push endpoints. Delivery is best-effort and
// at-least-once within a running process; there is no retry queue and no
// cross-restart state beyond the optional Redis delivery markers.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/classtrack/chime/internal/db"
	"github.com/classtrack/chime/internal/metrics"
	"github.com/classtrack/chime/internal/push"
)

// Scheduler names used in logs and metric labels.
const (
	schedReminder = "reminder"
	schedDigest   = "digest"
)

// ScheduleSource is the read-only view over the recurring timetable joined
// to active subscriptions.
type ScheduleSource interface {
	// DueSessions returns (subscription, session) pairs whose recurring
	// start falls on the given weekday and "HH:MM" minute.
	DueSessions(ctx context.Context, weekday int, start string) ([]db.Entry, error)
	// AgendaForWeekday returns all pairs for sessions on the given weekday,
	// ordered per subscription by start time ascending.
	AgendaForWeekday(ctx context.Context, weekday int) ([]db.Entry, error)
}

// SubscriptionStore is the engine's only write surface: deleting
// subscriptions whose endpoints are permanently gone.
type SubscriptionStore interface {
	DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) (int64, error)
}

// DeliveryMarker suppresses duplicate sends within a window. A nil marker
// disables suppression; errors are treated as "not sent yet" so delivery
// stays at-least-once.
type DeliveryMarker interface {
	FirstSend(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Job pairs one subscription with one payload. Jobs live for a single tick
// and are never persisted; a failed job is simply dropped.
type Job struct {
	Sub     db.Subscription
	Payload push.Payload
}

// firstSend consults the delivery marker. Marker failures allow the send:
// a duplicate beats a silently dropped notification.
func firstSend(ctx context.Context, marker DeliveryMarker, logger *zap.Logger, scheduler, key string, ttl time.Duration) bool {
	if marker == nil {
		return true
	}
	first, err := marker.FirstSend(ctx, key, ttl)
	if err != nil {
		logger.Warn("delivery marker unavailable, sending anyway", zap.Error(err))
		return true
	}
	if !first {
		metrics.RecordDuplicateSuppressed(scheduler)
	}
	return first
}
