package engine

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/classtrack/chime/internal/metrics"
	"github.com/classtrack/chime/internal/redis"
	"github.com/classtrack/chime/internal/schedule"
)

// ReminderScheduler scans the timetable once a minute and pushes a reminder
// for every session starting lookahead from now.
type ReminderScheduler struct {
	source    ScheduleSource
	pipeline  *Pipeline
	marker    DeliveryMarker // nil disables duplicate suppression
	lookahead time.Duration
	logger    *zap.Logger
	busy      atomic.Bool
}

// NewReminderScheduler creates the per-minute reminder trigger.
func NewReminderScheduler(source ScheduleSource, pipeline *Pipeline, marker DeliveryMarker, lookahead time.Duration, logger *zap.Logger) *ReminderScheduler {
	if lookahead <= 0 {
		lookahead = 10 * time.Minute
	}
	return &ReminderScheduler{
		source:    source,
		pipeline:  pipeline,
		marker:    marker,
		lookahead: lookahead,
		logger:    logger,
	}
}

// Start runs the tick loop until ctx is cancelled. Intended to be called
// with `go`. The first tick is aligned to the next wall-clock minute; only
// the matcher's one-minute granularity matters for correctness.
func (s *ReminderScheduler) Start(ctx context.Context) {
	first := time.Now().Truncate(time.Minute).Add(time.Minute)
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Until(first)):
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx, time.Now())
		}
	}
}

// tick runs one scan-and-dispatch cycle. A tick runs to completion before
// the guard is released; if the previous tick is still fanning out, this one
// is skipped rather than queued. Reminders are freshness-sensitive, and a
// late reminder is worse than a missed one.
func (s *ReminderScheduler) tick(ctx context.Context, now time.Time) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warn("previous tick still running, skipping")
		metrics.RecordTickSkipped(schedReminder)
		return
	}
	defer s.busy.Store(false)

	start := time.Now()
	defer func() { metrics.ObserveTick(schedReminder, time.Since(start)) }()

	occ := schedule.Target(now, s.lookahead)
	entries, err := s.source.DueSessions(ctx, int(occ.Weekday), occ.Start)
	if err != nil {
		// The next tick queries independently; no catch-up.
		s.logger.Error("schedule query failed, aborting tick", zap.Error(err))
		return
	}

	minutes := int(s.lookahead.Minutes())
	jobs := make([]Job, 0, len(entries))
	for _, e := range entries {
		if !schedule.Matches(now, time.Weekday(e.Session.Weekday), e.Session.StartTime, s.lookahead) {
			continue
		}
		if !firstSend(ctx, s.marker, s.logger, schedReminder, redis.ReminderKey(e.Subscription.ID, e.Session.ID, e.Session.Weekday, e.Session.StartTime), redis.ReminderMarkerTTL) {
			continue
		}
		jobs = append(jobs, Job{
			Sub:     e.Subscription,
			Payload: reminderPayload(e.Session, minutes),
		})
	}

	if len(jobs) == 0 {
		return
	}

	s.logger.Info("dispatching reminders",
		zap.Int("jobs", len(jobs)),
		zap.String("window", occ.Start),
	)
	metrics.RecordJobsBuilt(schedReminder, len(jobs))
	s.pipeline.Dispatch(ctx, schedReminder, jobs)
}
