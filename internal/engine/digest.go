package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classtrack/chime/internal/db"
	"github.com/classtrack/chime/internal/metrics"
	"github.com/classtrack/chime/internal/redis"
	"github.com/classtrack/chime/internal/schedule"
)

// DigestScheduler sends each subscribed device a single summary of
// tomorrow's classes, once per day at a fixed local time.
type DigestScheduler struct {
	source   ScheduleSource
	pipeline *Pipeline
	marker   DeliveryMarker // nil disables duplicate suppression
	hour     int            // local hour of day, 0-23
	logger   *zap.Logger
}

// NewDigestScheduler creates the nightly digest trigger.
func NewDigestScheduler(source ScheduleSource, pipeline *Pipeline, marker DeliveryMarker, hour int, logger *zap.Logger) *DigestScheduler {
	if hour < 0 || hour > 23 {
		hour = 21
	}
	return &DigestScheduler{
		source:   source,
		pipeline: pipeline,
		marker:   marker,
		hour:     hour,
		logger:   logger,
	}
}

// Start sleeps until the next configured wall-clock hour, runs, and repeats
// until ctx is cancelled. Intended to be called with `go`.
func (d *DigestScheduler) Start(ctx context.Context) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), d.hour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

		select {
		case <-ctx.Done():
			d.logger.Info("digest scheduler stopping")
			return
		case <-time.After(time.Until(next)):
			d.run(ctx, time.Now())
		}
	}
}

// run builds and dispatches one digest per subscription that has at least
// one class tomorrow. Subscriptions with an empty day are skipped entirely.
func (d *DigestScheduler) run(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() { metrics.ObserveTick(schedDigest, time.Since(start)) }()

	tomorrow := schedule.NextDay(now)
	entries, err := d.source.AgendaForWeekday(ctx, int(tomorrow))
	if err != nil {
		// Tonight's digest is lost; tomorrow's runs independently.
		d.logger.Error("agenda query failed, skipping digest", zap.Error(err))
		return
	}
	if len(entries) == 0 {
		d.logger.Info("no classes tomorrow, no digests to send")
		return
	}

	type agenda struct {
		sub      db.Subscription
		sessions []db.Session
	}
	bySub := make(map[uuid.UUID]*agenda)
	var order []uuid.UUID
	for _, e := range entries {
		a, ok := bySub[e.Subscription.ID]
		if !ok {
			a = &agenda{sub: e.Subscription}
			bySub[e.Subscription.ID] = a
			order = append(order, e.Subscription.ID)
		}
		a.sessions = append(a.sessions, e.Session)
	}

	date := now.AddDate(0, 0, 1).Format("2006-01-02")
	jobs := make([]Job, 0, len(order))
	for _, id := range order {
		a := bySub[id]
		// Zero-padded HH:MM sorts lexicographically; the digest body relies
		// on this ordering.
		sort.Slice(a.sessions, func(i, j int) bool {
			return a.sessions[i].StartTime < a.sessions[j].StartTime
		})
		if !firstSend(ctx, d.marker, d.logger, schedDigest, redis.DigestKey(id, date), redis.DigestMarkerTTL) {
			continue
		}
		jobs = append(jobs, Job{
			Sub:     a.sub,
			Payload: digestPayload(a.sessions),
		})
	}

	if len(jobs) == 0 {
		return
	}

	d.logger.Info("dispatching digests",
		zap.Int("jobs", len(jobs)),
		zap.String("weekday", tomorrow.String()),
	)
	metrics.RecordJobsBuilt(schedDigest, len(jobs))
	d.pipeline.Dispatch(ctx, schedDigest, jobs)
}
