package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Repository handles database operations for subscriptions and the
// timetable read model.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// SaveSubscription inserts a push subscription if it does not exist yet.
// Subscribing the same (user_id, endpoint) twice leaves exactly one row.
func (r *Repository) SaveSubscription(ctx context.Context, sub *Subscription) error {
	query := `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, endpoint) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		sub.ID,
		sub.UserID,
		sub.Endpoint,
		sub.P256dh,
		sub.Auth,
	)
	if err != nil {
		r.logger.Error("failed to save subscription",
			zap.Error(err),
			zap.String("user_id", sub.UserID.String()),
		)
		return fmt.Errorf("insert subscription: %w", err)
	}

	return nil
}

// DeleteSubscriptionByEndpoint removes a subscription keyed by its endpoint.
// Deleting an absent endpoint is a no-op and returns 0 rows.
func (r *Repository) DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) (int64, error) {
	result, err := r.db.Pool().Exec(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return 0, fmt.Errorf("delete subscription: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListSubscriptions returns every stored subscription.
func (r *Repository) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}

	return subs, rows.Err()
}

const entryColumns = `
	p.id, p.user_id, p.endpoint, p.p256dh, p.auth, p.created_at,
	t.id, t.user_id, t.subject, t.location, t.weekday, t.start_time, t.end_time
`

// DueSessions returns one entry per (subscription, session) pair where the
// session's recurring start lands on the given weekday and minute. The join
// keeps this a single indexed read per tick instead of a per-session scan
// over all subscriptions.
func (r *Repository) DueSessions(ctx context.Context, weekday int, start string) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM timetable_sessions t
		JOIN push_subscriptions p ON p.user_id = t.user_id
		WHERE t.weekday = $1 AND t.start_time = $2
	`

	rows, err := r.db.Pool().Query(ctx, query, weekday, start)
	if err != nil {
		return nil, fmt.Errorf("query due sessions: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// AgendaForWeekday returns every (subscription, session) pair for sessions on
// the given weekday, ordered per subscription by start time ascending.
// Subscriptions with no sessions that day simply produce no rows.
func (r *Repository) AgendaForWeekday(ctx context.Context, weekday int) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM timetable_sessions t
		JOIN push_subscriptions p ON p.user_id = t.user_id
		WHERE t.weekday = $1
		ORDER BY p.id, t.start_time ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, weekday)
	if err != nil {
		return nil, fmt.Errorf("query agenda: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEntries(rows pgxRows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.Subscription.ID,
			&e.Subscription.UserID,
			&e.Subscription.Endpoint,
			&e.Subscription.P256dh,
			&e.Subscription.Auth,
			&e.Subscription.CreatedAt,
			&e.Session.ID,
			&e.Session.UserID,
			&e.Session.Subject,
			&e.Session.Location,
			&e.Session.Weekday,
			&e.Session.StartTime,
			&e.Session.EndTime,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
