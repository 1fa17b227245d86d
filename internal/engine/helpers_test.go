package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classtrack/chime/internal/db"
	"github.com/classtrack/chime/internal/push"
)

// fakeBackend implements ScheduleSource and SubscriptionStore over in-memory
// slices, joining sessions to subscriptions by user the way the SQL does.
type fakeBackend struct {
	mu        sync.Mutex
	subs      []db.Subscription
	sessions  []db.Session
	dueErr    error
	agendaErr error
}

func (f *fakeBackend) DueSessions(_ context.Context, weekday int, start string) ([]db.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dueErr != nil {
		return nil, f.dueErr
	}

	var entries []db.Entry
	for _, sess := range f.sessions {
		if sess.Weekday != weekday || sess.StartTime != start {
			continue
		}
		for _, sub := range f.subs {
			if sub.UserID == sess.UserID {
				entries = append(entries, db.Entry{Subscription: sub, Session: sess})
			}
		}
	}
	return entries, nil
}

func (f *fakeBackend) AgendaForWeekday(_ context.Context, weekday int) ([]db.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agendaErr != nil {
		return nil, f.agendaErr
	}

	var entries []db.Entry
	for _, sub := range f.subs {
		for _, sess := range f.sessions {
			if sess.Weekday == weekday && sub.UserID == sess.UserID {
				entries = append(entries, db.Entry{Subscription: sub, Session: sess})
			}
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Subscription.ID != entries[j].Subscription.ID {
			return entries[i].Subscription.ID.String() < entries[j].Subscription.ID.String()
		}
		return entries[i].Session.StartTime < entries[j].Session.StartTime
	})
	return entries, nil
}

func (f *fakeBackend) DeleteSubscriptionByEndpoint(_ context.Context, endpoint string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var kept []db.Subscription
	var deleted int64
	for _, sub := range f.subs {
		if sub.Endpoint == endpoint {
			deleted++
			continue
		}
		kept = append(kept, sub)
	}
	f.subs = kept
	return deleted, nil
}

func (f *fakeBackend) hasEndpoint(endpoint string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.Endpoint == endpoint {
			return true
		}
	}
	return false
}

type sentPush struct {
	endpoint string
	payload  push.Payload
}

// fakeSender records sends and answers with a per-endpoint result
// (Delivered by default). When block is set, Send waits on it first.
type fakeSender struct {
	mu      sync.Mutex
	results map[string]push.Result
	sent    []sentPush
	block   chan struct{}
}

func (f *fakeSender) Send(_ context.Context, sub *db.Subscription, payload push.Payload) push.Result {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPush{endpoint: sub.Endpoint, payload: payload})
	if res, ok := f.results[sub.Endpoint]; ok {
		return res
	}
	return push.Result{Status: push.Delivered}
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) sentPushes() []sentPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPush(nil), f.sent...)
}

// fakeMarker is an in-memory DeliveryMarker.
type fakeMarker struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (f *fakeMarker) FirstSend(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func strptr(s string) *string { return &s }

func newSubscription(userID uuid.UUID, endpoint string) db.Subscription {
	return db.Subscription{
		ID:       uuid.New(),
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   "p256dh",
		Auth:     "auth",
	}
}

func newSession(userID uuid.UUID, subject string, weekday int, start string, location *string) db.Session {
	return db.Session{
		ID:        uuid.New(),
		UserID:    userID,
		Subject:   subject,
		Location:  location,
		Weekday:   weekday,
		StartTime: start,
		EndTime:   "23:59",
	}
}
