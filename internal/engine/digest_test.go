package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classtrack/chime/internal/db"
)

func newDigestFixture(backend *fakeBackend, sender *fakeSender, marker DeliveryMarker) *DigestScheduler {
	logger := zap.NewNop()
	reaper := NewReaper(backend, logger)
	pipeline := NewPipeline(sender, reaper, 4, logger)
	return NewDigestScheduler(backend, pipeline, marker, 21, logger)
}

func TestDigestListsSessionsInStartOrder(t *testing.T) {
	userID := uuid.New()
	backend := &fakeBackend{
		subs: []db.Subscription{newSubscription(userID, "https://push.example.com/dev-1")},
		sessions: []db.Session{
			newSession(userID, "Physics", int(time.Wednesday), "14:00", nil),
			newSession(userID, "Calculus", int(time.Wednesday), "09:00", nil),
			newSession(userID, "History", int(time.Wednesday), "11:00", nil),
		},
	}
	sender := &fakeSender{}
	sched := newDigestFixture(backend, sender, nil)

	// Tuesday evening; tomorrow is Wednesday.
	sched.run(context.Background(), tuesdayAt(21, 0))

	sent := sender.sentPushes()
	if len(sent) != 1 {
		t.Fatalf("expected exactly 1 digest, got %d", len(sent))
	}
	if sent[0].payload.Title != "Tomorrow's Schedule" {
		t.Errorf("title = %q, want %q", sent[0].payload.Title, "Tomorrow's Schedule")
	}
	want := "You have 3 classes tomorrow: Calculus (09:00), History (11:00), Physics (14:00)"
	if sent[0].payload.Body != want {
		t.Errorf("body = %q, want %q", sent[0].payload.Body, want)
	}
}

func TestDigestSingularClass(t *testing.T) {
	userID := uuid.New()
	backend := &fakeBackend{
		subs: []db.Subscription{newSubscription(userID, "https://push.example.com/dev-1")},
		sessions: []db.Session{
			newSession(userID, "Chemistry", int(time.Wednesday), "10:00", nil),
		},
	}
	sender := &fakeSender{}
	sched := newDigestFixture(backend, sender, nil)

	sched.run(context.Background(), tuesdayAt(21, 0))

	sent := sender.sentPushes()
	if len(sent) != 1 {
		t.Fatalf("expected exactly 1 digest, got %d", len(sent))
	}
	want := "You have 1 class tomorrow: Chemistry (10:00)"
	if sent[0].payload.Body != want {
		t.Errorf("body = %q, want %q", sent[0].payload.Body, want)
	}
}

func TestDigestSkipsEmptyDay(t *testing.T) {
	busyUser := uuid.New()
	freeUser := uuid.New()
	backend := &fakeBackend{
		subs: []db.Subscription{
			newSubscription(busyUser, "https://push.example.com/busy"),
			newSubscription(freeUser, "https://push.example.com/free"),
		},
		sessions: []db.Session{
			newSession(busyUser, "Biology", int(time.Wednesday), "08:30", nil),
			newSession(freeUser, "Art", int(time.Friday), "08:30", nil),
		},
	}
	sender := &fakeSender{}
	sched := newDigestFixture(backend, sender, nil)

	sched.run(context.Background(), tuesdayAt(21, 0))

	sent := sender.sentPushes()
	if len(sent) != 1 {
		t.Fatalf("expected exactly 1 digest, got %d", len(sent))
	}
	if sent[0].endpoint != "https://push.example.com/busy" {
		t.Errorf("digest went to %q, want the busy user's device", sent[0].endpoint)
	}
}

func TestDigestOnePerDevice(t *testing.T) {
	userID := uuid.New()
	backend := &fakeBackend{
		subs: []db.Subscription{
			newSubscription(userID, "https://push.example.com/dev-1"),
			newSubscription(userID, "https://push.example.com/dev-2"),
		},
		sessions: []db.Session{
			newSession(userID, "Physics", int(time.Wednesday), "14:00", nil),
			newSession(userID, "Calculus", int(time.Wednesday), "09:00", nil),
		},
	}
	sender := &fakeSender{}
	sched := newDigestFixture(backend, sender, nil)

	sched.run(context.Background(), tuesdayAt(21, 0))

	sent := sender.sentPushes()
	if len(sent) != 2 {
		t.Fatalf("expected one digest per device, got %d", len(sent))
	}
	for _, p := range sent {
		if !strings.Contains(p.payload.Body, "2 classes") {
			t.Errorf("digest to %q = %q, want both classes summarized", p.endpoint, p.payload.Body)
		}
	}
}

func TestDigestMarkerSuppressesRepeat(t *testing.T) {
	userID := uuid.New()
	backend := &fakeBackend{
		subs: []db.Subscription{newSubscription(userID, "https://push.example.com/dev-1")},
		sessions: []db.Session{
			newSession(userID, "Physics", int(time.Wednesday), "14:00", nil),
		},
	}
	sender := &fakeSender{}
	marker := &fakeMarker{}
	sched := newDigestFixture(backend, sender, marker)

	sched.run(context.Background(), tuesdayAt(21, 0))
	sched.run(context.Background(), tuesdayAt(21, 0))

	if n := sender.sentCount(); n != 1 {
		t.Errorf("expected repeated run to be suppressed, got %d digests", n)
	}
}

func TestDigestQueryFailureSkipsRun(t *testing.T) {
	backend := &fakeBackend{agendaErr: errors.New("connection refused")}
	sender := &fakeSender{}
	sched := newDigestFixture(backend, sender, nil)

	sched.run(context.Background(), tuesdayAt(21, 0))

	if n := sender.sentCount(); n != 0 {
		t.Errorf("expected 0 digests after query failure, got %d", n)
	}
}
