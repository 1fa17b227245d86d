package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestMarkerService_FirstSend(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewMarkerService(client, zap.NewNop())
	ctx := context.Background()

	key := ReminderKey(uuid.New(), uuid.New(), 2, "10:00")

	first, err := svc.FirstSend(ctx, key, ReminderMarkerTTL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatal("expected first send to be allowed")
	}

	// The same occurrence within the window must not fire again.
	second, err := svc.FirstSend(ctx, key, ReminderMarkerTTL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second {
		t.Fatal("expected duplicate send to be suppressed")
	}
}

func TestMarkerService_MarkerExpires(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewMarkerService(client, zap.NewNop())
	ctx := context.Background()

	key := ReminderKey(uuid.New(), uuid.New(), 6, "23:55")
	if _, err := svc.FirstSend(ctx, key, ReminderMarkerTTL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Once the marker lapses the same occurrence is a fresh reminder.
	mr.FastForward(ReminderMarkerTTL + time.Second)

	first, err := svc.FirstSend(ctx, key, ReminderMarkerTTL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatal("expected send to be allowed after marker expiry")
	}
}

func TestMarkerService_KeysAreScoped(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewMarkerService(client, zap.NewNop())
	ctx := context.Background()

	subA, subB := uuid.New(), uuid.New()
	session := uuid.New()

	if _, err := svc.FirstSend(ctx, ReminderKey(subA, session, 2, "10:00"), ReminderMarkerTTL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A different device for the same session gets its own marker.
	first, err := svc.FirstSend(ctx, ReminderKey(subB, session, 2, "10:00"), ReminderMarkerTTL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatal("markers must be scoped per subscription")
	}

	// Digest markers never collide with reminder markers.
	first, err = svc.FirstSend(ctx, DigestKey(subA, "2024-01-03"), DigestMarkerTTL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatal("digest marker should be independent of reminder markers")
	}
}
