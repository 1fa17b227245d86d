package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// ReminderMarkerTTL covers the one-minute matcher granularity plus an
	// overrunning tick. A marker only needs to outlive the window in which
	// the same occurrence could fire twice.
	ReminderMarkerTTL = 5 * time.Minute

	// DigestMarkerTTL spans a full day so a restart after the digest fired
	// does not send it again that evening.
	DigestMarkerTTL = 25 * time.Hour
)

// MarkerService records sent occurrences so an overlapping tick or an
// in-window restart does not push the same notification twice. Best-effort:
// callers treat a Redis failure as "not sent yet" and deliver anyway,
// preserving at-least-once.
type MarkerService struct {
	client *Client
	logger *zap.Logger
}

// NewMarkerService creates a new delivery-marker service.
func NewMarkerService(client *Client, logger *zap.Logger) *MarkerService {
	return &MarkerService{
		client: client,
		logger: logger,
	}
}

// ReminderKey identifies one reminder occurrence for one device.
func ReminderKey(subID, sessionID uuid.UUID, weekday int, start string) string {
	return fmt.Sprintf("sent:reminder:%s:%s:%d:%s", subID, sessionID, weekday, start)
}

// DigestKey identifies one device's digest for one calendar date.
func DigestKey(subID uuid.UUID, date string) string {
	return fmt.Sprintf("sent:digest:%s:%s", subID, date)
}

// FirstSend reserves key with SET NX. Returns true when this occurrence has
// not been sent yet (the caller should deliver), false when the marker
// already exists.
func (s *MarkerService) FirstSend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	set, err := s.client.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return set, nil
}
