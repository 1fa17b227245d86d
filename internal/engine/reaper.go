package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/classtrack/chime/internal/metrics"
)

// Reaper deletes subscriptions whose push endpoints reported a terminal
// "gone" status. Deletion is keyed by endpoint and idempotent, so two
// concurrently completing jobs may both observe the same dead subscription
// without harm.
type Reaper struct {
	store  SubscriptionStore
	logger *zap.Logger
}

// NewReaper creates a new subscription reaper.
func NewReaper(store SubscriptionStore, logger *zap.Logger) *Reaper {
	return &Reaper{
		store:  store,
		logger: logger,
	}
}

// Reap removes the subscription with the given endpoint. An already-absent
// endpoint is a no-op, not an error.
func (r *Reaper) Reap(ctx context.Context, endpoint string) {
	deleted, err := r.store.DeleteSubscriptionByEndpoint(ctx, endpoint)
	if err != nil {
		r.logger.Error("failed to reap subscription",
			zap.Error(err),
			zap.String("endpoint", truncate(endpoint)),
		)
		return
	}

	if deleted == 0 {
		// A concurrent job got here first.
		r.logger.Debug("subscription already removed",
			zap.String("endpoint", truncate(endpoint)),
		)
		return
	}

	metrics.RecordSubscriptionReaped()
	r.logger.Info("subscription reaped",
		zap.String("endpoint", truncate(endpoint)),
	)
}

// truncate shortens endpoint URLs for logging; the tail is a per-device
// token with no diagnostic value.
func truncate(endpoint string) string {
	if len(endpoint) > 48 {
		return endpoint[:48] + "..."
	}
	return endpoint
}
