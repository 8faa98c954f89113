package entitlement

import (
	"context"
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
)

// Syncer registers an activation with a remote billing server. Local
// state is authoritative regardless of the outcome; sync failures never
// block activation.
type Syncer interface {
	RegisterActivation(ctx context.Context, sub models.Subscription) error
}

// syncRetryIntervals is the back-off schedule for server registration:
// 3 attempts total, waiting 1s then 10s between them.
var syncRetryIntervals = []time.Duration{time.Second, 10 * time.Second}

// syncWithRetry calls syncer.RegisterActivation up to three times,
// waiting syncRetryIntervals between attempts, and swallows the final
// failure: a registration that never reaches the server does not
// invalidate a locally activated subscription.
func syncWithRetry(ctx context.Context, syncer Syncer, sub models.Subscription, logf func(format string, args ...any)) {
	if syncer == nil {
		return
	}

	var lastErr error
	for attempt := 0; attempt <= len(syncRetryIntervals); attempt++ {
		if err := syncer.RegisterActivation(ctx, sub); err != nil {
			lastErr = err
			if attempt < len(syncRetryIntervals) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(syncRetryIntervals[attempt]):
				}
			}
			continue
		}
		return
	}
	if lastErr != nil && logf != nil {
		logf("[Entitlement] server sync failed after %d attempts: %v", len(syncRetryIntervals)+1, lastErr)
	}
}
