package store

import (
	"context"
	"time"
)

// EventStore is the append-only persistence consumed by the realtime
// core. Writes are best effort from the caller's perspective: failures
// are logged by the caller and never retried here.
type EventStore interface {
	InsertTelemetry(ctx context.Context, row *TelemetryRow) error
	InsertAlert(ctx context.Context, row *AlertRow) error

	// RecentTelemetry returns readings newer than now-window, newest
	// first, capped at limit. Used by the automation engine.
	RecentTelemetry(ctx context.Context, window time.Duration, limit int) ([]TelemetryRow, error)
}
