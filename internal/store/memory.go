package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process event store used by tests and by the gateway
// when no database is configured.
type Memory struct {
	mu        sync.Mutex
	telemetry []TelemetryRow
	alerts    []AlertRow
}

// NewMemory creates an empty in-memory event store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) InsertTelemetry(ctx context.Context, row *TelemetryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *row
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	m.telemetry = append(m.telemetry, stored)
	return nil
}

func (m *Memory) InsertAlert(ctx context.Context, row *AlertRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *row
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	m.alerts = append(m.alerts, stored)
	return nil
}

func (m *Memory) RecentTelemetry(ctx context.Context, window time.Duration, limit int) ([]TelemetryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	since := time.Now().Add(-window)
	var out []TelemetryRow
	// Newest first, same contract as the Postgres store.
	for i := len(m.telemetry) - 1; i >= 0 && len(out) < limit; i-- {
		if m.telemetry[i].Timestamp.Before(since) {
			continue
		}
		out = append(out, m.telemetry[i])
	}
	return out, nil
}

// Alerts returns a copy of every persisted alert, newest last.
func (m *Memory) Alerts() []AlertRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AlertRow, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// TelemetryCount reports how many readings have been persisted.
func (m *Memory) TelemetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.telemetry)
}
