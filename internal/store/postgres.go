package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres persists events into the telemetry and alerts tables.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed event store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// InsertTelemetry appends one sensor reading.
func (p *Postgres) InsertTelemetry(ctx context.Context, row *TelemetryRow) error {
	aux, err := json.Marshal(row.Aux)
	if err != nil {
		return fmt.Errorf("failed to marshal aux metrics: %w", err)
	}

	query := `
		INSERT INTO telemetry (
			device_id, temperature, humidity, pressure, power,
			voltage, current, data, timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = p.pool.Exec(ctx, query,
		row.DeviceID,
		row.Temperature,
		row.Humidity,
		row.Pressure,
		row.Power,
		row.Voltage,
		row.Current,
		aux,
		row.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry: %w", err)
	}

	return nil
}

// InsertAlert appends one alert record with status "active".
func (p *Postgres) InsertAlert(ctx context.Context, row *AlertRow) error {
	query := `
		INSERT INTO alerts (id, type, message, severity, device_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	id := row.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err := p.pool.Exec(ctx, query,
		id,
		row.Type,
		row.Message,
		row.Severity,
		row.DeviceID,
		row.Status,
		row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// RecentTelemetry returns readings from the trailing window, newest first.
func (p *Postgres) RecentTelemetry(ctx context.Context, window time.Duration, limit int) ([]TelemetryRow, error) {
	query := `
		SELECT id, device_id, temperature, humidity, pressure, power,
		       current, voltage, data, timestamp
		FROM telemetry
		WHERE timestamp >= $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	since := time.Now().Add(-window)
	rows, err := p.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent telemetry: %w", err)
	}
	defer rows.Close()

	var out []TelemetryRow
	for rows.Next() {
		var row TelemetryRow
		var aux []byte
		if err := rows.Scan(
			&row.ID,
			&row.DeviceID,
			&row.Temperature,
			&row.Humidity,
			&row.Pressure,
			&row.Power,
			&row.Current,
			&row.Voltage,
			&aux,
			&row.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry row: %w", err)
		}
		if len(aux) > 0 {
			if err := json.Unmarshal(aux, &row.Aux); err != nil {
				return nil, fmt.Errorf("failed to decode aux metrics: %w", err)
			}
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return out, nil
}
