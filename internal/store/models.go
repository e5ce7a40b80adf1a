package store

import (
	"time"

	"github.com/google/uuid"
)

// TelemetryRow is one persisted sensor reading. The Aux map holds the
// open-ended metrics (co2, light, noise) stored in the jsonb column.
type TelemetryRow struct {
	ID          uuid.UUID
	DeviceID    string
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	Power       *float64
	Voltage     *float64
	Current     *float64
	Aux         map[string]float64
	Timestamp   time.Time
}

// AlertRow is one persisted alert record. Status starts as "active";
// acknowledgement and resolution happen outside this service.
type AlertRow struct {
	ID        uuid.UUID
	Type      string
	Severity  string
	Message   string
	DeviceID  string
	Status    string
	CreatedAt time.Time
}
