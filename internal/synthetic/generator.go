package synthetic

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/controlhub/realtime-gateway/internal/protocol"
	"github.com/controlhub/realtime-gateway/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink receives every generated event for fan-out.
type Sink interface {
	Broadcast(env protocol.Envelope)
}

// Config tunes the generation cadence.
type Config struct {
	TelemetryInterval time.Duration
	AlertInterval     time.Duration
	AlertProbability  float64
	Devices           []string
}

// DefaultDevices is the fixed pool used when none is configured.
var DefaultDevices = []string{
	"temp-sensor-01",
	"humidity-sensor-02",
	"power-meter-03",
	"pressure-sensor-04",
}

var alertTypes = []string{"high_temperature", "low_humidity", "power_spike", "device_offline"}

var severities = []string{
	protocol.SeverityLow,
	protocol.SeverityMedium,
	protocol.SeverityHigh,
	protocol.SeverityCritical,
}

// Generator is the TelemetrySource standing in for a real device
// ingestion feed. A real deployment swaps it for an ingestion adapter
// without touching the session or broadcast machinery.
type Generator struct {
	cfg    Config
	events store.EventStore
	sink   Sink
	logger *zap.Logger
}

// NewGenerator creates a synthetic event source.
func NewGenerator(cfg Config, events store.EventStore, sink Sink, logger *zap.Logger) *Generator {
	if len(cfg.Devices) == 0 {
		cfg.Devices = DefaultDevices
	}
	return &Generator{cfg: cfg, events: events, sink: sink, logger: logger}
}

// Run produces telemetry and occasional alerts until ctx is cancelled.
// It is started once per open session and stops with it.
func (g *Generator) Run(ctx context.Context) {
	telemetry := time.NewTicker(g.cfg.TelemetryInterval)
	alerts := time.NewTicker(g.cfg.AlertInterval)
	defer telemetry.Stop()
	defer alerts.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-telemetry.C:
			g.emitTelemetry(ctx)
		case <-alerts.C:
			if rand.Float64() < g.cfg.AlertProbability {
				g.emitAlert(ctx)
			}
		}
	}
}

// emitTelemetry broadcasts first, then persists; a slow or failing
// store never delays the fan-out path.
func (g *Generator) emitTelemetry(ctx context.Context) {
	deviceID, data := g.Sample()

	env, err := protocol.New(protocol.TypeTelemetry, deviceID, data)
	if err != nil {
		g.logger.Error("failed to build telemetry envelope", zap.Error(err))
		return
	}
	g.sink.Broadcast(env)

	row := &store.TelemetryRow{
		DeviceID:    deviceID,
		Temperature: data.Temperature,
		Humidity:    data.Humidity,
		Pressure:    data.Pressure,
		Power:       data.Power,
		Voltage:     data.Voltage,
		Current:     data.Current,
		Aux: map[string]float64{
			"co2":   *data.CO2,
			"light": *data.Light,
			"noise": *data.Noise,
		},
		Timestamp: time.Now().UTC(),
	}
	if err := g.events.InsertTelemetry(ctx, row); err != nil {
		g.logger.Error("failed to persist telemetry",
			zap.Error(err),
			zap.String("device_id", deviceID),
		)
	}
}

func (g *Generator) emitAlert(ctx context.Context) {
	data := g.Alert()

	env, err := protocol.New(protocol.TypeAlert, data.DeviceID, data)
	if err != nil {
		g.logger.Error("failed to build alert envelope", zap.Error(err))
		return
	}
	g.sink.Broadcast(env)

	row := &store.AlertRow{
		ID:        uuid.MustParse(data.ID),
		Type:      data.Type,
		Severity:  data.Severity,
		Message:   data.Message,
		DeviceID:  data.DeviceID,
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}
	if err := g.events.InsertAlert(ctx, row); err != nil {
		g.logger.Error("failed to persist alert",
			zap.Error(err),
			zap.String("alert_id", data.ID),
		)
	}
}

// Sample synthesizes one plausible sensor reading for a random device
// from the pool. Ranges mimic sensor noise, not real physics.
func (g *Generator) Sample() (string, protocol.TelemetryData) {
	deviceID := g.cfg.Devices[rand.Intn(len(g.cfg.Devices))]
	data := protocol.TelemetryData{
		Temperature: ptr(uniform(20, 35)),
		Humidity:    ptr(uniform(35, 65)),
		Pressure:    ptr(uniform(995, 1025)),
		Power:       ptr(uniform(80, 230)),
		Voltage:     ptr(uniform(215, 230)),
		Current:     ptr(uniform(1.5, 9.5)),
		CO2:         ptr(uniform(380, 460)),
		Light:       ptr(uniform(250, 850)),
		Noise:       ptr(uniform(35, 75)),
		Timestamp:   protocol.Now(),
	}
	return deviceID, data
}

// Alert synthesizes one alert with a random type, severity and device.
func (g *Generator) Alert() protocol.AlertData {
	alertType := alertTypes[rand.Intn(len(alertTypes))]
	deviceID := g.cfg.Devices[rand.Intn(len(g.cfg.Devices))]
	return protocol.AlertData{
		ID:        uuid.New().String(),
		Type:      alertType,
		Severity:  severities[rand.Intn(len(severities))],
		Message:   fmt.Sprintf("Alert: %s detected on %s", strings.ReplaceAll(alertType, "_", " "), deviceID),
		DeviceID:  deviceID,
		Timestamp: protocol.Now(),
	}
}

// uniform draws from [lo, hi) rounded to one decimal place.
func uniform(lo, hi float64) float64 {
	v := lo + rand.Float64()*(hi-lo)
	return float64(int(v*10)) / 10
}

func ptr(v float64) *float64 {
	return &v
}
