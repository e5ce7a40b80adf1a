package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/controlhub/realtime-gateway/internal/protocol"
	"github.com/controlhub/realtime-gateway/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Rule is one threshold trigger evaluated against recent telemetry.
type Rule struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Enabled   bool    `json:"enabled"`
	Sensor    string  `json:"sensor"`
	Condition string  `json:"condition"`
	Threshold float64 `json:"threshold"`
}

// Rule conditions.
const (
	ConditionGreaterThan = "greater_than"
	ConditionLessThan    = "less_than"
	ConditionEqualTo     = "equal_to"
)

// ParseRules decodes the JSON rule list from configuration.
func ParseRules(raw string) ([]Rule, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var rules []Rule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("failed to parse automation rules: %w", err)
	}
	return rules, nil
}

// Sink receives the alert envelopes the engine raises.
type Sink interface {
	Broadcast(env protocol.Envelope)
}

// Notifier pushes alert notifications to the external bus. A nil
// notifier disables the side channel; alerts are still persisted and
// broadcast.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert protocol.AlertData) error
}

// Config tunes the polling engine.
type Config struct {
	PollInterval time.Duration
	Window       time.Duration
	Cooldown     time.Duration
	Rules        []Rule
}

// Engine is the peripheral rule-evaluation loop: it polls recent
// telemetry against thresholds and raises alerts through the same
// persist-and-broadcast path the synthetic generator uses.
type Engine struct {
	cfg      Config
	events   store.EventStore
	sink     Sink
	notifier Notifier
	spike    *SpikeDetector
	logger   *zap.Logger

	lastFired map[string]time.Time
}

// NewEngine creates the rule engine. notifier may be nil.
func NewEngine(cfg Config, events store.EventStore, sink Sink, notifier Notifier, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		events:    events,
		sink:      sink,
		notifier:  notifier,
		spike:     NewSpikeDetector(3.0, 3),
		logger:    logger,
		lastFired: make(map[string]time.Time),
	}
}

// Run polls until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Evaluate(ctx)
		}
	}
}

// Evaluate runs one poll cycle: every enabled rule plus the standing
// power-spike check.
func (e *Engine) Evaluate(ctx context.Context) {
	rows, err := e.events.RecentTelemetry(ctx, e.cfg.Window, 500)
	if err != nil {
		e.logger.Error("failed to load recent telemetry", zap.Error(err))
		return
	}
	if len(rows) == 0 {
		return
	}

	for _, rule := range e.cfg.Rules {
		if !rule.Enabled {
			continue
		}
		e.evaluateRule(ctx, rule, rows)
	}

	e.evaluateSpikes(ctx, rows)
}

func (e *Engine) evaluateRule(ctx context.Context, rule Rule, rows []store.TelemetryRow) {
	// Rows arrive newest first; the first one carrying the sensor is
	// the latest reading.
	for _, row := range rows {
		value, ok := sensorValue(&row, rule.Sensor)
		if !ok {
			continue
		}

		if !conditionMet(rule.Condition, value, rule.Threshold) {
			return
		}

		severity := protocol.SeverityHigh
		if value > rule.Threshold*1.5 {
			severity = protocol.SeverityCritical
		}
		message := fmt.Sprintf("%s: %s %s %g (current: %g)",
			rule.Name, rule.Sensor, strings.ReplaceAll(rule.Condition, "_", " "), rule.Threshold, value)

		e.fire(ctx, rule.ID, row.DeviceID, "automation_trigger", severity, message)
		return
	}
}

// evaluateSpikes compares each device's latest power reading against
// its rolling average from the same window.
func (e *Engine) evaluateSpikes(ctx context.Context, rows []store.TelemetryRow) {
	latest := make(map[string]float64)
	history := make(map[string][]float64)

	for _, row := range rows {
		if row.Power == nil {
			continue
		}
		if _, seen := latest[row.DeviceID]; !seen {
			latest[row.DeviceID] = *row.Power
			continue
		}
		history[row.DeviceID] = append(history[row.DeviceID], *row.Power)
	}

	for deviceID, value := range latest {
		spiked, reason := e.spike.Detect(value, history[deviceID])
		if !spiked {
			continue
		}
		message := fmt.Sprintf("Power spike on %s: %s", deviceID, reason)
		e.fire(ctx, "power-spike", deviceID, "power_spike", protocol.SeverityHigh, message)
	}
}

// fire persists, broadcasts and (when a notifier is wired) publishes
// one alert, respecting the per-rule/device cooldown.
func (e *Engine) fire(ctx context.Context, ruleID, deviceID, alertType, severity, message string) {
	key := ruleID + "/" + deviceID
	now := time.Now()
	if last, ok := e.lastFired[key]; ok && now.Sub(last) < e.cfg.Cooldown {
		return
	}
	e.lastFired[key] = now

	alert := protocol.AlertData{
		ID:        uuid.New().String(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		DeviceID:  deviceID,
		Timestamp: protocol.Now(),
	}

	e.logger.Info("automation alert raised",
		zap.String("rule_id", ruleID),
		zap.String("device_id", deviceID),
		zap.String("severity", severity),
	)

	row := &store.AlertRow{
		ID:        uuid.MustParse(alert.ID),
		Type:      alert.Type,
		Severity:  alert.Severity,
		Message:   alert.Message,
		DeviceID:  alert.DeviceID,
		Status:    "active",
		CreatedAt: now.UTC(),
	}
	if err := e.events.InsertAlert(ctx, row); err != nil {
		e.logger.Error("failed to persist automation alert", zap.Error(err))
	}

	env, err := protocol.New(protocol.TypeAlert, alert.DeviceID, alert)
	if err != nil {
		e.logger.Error("failed to build alert envelope", zap.Error(err))
		return
	}
	e.sink.Broadcast(env)

	if e.notifier != nil {
		if err := e.notifier.NotifyAlert(ctx, alert); err != nil {
			e.logger.Error("failed to publish alert notification", zap.Error(err))
		}
	}
}

func conditionMet(condition string, value, threshold float64) bool {
	switch condition {
	case ConditionGreaterThan:
		return value > threshold
	case ConditionLessThan:
		return value < threshold
	case ConditionEqualTo:
		return math.Abs(value-threshold) < 0.1
	default:
		return false
	}
}

func sensorValue(row *store.TelemetryRow, sensor string) (float64, bool) {
	var v *float64
	switch sensor {
	case "temperature":
		v = row.Temperature
	case "humidity":
		v = row.Humidity
	case "pressure":
		v = row.Pressure
	case "power":
		v = row.Power
	case "voltage":
		v = row.Voltage
	case "current":
		v = row.Current
	default:
		if aux, ok := row.Aux[sensor]; ok {
			return aux, true
		}
		return 0, false
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}
