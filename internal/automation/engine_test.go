package automation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/controlhub/realtime-gateway/internal/automation"
	"github.com/controlhub/realtime-gateway/internal/protocol"
	"github.com/controlhub/realtime-gateway/internal/store"
	"go.uber.org/zap"
)

type captureSink struct {
	mu        sync.Mutex
	envelopes []protocol.Envelope
}

func (s *captureSink) Broadcast(env protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, env)
}

func (s *captureSink) alerts(t *testing.T) []protocol.AlertData {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.AlertData
	for _, env := range s.envelopes {
		if env.Type != protocol.TypeAlert {
			t.Fatalf("Engine broadcast a %s envelope, expected only alerts", env.Type)
		}
		var alert protocol.AlertData
		if err := protocol.DecodeData(env, &alert); err != nil {
			t.Fatalf("Failed to decode alert payload: %v", err)
		}
		out = append(out, alert)
	}
	return out
}

type captureNotifier struct {
	mu     sync.Mutex
	alerts []protocol.AlertData
}

func (n *captureNotifier) NotifyAlert(ctx context.Context, alert protocol.AlertData) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func fptr(v float64) *float64 { return &v }

func insertReading(t *testing.T, events *store.Memory, deviceID string, set func(*store.TelemetryRow)) {
	t.Helper()
	row := &store.TelemetryRow{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
	}
	set(row)
	if err := events.InsertTelemetry(context.Background(), row); err != nil {
		t.Fatalf("InsertTelemetry failed: %v", err)
	}
}

func newEngine(cfg automation.Config, events *store.Memory, sink *captureSink, notifier automation.Notifier) *automation.Engine {
	if cfg.Window == 0 {
		cfg.Window = time.Hour
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = time.Hour
	}
	return automation.NewEngine(cfg, events, sink, notifier, zap.NewNop())
}

func TestEvaluate_Conditions(t *testing.T) {
	cases := []struct {
		name      string
		condition string
		threshold float64
		value     float64
		fires     bool
	}{
		{"greater than fires", automation.ConditionGreaterThan, 30, 31.5, true},
		{"greater than holds", automation.ConditionGreaterThan, 30, 29.9, false},
		{"less than fires", automation.ConditionLessThan, 40, 38, true},
		{"less than holds", automation.ConditionLessThan, 40, 41, false},
		{"equal to fires within tolerance", automation.ConditionEqualTo, 25, 25.05, true},
		{"equal to holds outside tolerance", automation.ConditionEqualTo, 25, 25.3, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := store.NewMemory()
			sink := &captureSink{}
			insertReading(t, events, "temp-sensor-01", func(row *store.TelemetryRow) {
				row.Temperature = fptr(tc.value)
			})

			eng := newEngine(automation.Config{
				Rules: []automation.Rule{{
					ID: "r1", Name: "Temp rule", Enabled: true,
					Sensor: "temperature", Condition: tc.condition, Threshold: tc.threshold,
				}},
			}, events, sink, nil)
			eng.Evaluate(context.Background())

			alerts := sink.alerts(t)
			if tc.fires && len(alerts) != 1 {
				t.Fatalf("Expected 1 alert, got %d", len(alerts))
			}
			if !tc.fires && len(alerts) != 0 {
				t.Fatalf("Expected no alerts, got %d", len(alerts))
			}
			if tc.fires {
				if alerts[0].Type != "automation_trigger" {
					t.Errorf("Expected automation_trigger, got %s", alerts[0].Type)
				}
				if alerts[0].DeviceID != "temp-sensor-01" {
					t.Errorf("Alert carries wrong device: %s", alerts[0].DeviceID)
				}
			}
		})
	}
}

func TestEvaluate_SeverityEscalation(t *testing.T) {
	events := store.NewMemory()
	sink := &captureSink{}
	// 50 is above 30 * 1.5, so the alert escalates to critical.
	insertReading(t, events, "temp-sensor-01", func(row *store.TelemetryRow) {
		row.Temperature = fptr(50)
	})

	eng := newEngine(automation.Config{
		Rules: []automation.Rule{{
			ID: "r1", Name: "Temp rule", Enabled: true,
			Sensor: "temperature", Condition: automation.ConditionGreaterThan, Threshold: 30,
		}},
	}, events, sink, nil)
	eng.Evaluate(context.Background())

	alerts := sink.alerts(t)
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Severity != protocol.SeverityCritical {
		t.Errorf("Expected critical severity, got %s", alerts[0].Severity)
	}
}

func TestEvaluate_DisabledRuleSkipped(t *testing.T) {
	events := store.NewMemory()
	sink := &captureSink{}
	insertReading(t, events, "temp-sensor-01", func(row *store.TelemetryRow) {
		row.Temperature = fptr(100)
	})

	eng := newEngine(automation.Config{
		Rules: []automation.Rule{{
			ID: "r1", Name: "Temp rule", Enabled: false,
			Sensor: "temperature", Condition: automation.ConditionGreaterThan, Threshold: 30,
		}},
	}, events, sink, nil)
	eng.Evaluate(context.Background())

	if got := len(sink.alerts(t)); got != 0 {
		t.Errorf("Disabled rule fired %d alerts", got)
	}
}

func TestEvaluate_CooldownSuppressesRepeats(t *testing.T) {
	events := store.NewMemory()
	sink := &captureSink{}
	insertReading(t, events, "temp-sensor-01", func(row *store.TelemetryRow) {
		row.Temperature = fptr(35)
	})

	eng := newEngine(automation.Config{
		Cooldown: time.Hour,
		Rules: []automation.Rule{{
			ID: "r1", Name: "Temp rule", Enabled: true,
			Sensor: "temperature", Condition: automation.ConditionGreaterThan, Threshold: 30,
		}},
	}, events, sink, nil)

	eng.Evaluate(context.Background())
	eng.Evaluate(context.Background())

	if got := len(sink.alerts(t)); got != 1 {
		t.Errorf("Expected cooldown to suppress the repeat, got %d alerts", got)
	}
}

func TestEvaluate_CooldownExpires(t *testing.T) {
	events := store.NewMemory()
	sink := &captureSink{}
	insertReading(t, events, "temp-sensor-01", func(row *store.TelemetryRow) {
		row.Temperature = fptr(35)
	})

	eng := newEngine(automation.Config{
		Cooldown: 10 * time.Millisecond,
		Rules: []automation.Rule{{
			ID: "r1", Name: "Temp rule", Enabled: true,
			Sensor: "temperature", Condition: automation.ConditionGreaterThan, Threshold: 30,
		}},
	}, events, sink, nil)

	eng.Evaluate(context.Background())
	time.Sleep(20 * time.Millisecond)
	eng.Evaluate(context.Background())

	if got := len(sink.alerts(t)); got != 2 {
		t.Errorf("Expected the rule to fire again after cooldown, got %d alerts", got)
	}
}

func TestEvaluate_PowerSpike(t *testing.T) {
	events := store.NewMemory()
	sink := &captureSink{}
	notifier := &captureNotifier{}

	// Steady baseline, then a reading far above the rolling average.
	for _, p := range []float64{100, 100, 100, 400} {
		insertReading(t, events, "power-meter-03", func(row *store.TelemetryRow) {
			row.Power = fptr(p)
		})
	}

	eng := newEngine(automation.Config{}, events, sink, notifier)
	eng.Evaluate(context.Background())

	alerts := sink.alerts(t)
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 spike alert, got %d", len(alerts))
	}
	if alerts[0].Type != "power_spike" {
		t.Errorf("Expected power_spike, got %s", alerts[0].Type)
	}
	if alerts[0].DeviceID != "power-meter-03" {
		t.Errorf("Spike attributed to wrong device: %s", alerts[0].DeviceID)
	}

	stored := events.Alerts()
	if len(stored) != 1 {
		t.Fatalf("Expected the alert to be persisted, found %d rows", len(stored))
	}

	notifier.mu.Lock()
	notified := len(notifier.alerts)
	notifier.mu.Unlock()
	if notified != 1 {
		t.Errorf("Expected 1 notification, got %d", notified)
	}
}

func TestEvaluate_NoSpikeOnSteadyLoad(t *testing.T) {
	events := store.NewMemory()
	sink := &captureSink{}

	for _, p := range []float64{100, 102, 98, 101} {
		insertReading(t, events, "power-meter-03", func(row *store.TelemetryRow) {
			row.Power = fptr(p)
		})
	}

	eng := newEngine(automation.Config{}, events, sink, nil)
	eng.Evaluate(context.Background())

	if got := len(sink.alerts(t)); got != 0 {
		t.Errorf("Steady load raised %d alerts", got)
	}
}

func TestParseRules(t *testing.T) {
	rules, err := automation.ParseRules(`[{"id":"r1","name":"Hot","enabled":true,"sensor":"temperature","condition":"greater_than","threshold":30}]`)
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}
	if len(rules) != 1 || rules[0].Sensor != "temperature" || rules[0].Threshold != 30 {
		t.Errorf("Unexpected rules: %+v", rules)
	}

	if rules, err := automation.ParseRules("  "); err != nil || rules != nil {
		t.Errorf("Blank input should yield no rules, got %v, %v", rules, err)
	}

	if _, err := automation.ParseRules("{not json"); err == nil {
		t.Error("Expected an error for malformed rule JSON")
	}
}
