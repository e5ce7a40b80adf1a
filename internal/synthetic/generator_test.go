package synthetic_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/controlhub/realtime-gateway/internal/protocol"
	"github.com/controlhub/realtime-gateway/internal/store"
	"github.com/controlhub/realtime-gateway/internal/synthetic"
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

func (s *captureSink) count(msgType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, env := range s.envelopes {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) InsertTelemetry(ctx context.Context, row *store.TelemetryRow) error {
	return errors.New("store unavailable")
}

func (failingStore) InsertAlert(ctx context.Context, row *store.AlertRow) error {
	return errors.New("store unavailable")
}

func (failingStore) RecentTelemetry(ctx context.Context, window time.Duration, limit int) ([]store.TelemetryRow, error) {
	return nil, errors.New("store unavailable")
}

func inRange(t *testing.T, name string, v *float64, lo, hi float64) {
	t.Helper()
	if v == nil {
		t.Fatalf("Expected %s to be set", name)
	}
	if *v < lo || *v > hi {
		t.Errorf("Expected %s in [%g, %g], got %g", name, lo, hi, *v)
	}
}

func TestSample_ValuesWithinPlausibleRanges(t *testing.T) {
	gen := synthetic.NewGenerator(synthetic.Config{
		TelemetryInterval: time.Second,
		AlertInterval:     time.Second,
	}, store.NewMemory(), &captureSink{}, zap.NewNop())

	for i := 0; i < 100; i++ {
		deviceID, data := gen.Sample()
		if deviceID == "" {
			t.Fatal("Expected a device id from the default pool")
		}
		inRange(t, "temperature", data.Temperature, 20, 35)
		inRange(t, "humidity", data.Humidity, 35, 65)
		inRange(t, "pressure", data.Pressure, 995, 1025)
		inRange(t, "power", data.Power, 80, 230)
		inRange(t, "voltage", data.Voltage, 215, 230)
		inRange(t, "current", data.Current, 1.5, 9.5)
	}
}

func TestAlert_FieldsFromFixedPools(t *testing.T) {
	gen := synthetic.NewGenerator(synthetic.Config{
		TelemetryInterval: time.Second,
		AlertInterval:     time.Second,
	}, store.NewMemory(), &captureSink{}, zap.NewNop())

	validSeverities := map[string]bool{
		protocol.SeverityLow: true, protocol.SeverityMedium: true,
		protocol.SeverityHigh: true, protocol.SeverityCritical: true,
	}

	for i := 0; i < 50; i++ {
		alert := gen.Alert()
		if alert.ID == "" {
			t.Fatal("Expected a generated alert id")
		}
		if !validSeverities[alert.Severity] {
			t.Errorf("Unexpected severity %q", alert.Severity)
		}
		if alert.DeviceID == "" {
			t.Error("Expected a device id on the alert")
		}
	}
}

func TestRun_PersistsAndBroadcasts(t *testing.T) {
	sink := &captureSink{}
	mem := store.NewMemory()
	gen := synthetic.NewGenerator(synthetic.Config{
		TelemetryInterval: 10 * time.Millisecond,
		AlertInterval:     10 * time.Millisecond,
		AlertProbability:  1.0,
	}, mem, sink, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	gen.Run(ctx)

	if sink.count(protocol.TypeTelemetry) == 0 {
		t.Error("Expected at least one telemetry broadcast")
	}
	if sink.count(protocol.TypeAlert) == 0 {
		t.Error("Expected at least one alert broadcast")
	}
	if mem.TelemetryCount() == 0 {
		t.Error("Expected telemetry to be persisted")
	}
	if len(mem.Alerts()) == 0 {
		t.Error("Expected alerts to be persisted")
	}
}

func TestRun_StoreFailureDoesNotStopBroadcast(t *testing.T) {
	sink := &captureSink{}
	gen := synthetic.NewGenerator(synthetic.Config{
		TelemetryInterval: 10 * time.Millisecond,
		AlertInterval:     time.Hour,
	}, failingStore{}, sink, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	gen.Run(ctx)

	if sink.count(protocol.TypeTelemetry) < 2 {
		t.Errorf("Expected broadcasts to continue despite store failures, got %d",
			sink.count(protocol.TypeTelemetry))
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	sink := &captureSink{}
	gen := synthetic.NewGenerator(synthetic.Config{
		TelemetryInterval: 10 * time.Millisecond,
		AlertInterval:     time.Hour,
	}, store.NewMemory(), sink, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gen.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Generator did not stop after cancellation")
	}
}
