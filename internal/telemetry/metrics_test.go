package telemetry

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/roman-kulish/radio-scanner/internal/demod"
	"github.com/roman-kulish/radio-scanner/internal/event"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
)

// value returns the value of the single sample of name matching labels.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			switch {
			case m.Counter != nil:
				return m.GetCounter().GetValue()
			case m.Gauge != nil:
				return m.GetGauge().GetValue()
			case m.Histogram != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func hasLabels(m *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			found++
		}
	}
	return found == len(labels)
}

func TestMetrics_Observers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	b := sdr.IQBuffer{Samples: make([]complex64, 1024), CenterFrequency: 1e8, SampleRate: 2.4e6}
	m.BufferRead(b)
	m.BufferRead(b)
	m.BufferDropped()
	m.ReadFailed(fmt.Errorf("read: %w", sdr.ErrTimeout))
	m.ReadFailed(sdr.ErrStreamingFailed)
	m.BufferProcessed(b, 3*time.Millisecond)
	m.Overflow()
	m.Levels(-42, 0.25, true)
	m.SinkFailed(nil)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"scanner_device_buffers_read_total", nil, 2},
		{"scanner_device_samples_read_total", nil, 2048},
		{"scanner_device_buffers_dropped_total", nil, 1},
		{"scanner_device_read_errors_total", map[string]string{"class": "timeout"}, 1},
		{"scanner_device_read_errors_total", map[string]string{"class": "streaming"}, 1},
		{"scanner_device_sample_rate_hertz", nil, 2.4e6},
		{"scanner_pipeline_buffer_processing_seconds", nil, 1},
		{"scanner_pipeline_overflows_total", nil, 1},
		{"scanner_pipeline_signal_strength_db", nil, -42},
		{"scanner_pipeline_audio_level_rms", nil, 0.25},
		{"scanner_pipeline_squelch_open", nil, 1},
		{"scanner_pipeline_audio_sink_errors_total", nil, 1},
	}
	for _, tt := range tests {
		if got := value(t, reg, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestMetrics_ScannerEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.observe(event.ScannerStateChanged{State: "holding", Frequency: 146_520_000})
	m.observe(event.ScannerTuned{Frequency: 146_520_000})
	m.observe(event.Activity{Frequency: 146_520_000, Mode: demod.FM, Detected: true})
	m.observe(event.Activity{Frequency: 146_520_000, Mode: demod.FM, Detected: false})

	if got := value(t, reg, "scanner_scanner_state", map[string]string{"state": "holding"}); got != 1 {
		t.Errorf("holding = %v, want 1", got)
	}
	if got := value(t, reg, "scanner_scanner_state", map[string]string{"state": "scanning"}); got != 0 {
		t.Errorf("scanning = %v, want 0", got)
	}
	if got := value(t, reg, "scanner_scanner_frequency_hertz", nil); got != 146_520_000 {
		t.Errorf("frequency = %v", got)
	}
	if got := value(t, reg, "scanner_scanner_activity_total", map[string]string{"mode": "FM"}); got != 1 {
		t.Errorf("activity = %v, want 1", got)
	}
}

func TestMetrics_Watch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	bus := event.NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Watch(ctx, bus)
		close(done)
	}()

	// publish until the subscription is in place
	deadline := time.Now().Add(2 * time.Second)
	for value(t, reg, "scanner_scanner_frequency_hertz", nil) != 146_520_000 {
		if time.Now().After(deadline) {
			t.Fatal("Watch() did not observe the tune event")
		}
		bus.Publish(event.ScannerTuned{Frequency: 146_520_000})
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New(nil)
	m.Overflow()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "scanner_pipeline_overflows_total 1") {
		t.Errorf("exposition does not contain the overflow counter:\n%s", rec.Body.String())
	}
}
