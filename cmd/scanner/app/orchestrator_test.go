package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/radio-scanner/internal/audio"
	"github.com/roman-kulish/radio-scanner/internal/scanner"
	"github.com/roman-kulish/radio-scanner/internal/storage"
	"github.com/roman-kulish/radio-scanner/internal/telemetry"
)

const scanConfig = `
settings:
  audio: none
device:
  type: sim
  config:
    noiseLevel: 0.001
    realtime: true
    seed: 7
    transmitters:
      - frequency: 146520000
        amplitude: 0.5
        toneHz: 1000
        deviation: 3000
receiver:
  squelch: -60
scanner:
  enabled: true
  mode: memory
  scanSpeed: 100ms
  holdTime: 300ms
  resumeDelay: 50ms
  priorityInterval: 0
  memory:
    - frequency: 146000000
      label: quiet
    - frequency: 146520000
      label: simplex
`

func TestOrchestrator_ScanAndRecord(t *testing.T) {
	config, err := ParseConfig([]byte(scanConfig))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "scanner.sqlite"))
	defer store.Close()

	reg := prometheus.NewRegistry()
	sink := &audio.Discard{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	o := NewOrchestrator(config, logger, WithSink(sink), WithStore(store), WithMetrics(telemetry.New(reg)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- o.Run(ctx)
	}()

	select {
	case <-o.Ready():
	case err := <-errCh:
		t.Fatalf("Run: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the receiver")
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		hz, ok := o.Scanner().State().HoldFrequency()
		if ok {
			if hz != 146_520_000 {
				t.Fatalf("Held the quiet channel %v", hz)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Scanner never held the active channel, state %v", o.Scanner().State())
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if sink.Samples() == 0 {
		t.Error("Expected audio while the squelch was open")
	}
	if got := o.Scanner().State().Kind(); got != scanner.KindIdle {
		t.Errorf("Expected the scanner idle after shutdown, got %v", got)
	}

	bg := context.Background()
	sessions, err := store.Sessions(bg)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].EndTime == nil || sessions[0].DeviceType != "sim" {
		t.Fatalf("Unexpected sessions: %+v", sessions)
	}

	summary, err := store.Summary(bg, sessions[0].ID, 10)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(summary) != 1 || summary[0].Frequency != 146_520_000 || summary[0].MaxLevel <= -60 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var buffers float64
	for _, mf := range families {
		if mf.GetName() == "scanner_device_buffers_read_total" {
			buffers = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if buffers == 0 {
		t.Error("Expected buffers to be counted")
	}
}

func TestOrchestrator_FixedFrequency(t *testing.T) {
	config, err := ParseConfig([]byte(`
settings:
  audio: none
device:
  type: sim
  config:
    realtime: true
receiver:
  frequency: 100000000
  mode: WFM
`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	o := NewOrchestrator(config, slog.New(slog.NewTextHandler(io.Discard, nil)), WithSink(&audio.Discard{}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- o.Run(ctx)
	}()

	select {
	case <-o.Ready():
	case err := <-errCh:
		t.Fatalf("Run: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the receiver")
	}

	deadline := time.Now().Add(5 * time.Second)
	for o.Pipeline().Spectrum().CenterFrequency != 100_000_000 {
		if time.Now().After(deadline) {
			t.Fatal("Pipeline never processed a buffer at the receiver frequency")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := o.Scanner().State().Kind(); got != scanner.KindIdle {
		t.Errorf("Expected the scanner idle, got %v", got)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run: %v", err)
	}
}
