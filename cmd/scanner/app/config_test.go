package app

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/demod"
	"github.com/roman-kulish/radio-scanner/internal/dsp"
	"github.com/roman-kulish/radio-scanner/internal/scanner"
	"github.com/roman-kulish/radio-scanner/internal/sdr/rtl"
	"github.com/roman-kulish/radio-scanner/internal/sdr/sim"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const simConfig = `
settings:
  logLevel: debug
  audio: none
device:
  type: sim
  gain: 20
  config:
    noiseLevel: 0.01
    transmitters:
      - frequency: 146520000
        amplitude: 0.5
        period: 2s
        dutyCycle: 0.5
receiver:
  mode: NFM
  squelch: -55
  window: blackman-harris
scanner:
  enabled: true
  mode: memory
  holdTime: 500ms
  lockout: false
  memory:
    - frequency: 146520000
      label: simplex
      priority: true
`

func TestParseConfig_Sim(t *testing.T) {
	config, err := ParseConfig([]byte(simConfig))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if config.Settings.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", config.Settings.LogLevel)
	}
	if config.Settings.AudioRate != dsp.DefaultAudioRate || config.Settings.Volume != 1 {
		t.Errorf("Expected audio defaults, got %+v", config.Settings)
	}

	simCfg, ok := config.Device.Config.(*sim.Config)
	if !ok {
		t.Fatalf("Expected *sim.Config, got %T", config.Device.Config)
	}
	if len(simCfg.Transmitters) != 1 || simCfg.Transmitters[0].Period.Duration() != 2*time.Second {
		t.Errorf("Unexpected transmitters: %+v", simCfg.Transmitters)
	}
	if config.Device.Gain == nil || *config.Device.Gain != 20 {
		t.Errorf("gain = %v", config.Device.Gain)
	}

	rc := config.Receiver
	if rc.Mode != demod.FM || rc.Window != spectrum.BlackmanHarris || rc.FFTSize != spectrum.DefaultFFTSize {
		t.Errorf("Unexpected receiver config: %+v", rc)
	}
	if rc.Squelch == nil || *rc.Squelch != -55 {
		t.Errorf("receiver squelch = %v", rc.Squelch)
	}

	if config.Scanner.Mode != scanner.MemoryMode || len(config.Scanner.Memory) != 1 || !config.Scanner.Memory[0].Priority {
		t.Errorf("Unexpected scanner config: %+v", config.Scanner)
	}

	settings, err := config.ScannerSettings()
	if err != nil {
		t.Fatalf("ScannerSettings: %v", err)
	}
	defaults := scanner.DefaultSettings()
	if settings.Squelch != -55 {
		t.Errorf("Expected the receiver squelch to carry over, got %v", settings.Squelch)
	}
	if settings.HoldTime != 500*time.Millisecond || settings.ResumeDelay != defaults.ResumeDelay {
		t.Errorf("Unexpected durations: hold %v, resume %v", settings.HoldTime, settings.ResumeDelay)
	}
	if settings.LockoutEnabled {
		t.Error("Expected lockout disabled")
	}
	if settings.StepSize != defaults.StepSize || settings.PriorityInterval != defaults.PriorityInterval {
		t.Errorf("Expected step and priority defaults, got %+v", settings)
	}
}

func TestParseConfig_RTL(t *testing.T) {
	config, err := ParseConfig([]byte(`
device:
  type: rtl
  config:
    address: 127.0.0.1:1234
receiver:
  frequency: 100000000
  mode: WFM
`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	rtlCfg, ok := config.Device.Config.(*rtl.Config)
	if !ok {
		t.Fatalf("Expected *rtl.Config, got %T", config.Device.Config)
	}
	if !rtlCfg.Remote() {
		t.Error("Expected a remote rtl_tcp configuration")
	}
	if config.Device.DeviceID() == "" {
		t.Error("Expected a device identifier")
	}
	if config.Scanner.Enabled || config.MQTT != nil || config.Storage.Enabled {
		t.Error("Expected optional sections disabled")
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown device",
			yaml: "device:\n  type: soapy\n",
			want: "unknown device type",
		},
		{
			name: "missing device",
			yaml: "receiver:\n  frequency: 100000000\n",
			want: "device: type is required",
		},
		{
			name: "invalid driver config",
			yaml: "device:\n  type: sim\n  config:\n    noiseLevel: -1\nreceiver:\n  frequency: 100000000\n",
			want: "noise level",
		},
		{
			name: "no frequency",
			yaml: "device:\n  type: sim\n",
			want: "frequency is required",
		},
		{
			name: "invalid range",
			yaml: "device:\n  type: sim\nscanner:\n  enabled: true\n  start: 148000000\n  end: 144000000\n",
			want: "invalid range",
		},
		{
			name: "invalid scanner settings",
			yaml: "device:\n  type: sim\nscanner:\n  enabled: true\n  mode: memory\n  priorityInterval: -1\n",
			want: "scanner:",
		},
		{
			name: "audio output",
			yaml: "settings:\n  audio: alsa\ndevice:\n  type: sim\nreceiver:\n  frequency: 100000000\n",
			want: "unknown audio output",
		},
		{
			name: "mqtt broker",
			yaml: "device:\n  type: sim\nreceiver:\n  frequency: 100000000\nmqtt:\n  broker: http://localhost\n",
			want: "broker",
		},
		{
			name: "unknown mode",
			yaml: "device:\n  type: sim\nreceiver:\n  frequency: 100000000\n  mode: DSB\n",
			want: "DSB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
