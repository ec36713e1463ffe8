package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/radio-scanner/internal/demod"
	"github.com/roman-kulish/radio-scanner/internal/dsp"
	"github.com/roman-kulish/radio-scanner/internal/publish"
	"github.com/roman-kulish/radio-scanner/internal/scanner"
	"github.com/roman-kulish/radio-scanner/internal/sdr/capture"
	"github.com/roman-kulish/radio-scanner/internal/sdr/driver"
	"github.com/roman-kulish/radio-scanner/internal/sdr/hackrf"
	"github.com/roman-kulish/radio-scanner/internal/sdr/rtl"
	"github.com/roman-kulish/radio-scanner/internal/sdr/sim"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

type DeviceType string

const (
	DeviceRTLSDR  DeviceType = rtl.Driver
	DeviceHackRF  DeviceType = hackrf.Driver
	DeviceSim     DeviceType = sim.Driver
	DeviceCapture DeviceType = capture.Driver
)

const (
	AudioPulse = "pulse"
	AudioNone  = "none"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings        `yaml:"settings"`
	Device   DeviceConfig    `yaml:"device"`
	Receiver ReceiverConfig  `yaml:"receiver"`
	Scanner  ScannerConfig   `yaml:"scanner"`
	Storage  StorageConfig   `yaml:"storage"`
	MQTT     *publish.Config `yaml:"mqtt,omitempty"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel       slog.Level `yaml:"logLevel"`
	MetricsAddress string     `yaml:"metricsAddress"` // e.g. ":9100", empty disables the endpoint
	Audio          string     `yaml:"audio"`          // pulse or none
	AudioRate      float64    `yaml:"audioRate"`
	Volume         float32    `yaml:"volume"`
	Keyboard       bool       `yaml:"keyboard"` // operator keys on the controlling terminal
}

// DeviceConfig selects the SDR. Config holds the driver's own configuration,
// decoded according to Type.
type DeviceConfig struct {
	Type       DeviceType          `yaml:"type"`
	Name       string              `yaml:"name"`
	SampleRate float64             `yaml:"sampleRate"` // 0 uses the device's default
	Gain       *float64            `yaml:"gain"`       // dB, nil for automatic gain
	Bandwidth  float64             `yaml:"bandwidth"`
	PPM        float64             `yaml:"ppm"`
	BlockSize  int                 `yaml:"blockSize"`
	Timeout    driver.TimeDuration `yaml:"readTimeout"`
	Config     any                 `yaml:"-"`
}

func (d *DeviceConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain DeviceConfig
	var raw struct {
		plain  `yaml:",inline"`
		Config yaml.Node `yaml:"config"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*d = DeviceConfig(raw.plain)

	var config interface{ Validate() error }
	switch d.Type {
	case DeviceRTLSDR:
		config = &rtl.Config{}
	case DeviceHackRF:
		config = &hackrf.Config{}
	case DeviceSim:
		config = &sim.Config{}
	case DeviceCapture:
		config = &capture.Config{}
	default:
		return fmt.Errorf("unknown device type '%s'", d.Type)
	}

	if !raw.Config.IsZero() {
		if err := raw.Config.Decode(config); err != nil {
			return fmt.Errorf("decoding %s config: %w", d.Type, err)
		}
	}
	d.Config = config
	return nil
}

// ReceiverConfig is the initial pipeline state.
type ReceiverConfig struct {
	Frequency     float64         `yaml:"frequency"` // Hz, tuned when the scanner is not started
	Mode          demod.Mode      `yaml:"mode"`
	Squelch       *float64        `yaml:"squelch"` // dB, nil disables the squelch
	ToneSquelch   float64         `yaml:"toneSquelch"`
	AGC           bool            `yaml:"agc"`
	AGCProfile    dsp.AGCProfile  `yaml:"agcProfile"`
	FFTSize       int             `yaml:"fftSize"`
	Window        spectrum.Window `yaml:"window"`
	Averaging     int             `yaml:"averaging"`
	DisplayOffset float64         `yaml:"displayOffset"`
	BFO           float64         `yaml:"bfo"`
	DeemphasisTau float64         `yaml:"deemphasisTau"` // seconds, 0 uses 75µs
	SignalBins    int             `yaml:"signalBins"`
}

type MemoryEntry struct {
	Frequency float64    `yaml:"frequency"`
	Mode      demod.Mode `yaml:"mode"`
	Label     string     `yaml:"label"`
	Priority  bool       `yaml:"priority"`
	Locked    bool       `yaml:"locked"`
}

// ScannerConfig configures the scanner. Enabled false leaves the receiver on
// receiver.frequency.
type ScannerConfig struct {
	Enabled          bool                `yaml:"enabled"`
	Mode             scanner.Mode        `yaml:"mode"`
	Start            float64             `yaml:"start"`
	End              float64             `yaml:"end"`
	Step             float64             `yaml:"step"`
	Direction        scanner.Direction   `yaml:"direction"`
	Squelch          *float64            `yaml:"squelch"`
	HoldTime         driver.TimeDuration `yaml:"holdTime"`
	ResumeDelay      driver.TimeDuration `yaml:"resumeDelay"`
	ScanSpeed        driver.TimeDuration `yaml:"scanSpeed"`
	Lockout          *bool               `yaml:"lockout"`
	PriorityInterval *int                `yaml:"priorityInterval"`
	Plan             string              `yaml:"plan"` // INI scan plan, merged into the memory list
	Memory           []MemoryEntry       `yaml:"memory"`
	Lockouts         []float64           `yaml:"lockouts"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Enabled       bool                `yaml:"enabled"`
	DataDirectory string              `yaml:"dataDirectory"`
	FlushInterval driver.TimeDuration `yaml:"flushInterval"`
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	config := Config{
		Settings: Settings{
			LogLevel:  slog.LevelInfo,
			Audio:     AudioPulse,
			AudioRate: dsp.DefaultAudioRate,
			Volume:    1,
		},
		Receiver: ReceiverConfig{
			Mode:       demod.FM,
			AGCProfile: dsp.AGCMedium,
			FFTSize:    spectrum.DefaultFFTSize,
			Window:     spectrum.Hanning,
			Averaging:  spectrum.DefaultAveraging,
			BFO:        demod.DefaultBFO,
			SignalBins: dsp.DefaultSignalBins,
		},
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Settings.Audio {
	case AudioPulse, AudioNone:
	default:
		errs = append(errs, fmt.Errorf("settings: unknown audio output %q", c.Settings.Audio))
	}
	if c.Settings.AudioRate <= 0 {
		errs = append(errs, errors.New("settings: audio rate must be positive"))
	}

	if c.Device.Config == nil {
		errs = append(errs, errors.New("device: type is required"))
	} else if err := c.Device.Config.(interface{ Validate() error }).Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Device.SampleRate < 0 || c.Device.BlockSize < 0 {
		errs = append(errs, errors.New("device: sample rate and block size must not be negative"))
	}

	if c.Scanner.Enabled {
		if _, err := c.ScannerSettings(); err != nil {
			errs = append(errs, err)
		}
		if c.Scanner.Mode == scanner.RangeMode && c.Scanner.Plan == "" && c.Scanner.End <= c.Scanner.Start {
			errs = append(errs, fmt.Errorf("scanner: invalid range %.0f - %.0f", c.Scanner.Start, c.Scanner.End))
		}
	} else if c.Receiver.Frequency <= 0 {
		errs = append(errs, errors.New("receiver: frequency is required when the scanner is disabled"))
	}

	if c.MQTT != nil {
		if err := c.MQTT.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ScannerSettings overlays the configured values on the scanner defaults.
func (c *Config) ScannerSettings() (scanner.Settings, error) {
	s := scanner.DefaultSettings()
	sc := c.Scanner

	if sc.Step > 0 {
		s.StepSize = sc.Step
	}
	if sc.Squelch != nil {
		s.Squelch = *sc.Squelch
	} else if c.Receiver.Squelch != nil {
		s.Squelch = *c.Receiver.Squelch
	}
	setDuration(&s.HoldTime, sc.HoldTime)
	setDuration(&s.ResumeDelay, sc.ResumeDelay)
	setDuration(&s.ScanSpeed, sc.ScanSpeed)
	if sc.Lockout != nil {
		s.LockoutEnabled = *sc.Lockout
	}
	if sc.PriorityInterval != nil {
		s.PriorityInterval = *sc.PriorityInterval
	}
	s.Direction = sc.Direction

	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("scanner: %w", err)
	}
	return s, nil
}

func setDuration(dst *time.Duration, d driver.TimeDuration) {
	if d.Duration() > 0 {
		*dst = d.Duration()
	}
}

// DeviceID names the device for sessions and logs.
func (d *DeviceConfig) DeviceID() string {
	if d.Name != "" {
		return d.Name
	}
	if s, ok := d.Config.(fmt.Stringer); ok {
		return s.String()
	}
	return strings.ToLower(string(d.Type))
}
