package sim

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
)

type simDriver struct {
	config *Config
}

// New creates a synthetic driver
func New(config *Config) (sdr.Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &simDriver{config: config}, nil
}

func (d *simDriver) Name() string {
	return Driver
}

func (d *simDriver) Enumerate(context.Context) ([]sdr.DeviceInfo, error) {
	return []sdr.DeviceInfo{{ID: "0", Name: "Synthetic transmitter field", Driver: Driver}}, nil
}

func (d *simDriver) Open(context.Context) (sdr.Handle, error) {
	h := handle{
		config:     d.config,
		sampleRate: DefaultSampleRate,
		phases:     make([]float64, len(d.config.Transmitters)),
		rng:        rand.New(rand.NewPCG(d.config.Seed, d.config.Seed^0x9e3779b97f4a7c15)),
	}
	return &h, nil
}

type handle struct {
	config *Config

	mu         sync.Mutex
	frequency  float64
	sampleRate float64
	active     bool
	reads      int
	clock      int64 // samples generated since activation
	startedAt  time.Time
	phases     []float64
	rng        *rand.Rand
}

func (h *handle) Capabilities() sdr.Capabilities {
	return sdr.Capabilities{
		FrequencyRange:  sdr.Range{Min: FrequencyMin, Max: FrequencyMax},
		SampleRateRange: sdr.Range{Min: 225_001, Max: 3_200_000},
		GainRange:       sdr.Range{Min: 0, Max: 50},
		Antennas:        []string{"RX"},
		PPMCorrection:   true,
	}
}

func (h *handle) SetFrequency(hz float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frequency = hz
	return nil
}

func (h *handle) SetSampleRate(hz float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sampleRate = hz
	return nil
}

func (h *handle) SetGain(float64) error             { return nil }
func (h *handle) SetGainMode(sdr.GainMode) error     { return nil }
func (h *handle) SetBandwidth(float64) error         { return nil }
func (h *handle) SetCorrection(sdr.Correction) error { return nil }

func (h *handle) SetAntenna(name string) error {
	if name != "RX" {
		return sdr.ErrNotSupported
	}
	return nil
}

func (h *handle) Activate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = true
	h.clock = 0
	h.startedAt = time.Now()
	return nil
}

func (h *handle) Deactivate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = false
	return nil
}

func (h *handle) Close() error {
	return h.Deactivate()
}

func (h *handle) ReadStream(buf []complex64, timeout time.Duration) (int, bool, error) {
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		return 0, false, sdr.ErrStreamingFailed
	}

	if h.config.Realtime {
		due := h.startedAt.Add(time.Duration(float64(h.clock+int64(len(buf))) / h.sampleRate * float64(time.Second)))
		wait := time.Until(due)
		if wait > timeout {
			h.mu.Unlock()
			time.Sleep(timeout)
			return 0, false, sdr.ErrTimeout
		}
		if wait > 0 {
			h.mu.Unlock()
			time.Sleep(wait)
			h.mu.Lock()
		}
	}
	defer h.mu.Unlock()

	h.generate(buf)
	h.reads++

	overflow := h.config.OverflowEvery > 0 && h.reads%h.config.OverflowEvery == 0
	return len(buf), overflow, nil
}

func (h *handle) generate(buf []complex64) {
	noise := h.config.NoiseLevel / math.Sqrt2
	for i := range buf {
		var re, im float64
		if noise > 0 {
			re = h.rng.NormFloat64() * noise
			im = h.rng.NormFloat64() * noise
		}
		buf[i] = complex(float32(re), float32(im))
	}

	nyquist := h.sampleRate / 2
	for j, tx := range h.config.Transmitters {
		offset := tx.Frequency - h.frequency
		if math.Abs(offset) >= nyquist {
			continue
		}

		for i := range buf {
			t := float64(h.clock+int64(i)) / h.sampleRate
			inst := offset
			if tx.ToneHz > 0 {
				inst += tx.Deviation * math.Sin(2*math.Pi*tx.ToneHz*t)
			}
			h.phases[j] += 2 * math.Pi * inst / h.sampleRate
			if h.phases[j] > math.Pi {
				h.phases[j] -= 2 * math.Pi
			} else if h.phases[j] < -math.Pi {
				h.phases[j] += 2 * math.Pi
			}

			if !keyed(tx, t) {
				continue
			}
			s, c := math.Sincos(h.phases[j])
			buf[i] += complex(float32(tx.Amplitude*c), float32(tx.Amplitude*s))
		}
	}

	h.clock += int64(len(buf))
}

func keyed(tx Transmitter, t float64) bool {
	if tx.Period <= 0 {
		return true
	}
	period := tx.Period.Duration().Seconds()
	return math.Mod(t, period) < period*tx.DutyCycle
}
