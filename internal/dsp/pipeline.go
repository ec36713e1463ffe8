// Package dsp turns the IQ stream into audio: spectrum and signal strength, squelch,
// demodulation, resampling to the audio rate and AGC.
package dsp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/demod"
	"github.com/roman-kulish/radio-scanner/internal/event"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	DefaultAudioRate  = 48_000
	DefaultSignalBins = 10
	DefaultSquelch    = -60.0 // dB
)

// AudioSink consumes demodulated audio at the pipeline's audio rate.
type AudioSink interface {
	Write(ctx context.Context, samples []float32) error
}

// Observer receives per-buffer measurements, typically to feed metrics.
type Observer interface {
	BufferProcessed(b sdr.IQBuffer, elapsed time.Duration)
	Overflow()
	Levels(signalDB, audioRMS float64, squelchOpen bool)
	SinkFailed(err error)
}

// Result is what one buffer produced.
type Result struct {
	Spectrum       spectrum.Data
	SignalStrength float64 // dB, peak near the tuned frequency
	SquelchOpen    bool
	Measured       bool      // SignalStrength belongs to this buffer's frequency
	Audio          []float32 // nil when squelched or in RAW mode
	AudioLevel     float64   // RMS of Audio, 0 when squelched
}

func WithLogger(logger *slog.Logger) func(*Pipeline) {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithObserver(o Observer) func(*Pipeline) {
	return func(p *Pipeline) {
		p.observer = o
	}
}

func WithBus(bus *event.Bus) func(*Pipeline) {
	return func(p *Pipeline) {
		p.bus = bus
	}
}

// WithAudioRate sets the sink sample rate in Hz
func WithAudioRate(hz float64) func(*Pipeline) {
	return func(p *Pipeline) {
		if hz > 0 {
			p.audioRate = hz
		}
	}
}

// WithSignalBins sets how many display bins either side of centre are searched for the signal peak
func WithSignalBins(n int) func(*Pipeline) {
	return func(p *Pipeline) {
		if n >= 0 {
			p.signalBins = n
		}
	}
}

// Pipeline consumes IQ buffers in arrival order. Settings may be changed from any
// goroutine; a change takes effect between buffers, never in the middle of one.
type Pipeline struct {
	analyzer *spectrum.Analyzer
	registry *demod.Registry
	sink     AudioSink

	logger   *slog.Logger
	observer Observer
	bus      *event.Bus

	audioRate  float64
	signalBins int

	// mu guards everything below and is held while a buffer is processed.
	mu             sync.Mutex
	mode           demod.Mode
	demodulator    demod.Demodulator
	resampler      *Resampler
	squelchEnabled bool
	squelchLevel   float64
	tone           *demod.ToneDetector
	agcEnabled     bool
	agc            *AGC
	lastCenter     float64
	measured       bool // a spectrum was computed at lastCenter

	// last results, readable without waiting for mu
	spectrum   atomic.Pointer[spectrum.Data]
	strength   atomic.Uint64
	audioLevel atomic.Uint64
}

// NewPipeline creates a pipeline in FM mode with squelch and AGC disabled.
func NewPipeline(analyzer *spectrum.Analyzer, registry *demod.Registry, sink AudioSink, options ...func(*Pipeline)) (*Pipeline, error) {
	p := Pipeline{
		analyzer:     analyzer,
		registry:     registry,
		sink:         sink,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		audioRate:    DefaultAudioRate,
		signalBins:   DefaultSignalBins,
		squelchLevel: DefaultSquelch,
		agc:          NewAGC(AGCMedium, DefaultAGCTarget),
		mode:         demod.FM,
	}

	for _, option := range options {
		option(&p)
	}

	d, err := registry.Select(p.mode)
	if err != nil {
		return nil, err
	}
	p.demodulator = d
	p.resampler = NewResampler(0, p.audioRate)
	p.strength.Store(math.Float64bits(math.Inf(-1)))

	return &p, nil
}

// Run processes buffers until the channel closes or ctx is done.
func (p *Pipeline) Run(ctx context.Context, in <-chan sdr.IQBuffer) error {
	p.logger.Info("pipeline started", slog.Float64("audioRate", p.audioRate))
	defer p.logger.Info("pipeline stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-in:
			if !ok {
				return nil
			}
			p.Process(ctx, b)
		}
	}
}

// Process runs one buffer through the chain and forwards any audio to the sink.
func (p *Pipeline) Process(ctx context.Context, b sdr.IQBuffer) Result {
	started := time.Now()

	if b.Overflow {
		p.logger.Debug("hardware overflow", slog.String("frequency", sdr.FormatFrequency(b.CenterFrequency)))
		if p.observer != nil {
			p.observer.Overflow()
		}
	}

	p.mu.Lock()
	res := p.process(b)
	p.mu.Unlock()

	if !res.Spectrum.Empty() {
		p.spectrum.Store(&res.Spectrum)
		p.bus.Publish(event.SpectrumUpdated{Spectrum: res.Spectrum})
	}
	p.strength.Store(math.Float64bits(res.SignalStrength))
	p.audioLevel.Store(math.Float64bits(res.AudioLevel))

	if res.Measured {
		p.bus.Publish(event.SignalStrength{Frequency: b.CenterFrequency, Level: res.SignalStrength})
	}
	p.bus.Publish(event.AudioLevel{Level: res.AudioLevel})

	if len(res.Audio) > 0 && p.sink != nil {
		if err := p.sink.Write(ctx, res.Audio); err != nil {
			p.logger.Warn("audio sink write failed", slog.Any("error", err))
			if p.observer != nil {
				p.observer.SinkFailed(err)
			}
		}
	}

	if p.observer != nil {
		p.observer.Levels(res.SignalStrength, res.AudioLevel, res.SquelchOpen)
		p.observer.BufferProcessed(b, time.Since(started))
	}
	return res
}

// process must be called with mu held.
func (p *Pipeline) process(b sdr.IQBuffer) Result {
	// averaging across a retune would blend two different frequencies
	if b.CenterFrequency != p.lastCenter {
		p.analyzer.Reset()
		p.lastCenter = b.CenterFrequency
		p.measured = false
	}

	// a block too short for the FFT keeps the last level, but only one measured here
	res := Result{SignalStrength: math.Inf(-1)}
	if p.measured {
		res.SignalStrength = p.SignalStrength()
	}

	res.Spectrum = p.analyzer.Compute(b.Samples, b.CenterFrequency, b.SampleRate)
	if !res.Spectrum.Empty() {
		res.SignalStrength = res.Spectrum.PeakNear(p.signalBins)
		p.measured = true
	}
	res.Measured = p.measured

	res.SquelchOpen = !p.squelchEnabled || res.SignalStrength > p.squelchLevel
	if !res.SquelchOpen || p.demodulator == nil {
		return res
	}

	if in, _ := p.resampler.Rates(); in != b.SampleRate {
		p.resampler.Configure(b.SampleRate, p.audioRate)
	}

	audio := p.demodulator.Demodulate(b.Samples, b.SampleRate)
	audio = p.resampler.Process(audio)

	if p.tone != nil && !p.tone.Detect(audio) {
		res.SquelchOpen = false
		return res
	}

	if p.agcEnabled {
		p.agc.Process(audio)
	}

	res.Audio = audio
	res.AudioLevel = rms(audio)
	return res
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// SetMode swaps the demodulator. The new one starts from reset state, and the
// resampler is cleared so no audio from the old mode leaks through.
func (p *Pipeline) SetMode(mode demod.Mode) error {
	p.mu.Lock()
	d, err := p.registry.Select(mode)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("setting mode: %w", err)
	}
	p.mode = mode
	p.demodulator = d
	p.resampler.Reset()
	p.agc.Reset()
	p.mu.Unlock()

	p.logger.Info("mode changed", slog.String("mode", mode.String()))
	p.bus.Publish(event.ModeChanged{Mode: mode})
	return nil
}

// SetSquelch sets the squelch threshold in dB
func (p *Pipeline) SetSquelch(level float64) {
	p.mu.Lock()
	p.squelchLevel = level
	e := p.squelchEvent()
	p.mu.Unlock()

	p.bus.Publish(e)
}

func (p *Pipeline) EnableSquelch(enabled bool) {
	p.mu.Lock()
	p.squelchEnabled = enabled
	e := p.squelchEvent()
	p.mu.Unlock()

	p.bus.Publish(e)
}

// SetToneSquelch additionally requires a CTCSS tone of hz in the audio; 0 disables it.
func (p *Pipeline) SetToneSquelch(hz float64) {
	p.mu.Lock()
	if hz > 0 {
		p.tone = demod.NewToneDetector(hz, p.audioRate)
	} else {
		p.tone = nil
	}
	e := p.squelchEvent()
	p.mu.Unlock()

	p.bus.Publish(e)
}

func (p *Pipeline) squelchEvent() event.SquelchChanged {
	e := event.SquelchChanged{Enabled: p.squelchEnabled, Level: p.squelchLevel}
	if p.tone != nil {
		e.ToneHz = p.tone.Frequency()
	}
	return e
}

// SetAGC selects the AGC profile
func (p *Pipeline) SetAGC(profile AGCProfile) {
	p.mu.Lock()
	p.agc.SetProfile(profile)
	e := event.AGCChanged{Enabled: p.agcEnabled, Profile: p.agc.Profile().String()}
	p.mu.Unlock()

	p.bus.Publish(e)
}

func (p *Pipeline) EnableAGC(enabled bool) {
	p.mu.Lock()
	if enabled && !p.agcEnabled {
		p.agc.Reset()
	}
	p.agcEnabled = enabled
	e := event.AGCChanged{Enabled: p.agcEnabled, Profile: p.agc.Profile().String()}
	p.mu.Unlock()

	p.bus.Publish(e)
}

// Spectrum returns the last non-empty spectrum
func (p *Pipeline) Spectrum() spectrum.Data {
	if d := p.spectrum.Load(); d != nil {
		return *d
	}
	return spectrum.Data{}
}

// SignalStrength returns the last measured level in dB, -Inf before the first spectrum
func (p *Pipeline) SignalStrength() float64 {
	return math.Float64frombits(p.strength.Load())
}

// AudioLevel returns the RMS of the last forwarded audio block, 0 when squelched
func (p *Pipeline) AudioLevel() float64 {
	return math.Float64frombits(p.audioLevel.Load())
}

func (p *Pipeline) Mode() demod.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

func (p *Pipeline) SquelchEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.squelchEnabled
}

func (p *Pipeline) SquelchLevel() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.squelchLevel
}

func (p *Pipeline) AGCEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agcEnabled
}

// AudioRate returns the sink sample rate
func (p *Pipeline) AudioRate() float64 {
	return p.audioRate
}
