// Package demod converts complex baseband samples into real audio samples.
//
// Every Demodulator is stateful: filters carry memory across calls so that a stream
// split into blocks demodulates the same as one long block. A freshly created or
// Reset demodulator is deterministic.
package demod

import (
	"math"
)

// Demodulator turns IQ samples into audio samples of the same length.
type Demodulator interface {
	Demodulate(samples []complex64, sampleRate float64) []float32
	Reset()
}

const (
	// DCBlockAlpha is the AM carrier tracking coefficient.
	DCBlockAlpha = 0.001

	// DeemphasisTau is the FM de-emphasis time constant, 75 µs.
	DeemphasisTau = 75e-6

	// DefaultBFO is the CW beat frequency in Hz.
	DefaultBFO = 700
)

// AMDemodulator is an envelope detector followed by a DC blocker.
type AMDemodulator struct {
	dc float64
}

func (d *AMDemodulator) Demodulate(samples []complex64, _ float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		env := math.Hypot(float64(real(s)), float64(imag(s)))
		d.dc += DCBlockAlpha * (env - d.dc)
		out[i] = float32(env - d.dc)
	}
	return out
}

func (d *AMDemodulator) Reset() {
	d.dc = 0
}

// FMDemodulator is a polar discriminator with first order de-emphasis. The same
// algorithm serves narrow and wide FM.
type FMDemodulator struct {
	Tau float64 // de-emphasis time constant in seconds, 0 disables

	prevPhase float64
	primed    bool
	deemph    float64
}

// NewFMDemodulator creates an FM demodulator with 75 µs de-emphasis
func NewFMDemodulator() *FMDemodulator {
	return &FMDemodulator{Tau: DeemphasisTau}
}

func (d *FMDemodulator) Demodulate(samples []complex64, sampleRate float64) []float32 {
	alpha := 1.0
	if d.Tau > 0 && sampleRate > 0 {
		alpha = 1 - math.Exp(-1/(d.Tau*sampleRate))
	}

	out := make([]float32, len(samples))
	for i, s := range samples {
		phase := math.Atan2(float64(imag(s)), float64(real(s)))
		if !d.primed {
			d.prevPhase = phase
			d.primed = true
		}

		delta := phase - d.prevPhase
		if delta > math.Pi {
			delta -= 2 * math.Pi
		} else if delta < -math.Pi {
			delta += 2 * math.Pi
		}
		d.prevPhase = phase

		d.deemph += alpha * (delta/math.Pi - d.deemph)
		out[i] = float32(d.deemph)
	}
	return out
}

func (d *FMDemodulator) Reset() {
	d.prevPhase = 0
	d.primed = false
	d.deemph = 0
}

// SSBDemodulator recovers sideband audio by taking the in-phase component. It does no
// image rejection, so the opposite sideband folds onto the audio as well.
type SSBDemodulator struct {
	Upper bool
}

func (d *SSBDemodulator) Demodulate(samples []complex64, _ float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = real(s)
	}
	return out
}

func (d *SSBDemodulator) Reset() {}

// CWDemodulator mixes the signal with a beat frequency oscillator.
type CWDemodulator struct {
	BFO float64 // Hz

	phase float64
}

// NewCWDemodulator creates a CW demodulator with a 700 Hz BFO
func NewCWDemodulator() *CWDemodulator {
	return &CWDemodulator{BFO: DefaultBFO}
}

func (d *CWDemodulator) Demodulate(samples []complex64, sampleRate float64) []float32 {
	step := 0.0
	if sampleRate > 0 {
		step = 2 * math.Pi * d.BFO / sampleRate
	}

	out := make([]float32, len(samples))
	for i, s := range samples {
		sin, cos := math.Sincos(d.phase)
		out[i] = float32(float64(real(s))*cos + float64(imag(s))*sin)

		d.phase += step
		if d.phase >= 2*math.Pi {
			d.phase -= 2 * math.Pi
		}
	}
	return out
}

func (d *CWDemodulator) Reset() {
	d.phase = 0
}
