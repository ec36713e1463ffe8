package dsp

import "math"

// Butterworth Q values for a 4th order low-pass built from two sections.
var butterworth4 = [2]float64{0.5411961, 1.3065630}

// Biquad is a second order IIR section in transposed direct form II.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

// NewLowPass designs a low-pass section (RBJ cookbook) with cutoff Hz at sampleRate.
func NewLowPass(cutoff, sampleRate, q float64) *Biquad {
	w0 := 2 * math.Pi * cutoff / sampleRate
	sin, cos := math.Sincos(w0)
	alpha := sin / (2 * q)
	a0 := 1 + alpha

	return &Biquad{
		b0: (1 - cos) / 2 / a0,
		b1: (1 - cos) / a0,
		b2: (1 - cos) / 2 / a0,
		a1: -2 * cos / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f *Biquad) Process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

func (f *Biquad) Reset() {
	f.z1, f.z2 = 0, 0
}
