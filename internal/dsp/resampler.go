package dsp

import "math"

// Resampler brings demodulated audio from the IQ sample rate down to the audio rate:
// a 4th order low-pass, integer decimation, then linear interpolation for the
// remaining fractional ratio.
type Resampler struct {
	inRate  float64
	outRate float64

	filters []*Biquad
	decim   int
	phase   int // input samples since the last kept one

	step float64 // decimated samples per output sample
	t    float64 // interpolation position between last and the next sample
	last float64
}

// NewResampler creates a resampler from inRate to outRate. Upsampling is not
// supported; when inRate <= outRate samples pass through unchanged.
func NewResampler(inRate, outRate float64) *Resampler {
	r := Resampler{}
	r.Configure(inRate, outRate)
	return &r
}

// Configure redesigns the filters for new rates and clears all state.
func (r *Resampler) Configure(inRate, outRate float64) {
	r.inRate = inRate
	r.outRate = outRate
	r.filters = nil
	r.decim = 1
	r.step = 1

	if inRate > outRate && outRate > 0 {
		r.decim = int(math.Floor(inRate / outRate))
		r.step = inRate / float64(r.decim) / outRate

		cutoff := 0.45 * outRate
		r.filters = []*Biquad{
			NewLowPass(cutoff, inRate, butterworth4[0]),
			NewLowPass(cutoff, inRate, butterworth4[1]),
		}
	}
	r.Reset()
}

// Rates returns the configured input and output rates
func (r *Resampler) Rates() (in, out float64) {
	return r.inRate, r.outRate
}

// Reset clears filter memory and interpolation state.
func (r *Resampler) Reset() {
	for _, f := range r.filters {
		f.Reset()
	}
	r.phase = 0
	r.t = 0
	r.last = 0
}

func (r *Resampler) passthrough() bool {
	return r.filters == nil
}

// Process resamples one block. State carries over so consecutive blocks join seamlessly.
func (r *Resampler) Process(in []float32) []float32 {
	if r.passthrough() {
		return in
	}

	out := make([]float32, 0, int(float64(len(in))/float64(r.decim)/r.step)+2)
	for _, s := range in {
		x := float64(s)
		for _, f := range r.filters {
			x = f.Process(x)
		}

		r.phase++
		if r.phase < r.decim {
			continue
		}
		r.phase = 0

		for r.t < 1 {
			out = append(out, float32(r.last+(x-r.last)*r.t))
			r.t += r.step
		}
		r.t -= 1
		r.last = x
	}
	return out
}
