package demod

import "fmt"

// Registry holds one demodulator instance per mode. It is not safe for concurrent
// use; the pipeline owns it.
type Registry struct {
	demods map[Mode]Demodulator
}

// WithBFO sets the CW beat frequency
func WithBFO(hz float64) func(*Registry) {
	return func(r *Registry) {
		r.demods[CW].(*CWDemodulator).BFO = hz
	}
}

// WithDeemphasis sets the FM and WFM de-emphasis time constant, 0 disables it
func WithDeemphasis(tau float64) func(*Registry) {
	return func(r *Registry) {
		r.demods[FM].(*FMDemodulator).Tau = tau
		r.demods[WFM].(*FMDemodulator).Tau = tau
	}
}

// NewRegistry creates the demodulator set. RAW has no demodulator.
func NewRegistry(options ...func(*Registry)) *Registry {
	r := Registry{
		demods: map[Mode]Demodulator{
			AM:  &AMDemodulator{},
			FM:  NewFMDemodulator(),
			WFM: NewFMDemodulator(),
			LSB: &SSBDemodulator{},
			USB: &SSBDemodulator{Upper: true},
			CW:  NewCWDemodulator(),
		},
	}

	for _, option := range options {
		option(&r)
	}
	return &r
}

// Select returns the demodulator for mode after resetting it. RAW yields nil.
func (r *Registry) Select(mode Mode) (Demodulator, error) {
	if mode == RAW {
		return nil, nil
	}

	d, ok := r.demods[mode]
	if !ok {
		return nil, fmt.Errorf("no demodulator for mode %s", mode)
	}

	d.Reset()
	return d, nil
}
