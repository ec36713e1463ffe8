package sdr

import (
	"context"
	"time"
)

// GainMode selects how the tuner gain is controlled.
type GainMode int

const (
	GainAutomatic GainMode = iota
	GainManual
)

func (m GainMode) String() string {
	switch m {
	case GainAutomatic:
		return "automatic"
	case GainManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the range. A zero range contains everything.
func (r Range) Contains(v float64) bool {
	if r.Min == 0 && r.Max == 0 {
		return true
	}
	return v >= r.Min && v <= r.Max
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	if r.Min == 0 && r.Max == 0 {
		return v
	}
	return min(max(v, r.Min), r.Max)
}

// Capabilities is a snapshot of what the hardware supports, queried once at open time.
type Capabilities struct {
	FrequencyRange  Range    `json:"frequencyRange"`
	SampleRateRange Range    `json:"sampleRateRange"`
	GainRange       Range    `json:"gainRange"`
	BandwidthRange  Range    `json:"bandwidthRange"`
	Antennas        []string `json:"antennas,omitempty"`

	DCOffsetCorrection  bool `json:"dcOffsetCorrection"`
	IQBalanceCorrection bool `json:"iqBalanceCorrection"`
	PPMCorrection       bool `json:"ppmCorrection"`
}

// Correction holds front-end error corrections.
type Correction struct {
	DCOffset  bool
	IQBalance bool
	PPM       float64
}

// DeviceInfo identifies a device found by enumeration.
type DeviceInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
	Serial string `json:"serial,omitempty"`
}

// Handle is the boundary to a specific hardware family. Implementations must allow
// the Set* methods to be called while another goroutine is blocked in ReadStream.
type Handle interface {
	Capabilities() Capabilities

	SetFrequency(hz float64) error
	SetSampleRate(hz float64) error
	SetGain(db float64) error
	SetGainMode(mode GainMode) error
	SetBandwidth(hz float64) error
	SetAntenna(name string) error
	SetCorrection(c Correction) error

	// Activate starts the hardware stream, Deactivate stops it.
	Activate() error
	Deactivate() error

	// ReadStream fills buf with up to len(buf) samples, blocking at most timeout.
	// It returns ErrTimeout when no samples arrived in time.
	ReadStream(buf []complex64, timeout time.Duration) (n int, overflow bool, err error)

	Close() error
}

// Driver opens handles for one hardware family.
type Driver interface {
	Name() string
	Enumerate(ctx context.Context) ([]DeviceInfo, error)
	Open(ctx context.Context) (Handle, error)
}
