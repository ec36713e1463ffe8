// Package event carries state changes from the pipeline and the scanner to whoever
// is listening: the logger, the activity recorder, the MQTT publisher.
package event

import (
	"time"

	"github.com/roman-kulish/radio-scanner/internal/demod"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// Kind names an event type, it doubles as the MQTT topic suffix.
type Kind string

const (
	KindSpectrum       Kind = "spectrum"
	KindSignalStrength Kind = "signal"
	KindAudioLevel     Kind = "audio"
	KindMode           Kind = "mode"
	KindSquelch        Kind = "squelch"
	KindAGC            Kind = "agc"
	KindScannerState   Kind = "scanner/state"
	KindScannerTune    Kind = "scanner/frequency"
	KindActivity       Kind = "scanner/activity"
)

// Event is implemented by every payload published on the Bus.
type Event interface {
	Kind() Kind
}

type SpectrumUpdated struct {
	Spectrum spectrum.Data `json:"spectrum"`
}

type SignalStrength struct {
	Frequency float64 `json:"frequency"`
	Level     float64 `json:"level"` // dB
}

type AudioLevel struct {
	Level float64 `json:"level"` // RMS, 0 when squelched
}

type ModeChanged struct {
	Mode demod.Mode `json:"mode"`
}

type SquelchChanged struct {
	Enabled bool    `json:"enabled"`
	Level   float64 `json:"level"`
	ToneHz  float64 `json:"toneHz,omitempty"`
}

type AGCChanged struct {
	Enabled bool   `json:"enabled"`
	Profile string `json:"profile"`
}

type ScannerStateChanged struct {
	State     string    `json:"state"`
	Frequency float64   `json:"frequency,omitempty"` // set while holding
	Time      time.Time `json:"time"`
}

type ScannerTuned struct {
	Frequency float64 `json:"frequency"`
}

// Activity is a detect or lose entry of the scanner's activity log.
type Activity struct {
	Frequency float64    `json:"frequency"`
	Mode      demod.Mode `json:"mode"`
	Strength  float64    `json:"strength"`
	Detected  bool       `json:"detected"` // false when the signal was lost
	Label     string     `json:"label,omitempty"`
	Time      time.Time  `json:"time"`
}

func (SpectrumUpdated) Kind() Kind     { return KindSpectrum }
func (SignalStrength) Kind() Kind      { return KindSignalStrength }
func (AudioLevel) Kind() Kind          { return KindAudioLevel }
func (ModeChanged) Kind() Kind         { return KindMode }
func (SquelchChanged) Kind() Kind      { return KindSquelch }
func (AGCChanged) Kind() Kind          { return KindAGC }
func (ScannerStateChanged) Kind() Kind { return KindScannerState }
func (ScannerTuned) Kind() Kind        { return KindScannerTune }
func (Activity) Kind() Kind            { return KindActivity }
