package scanner

import (
	"fmt"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
)

// Kind is the discriminant of State.
type Kind int

const (
	KindIdle Kind = iota
	KindScanning
	KindHolding
	KindPaused
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindScanning:
		return "scanning"
	case KindHolding:
		return "holding"
	case KindPaused:
		return "paused"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// State is the scanner state. Only Holding carries a frequency; build values with
// the constructors below.
type State struct {
	kind      Kind
	frequency float64
}

func Idle() State     { return State{kind: KindIdle} }
func Scanning() State { return State{kind: KindScanning} }
func Paused() State   { return State{kind: KindPaused} }

func Holding(hz float64) State {
	return State{kind: KindHolding, frequency: hz}
}

func (s State) Kind() Kind {
	return s.kind
}

// HoldFrequency returns the held frequency; ok is false in every other state.
func (s State) HoldFrequency() (hz float64, ok bool) {
	if s.kind != KindHolding {
		return 0, false
	}
	return s.frequency, true
}

// Active reports whether a scan loop is running.
func (s State) Active() bool {
	switch s.kind {
	case KindScanning, KindHolding, KindPaused:
		return true
	case KindIdle:
		return false
	default:
		panic(fmt.Sprintf("scanner: unknown state %d", s.kind))
	}
}

func (s State) String() string {
	switch s.kind {
	case KindHolding:
		return fmt.Sprintf("holding(%s)", sdr.FormatFrequency(s.frequency))
	case KindIdle, KindScanning, KindPaused:
		return s.kind.String()
	default:
		panic(fmt.Sprintf("scanner: unknown state %d", s.kind))
	}
}
