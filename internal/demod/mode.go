package demod

import (
	"fmt"
	"strings"
)

// Mode is a demodulation mode.
type Mode int

const (
	AM Mode = iota
	FM
	WFM
	LSB
	USB
	CW
	RAW
)

// Modes lists every mode in display order.
var Modes = []Mode{AM, FM, WFM, LSB, USB, CW, RAW}

var modeNames = [...]string{
	AM:  "AM",
	FM:  "FM",
	WFM: "WFM",
	LSB: "LSB",
	USB: "USB",
	CW:  "CW",
	RAW: "RAW",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode parses a mode name, case-insensitively. "NFM" is accepted for FM.
func ParseMode(s string) (Mode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "NFM" {
		return FM, nil
	}
	for m, name := range modeNames {
		if name == s {
			return Mode(m), nil
		}
	}
	return 0, fmt.Errorf("unknown demodulation mode %q", s)
}

// Bandwidth returns the nominal channel bandwidth in Hz, 0 for RAW.
func (m Mode) Bandwidth() float64 {
	switch m {
	case AM:
		return 10_000
	case FM:
		return 12_500
	case WFM:
		return 200_000
	case LSB, USB:
		return 3_000
	case CW:
		return 500
	default:
		return 0
	}
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
