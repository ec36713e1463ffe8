package spectrum

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// Window selects the FFT window function.
type Window int

const (
	Rectangular Window = iota
	Hamming
	Hanning
	BlackmanHarris
	FlatTop
)

var windowNames = map[Window]string{
	Rectangular:    "rectangular",
	Hamming:        "hamming",
	Hanning:        "hanning",
	BlackmanHarris: "blackman-harris",
	FlatTop:        "flat-top",
}

func (w Window) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("Window(%d)", int(w))
}

// ParseWindow parses a window name as printed by String.
func ParseWindow(s string) (Window, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for w, name := range windowNames {
		if name == s {
			return w, nil
		}
	}
	return 0, fmt.Errorf("unknown window function %q", s)
}

func (w *Window) UnmarshalText(text []byte) error {
	parsed, err := ParseWindow(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

func (w Window) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// coefficients synthesises n window coefficients.
func (w Window) coefficients(n int) []float64 {
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = 1
	}

	switch w {
	case Hamming:
		return window.Hamming(seq)
	case Hanning:
		return window.Hann(seq)
	case BlackmanHarris:
		return window.BlackmanHarris(seq)
	case FlatTop:
		return window.FlatTop(seq)
	default:
		return window.Rectangular(seq)
	}
}
