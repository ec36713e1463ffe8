// Package spectrum turns blocks of complex baseband samples into averaged display
// spectra in dB, centred on the tuned frequency.
package spectrum

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Data is one display spectrum. Bins hold fftSize/2 values in dB ordered from the
// lowest to the highest frequency; the tuned frequency sits at the middle index.
type Data struct {
	Bins            []float64 `json:"bins"`
	FFTSize         int       `json:"fftSize"`
	CenterFrequency float64   `json:"centerFrequency"`
	SampleRate      float64   `json:"sampleRate"`
	BinWidth        float64   `json:"binWidth"` // Hz per display bin
	Timestamp       time.Time `json:"timestamp"`
}

// Empty reports whether d is the explicit empty result.
func (d Data) Empty() bool {
	return len(d.Bins) == 0
}

// FrequencyAt returns the frequency in Hz represented by display bin i.
func (d Data) FrequencyAt(i int) float64 {
	return d.CenterFrequency + float64(i-len(d.Bins)/2)*d.BinWidth
}

// BinAt returns the display bin covering hz. ok is false when hz is outside the spectrum.
func (d Data) BinAt(hz float64) (i int, ok bool) {
	if d.Empty() || d.BinWidth <= 0 {
		return 0, false
	}

	i = int(math.Round((hz-d.CenterFrequency)/d.BinWidth)) + len(d.Bins)/2
	if i < 0 || i >= len(d.Bins) {
		return 0, false
	}
	return i, true
}

// PeakIndex returns the index of the strongest bin, or -1 for an empty spectrum.
func (d Data) PeakIndex() int {
	if d.Empty() {
		return -1
	}
	return floats.MaxIdx(d.Bins)
}

// PeakNear returns the strongest level within radius bins either side of the centre bin.
func (d Data) PeakNear(radius int) float64 {
	if d.Empty() {
		return math.Inf(-1)
	}

	mid := len(d.Bins) / 2
	lo := max(mid-radius, 0)
	hi := min(mid+radius+1, len(d.Bins))
	return floats.Max(d.Bins[lo:hi])
}
