package demod

import (
	"math"
	"testing"
)

func audioTone(n int, hz, sampleRate, amplitude float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*hz*float64(i)/sampleRate))
	}
	return out
}

func TestToneDetector(t *testing.T) {
	const sampleRate = 48_000
	d := NewToneDetector(100.0, sampleRate)

	if r := d.Ratio(audioTone(4800, 100.0, sampleRate, 0.2)); math.Abs(r-1) > 0.05 {
		t.Errorf("Expected ratio near 1 for the tone itself, got %v", r)
	}
	if !d.Detect(audioTone(4800, 100.0, sampleRate, 0.2)) {
		t.Error("Expected tone to be detected")
	}
	if d.Detect(audioTone(4800, 1000, sampleRate, 0.2)) {
		t.Error("Expected a 1 kHz tone to be rejected")
	}
	if d.Detect(make([]float32, 4800)) {
		t.Error("Expected silence to be rejected")
	}

	// voice-like content with the tone mixed in at a lower level
	mixed := audioTone(4800, 100.0, sampleRate, 0.1)
	voice := audioTone(4800, 800, sampleRate, 0.2)
	for i := range mixed {
		mixed[i] += voice[i]
	}
	if !d.Detect(mixed) {
		t.Errorf("Expected tone under voice to be detected, ratio %v", d.Ratio(mixed))
	}
}

func TestNearestCTCSS(t *testing.T) {
	if got := NearestCTCSS(88.4); got != 88.5 {
		t.Errorf("NearestCTCSS(88.4) = %v", got)
	}
	if got := NearestCTCSS(10); got != 67.0 {
		t.Errorf("NearestCTCSS(10) = %v", got)
	}
}
