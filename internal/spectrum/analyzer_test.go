package spectrum

import (
	"math"
	"testing"
)

func tone(n int, offset, sampleRate, amplitude float64) []complex64 {
	samples := make([]complex64, n)
	for i := range samples {
		s, c := math.Sincos(2 * math.Pi * offset * float64(i) / sampleRate)
		samples[i] = complex(float32(amplitude*c), float32(amplitude*s))
	}
	return samples
}

func TestAnalyzer_TonePosition(t *testing.T) {
	const (
		center     = 146_000_000
		sampleRate = 2_400_000
		offset     = 50_000
	)

	for _, w := range []Window{Rectangular, Hamming, Hanning, BlackmanHarris, FlatTop} {
		t.Run(w.String(), func(t *testing.T) {
			a, err := NewAnalyzer(WithFFTSize(4096), WithWindow(w), WithAveraging(1))
			if err != nil {
				t.Fatalf("NewAnalyzer: %v", err)
			}

			d := a.Compute(tone(4096, offset, sampleRate, 0.5), center, sampleRate)
			if len(d.Bins) != 2048 {
				t.Fatalf("Expected 2048 bins, got %d", len(d.Bins))
			}

			peak := d.PeakIndex()
			if diff := math.Abs(d.FrequencyAt(peak) - (center + offset)); diff > d.BinWidth {
				t.Errorf("Peak at %.0f Hz, expected within %.0f Hz of %d", d.FrequencyAt(peak), d.BinWidth, center+offset)
			}
		})
	}
}

func TestAnalyzer_DCAtMidpoint(t *testing.T) {
	a, err := NewAnalyzer(WithFFTSize(1024), WithWindow(Rectangular), WithAveraging(1))
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}

	samples := make([]complex64, 1024)
	for i := range samples {
		samples[i] = complex(0.5, 0)
	}

	d := a.Compute(samples, 100e6, 1e6)
	if got := d.PeakIndex(); got != 256 {
		t.Errorf("Expected DC at bin 256, got %d", got)
	}
	if got := d.FrequencyAt(256); got != 100e6 {
		t.Errorf("FrequencyAt(mid) = %v, want centre", got)
	}
	if i, ok := d.BinAt(100e6); !ok || i != 256 {
		t.Errorf("BinAt(centre) = %d, %v", i, ok)
	}
	if _, ok := d.BinAt(200e6); ok {
		t.Error("BinAt outside the spectrum must fail")
	}
}

func TestAnalyzer_TooFewSamples(t *testing.T) {
	a, err := NewAnalyzer()
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}

	d := a.Compute(make([]complex64, DefaultFFTSize-1), 100e6, 2.4e6)
	if !d.Empty() {
		t.Errorf("Expected empty result, got %d bins", len(d.Bins))
	}
	if d.PeakIndex() != -1 {
		t.Error("PeakIndex of empty data must be -1")
	}
}

func TestAnalyzer_Averaging(t *testing.T) {
	a, err := NewAnalyzer(WithFFTSize(256), WithWindow(Rectangular), WithAveraging(2))
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}

	silence := make([]complex64, 256)
	loud := tone(256, 0, 1e6, 1)

	a.Compute(loud, 0, 1e6)
	d := a.Compute(silence, 0, 1e6)

	// mean of 0 dB (full scale DC) and -200 dB (floor)
	if got := d.Bins[64]; math.Abs(got-(-100)) > 1e-6 {
		t.Errorf("Expected averaged DC bin at -100 dB, got %v", got)
	}

	d = a.Compute(silence, 0, 1e6)
	if got := d.Bins[64]; math.Abs(got-(-200)) > 1e-6 {
		t.Errorf("Expected the loud frame to age out, got %v", got)
	}
}

func TestAnalyzer_SettingsResetAverage(t *testing.T) {
	tests := []struct {
		name  string
		apply func(a *Analyzer) error
	}{
		{"window", func(a *Analyzer) error { a.SetWindow(Hamming); return nil }},
		{"averaging", func(a *Analyzer) error { return a.SetAveraging(8) }},
		{"fft size", func(a *Analyzer) error { return a.SetFFTSize(256) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAnalyzer(WithFFTSize(256), WithAveraging(4), WithDisplayOffset(10))
			if err != nil {
				t.Fatalf("NewAnalyzer: %v", err)
			}

			loud := tone(256, 0, 1e6, 1)
			for i := 0; i < 4; i++ {
				a.Compute(loud, 0, 1e6)
			}

			if err := tt.apply(a); err != nil {
				t.Fatalf("apply: %v", err)
			}

			d := a.Compute(make([]complex64, 256), 0, 1e6)
			for i, v := range d.Bins {
				if math.Abs(v-(-190)) > 1e-9 {
					t.Fatalf("bin %d: stale frames blended, got %v", i, v)
				}
			}
		})
	}
}

func TestAnalyzer_InvalidSettings(t *testing.T) {
	if _, err := NewAnalyzer(WithFFTSize(1000)); err == nil {
		t.Error("Expected error for non power of two FFT size")
	}
	if _, err := NewAnalyzer(WithAveraging(0)); err == nil {
		t.Error("Expected error for zero averaging")
	}

	a, _ := NewAnalyzer()
	if err := a.SetFFTSize(3); err == nil {
		t.Error("Expected error for FFT size 3")
	}
	if a.FFTSize() != DefaultFFTSize {
		t.Error("Rejected FFT size must not be applied")
	}
}

func TestData_PeakNear(t *testing.T) {
	d := Data{Bins: make([]float64, 100)}
	for i := range d.Bins {
		d.Bins[i] = -120
	}
	d.Bins[55] = -40
	d.Bins[80] = -10

	if got := d.PeakNear(10); got != -40 {
		t.Errorf("PeakNear(10) = %v, want -40", got)
	}
	if got := d.PeakNear(2); got != -120 {
		t.Errorf("PeakNear(2) = %v, want -120", got)
	}
}

func TestParseWindow(t *testing.T) {
	for w, name := range windowNames {
		got, err := ParseWindow(name)
		if err != nil || got != w {
			t.Errorf("ParseWindow(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseWindow("kaiser"); err == nil {
		t.Error("Expected error for unsupported window")
	}
}
