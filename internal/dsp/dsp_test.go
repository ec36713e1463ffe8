package dsp

import (
	"math"
	"testing"
)

func sine(n int, hz, sampleRate, amplitude float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*hz*float64(i)/sampleRate))
	}
	return out
}

func peak(samples []float32) float64 {
	var p float64
	for _, s := range samples {
		p = max(p, math.Abs(float64(s)))
	}
	return p
}

func TestBiquad_LowPass(t *testing.T) {
	f := NewLowPass(1_000, 48_000, butterworth4[0])

	var y float64
	for i := 0; i < 2_000; i++ {
		y = f.Process(1)
	}
	if math.Abs(y-1) > 1e-6 {
		t.Errorf("Expected unity DC gain, got %v", y)
	}

	f.Reset()
	var p float64
	for i, s := range sine(4_800, 10_000, 48_000, 1) {
		v := f.Process(float64(s))
		if i > 2_400 {
			p = max(p, math.Abs(v))
		}
	}
	if p > 0.1 {
		t.Errorf("Expected 10 kHz to be attenuated by a 1 kHz low-pass, peak %v", p)
	}
}

func TestResampler_Ratio(t *testing.T) {
	tests := []struct {
		name    string
		in, out float64
		samples int
		want    int
	}{
		{"integer", 2_400_000, 48_000, 65_536, 1_310},
		{"fractional", 2_048_000, 48_000, 204_800, 4_800},
		{"half", 96_000, 48_000, 1_000, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResampler(tt.in, tt.out)
			got := len(r.Process(make([]float32, tt.samples)))
			if math.Abs(float64(got-tt.want)) > 2 {
				t.Errorf("Expected about %d samples, got %d", tt.want, got)
			}
		})
	}
}

func TestResampler_Passband(t *testing.T) {
	const in = 240_000
	r := NewResampler(in, 48_000)

	pass := r.Process(sine(48_000, 1_000, in, 0.5))
	if p := peak(pass[len(pass)/2:]); math.Abs(p-0.5) > 0.02 {
		t.Errorf("Expected 1 kHz to pass at 0.5, got %v", p)
	}

	r.Reset()
	stop := r.Process(sine(48_000, 60_000, in, 0.5))
	if p := peak(stop[len(stop)/2:]); p > 0.01 {
		t.Errorf("Expected 60 kHz to be rejected before decimation, got %v", p)
	}
}

func TestResampler_Passthrough(t *testing.T) {
	r := NewResampler(48_000, 48_000)
	in := sine(100, 1000, 48_000, 1)
	if out := r.Process(in); len(out) != len(in) || out[10] != in[10] {
		t.Error("Expected samples to pass unchanged when no downsampling is needed")
	}
}

func TestAGC_GainBounds(t *testing.T) {
	a := NewAGC(AGCFast, DefaultAGCTarget)

	a.Process(make([]float32, 100_000))
	if a.Gain() != AGCMaxGain {
		t.Errorf("Expected gain clamped to %v on silence, got %v", float64(AGCMaxGain), a.Gain())
	}

	a.Reset()
	loud := make([]float32, 10_000)
	for i := range loud {
		loud[i] = 1e4
	}
	a.Process(loud)
	if a.Gain() != AGCMinGain {
		t.Errorf("Expected gain clamped to %v on a huge signal, got %v", AGCMinGain, a.Gain())
	}
}

func TestAGC_Converges(t *testing.T) {
	for _, profile := range []AGCProfile{AGCFast, AGCMedium, AGCSlow} {
		t.Run(profile.String(), func(t *testing.T) {
			a := NewAGC(profile, DefaultAGCTarget)

			var out []float32
			for i := 0; i < 40; i++ {
				out = sine(48_000, 1_000, 48_000, 0.05)
				a.Process(out)
			}

			p := peak(out[len(out)-4_800:])
			if p < 0.8*DefaultAGCTarget || p > 1.2*DefaultAGCTarget {
				t.Errorf("Expected output peak near %v, got %v", DefaultAGCTarget, p)
			}
		})
	}
}

func TestAGC_Ramp(t *testing.T) {
	const (
		low  = 0.05
		high = 1.0
		ramp = 10
		hold = 40
	)

	for _, profile := range []AGCProfile{AGCFast, AGCMedium, AGCSlow} {
		t.Run(profile.String(), func(t *testing.T) {
			a := NewAGC(profile, DefaultAGCTarget)

			var amplitudes []float64
			for i := 0; i <= ramp; i++ {
				amplitudes = append(amplitudes, low*math.Pow(high/low, float64(i)/ramp))
			}
			for i := 0; i < hold; i++ {
				amplitudes = append(amplitudes, high)
			}
			for i := ramp; i >= 0; i-- {
				amplitudes = append(amplitudes, low*math.Pow(high/low, float64(i)/ramp))
			}
			for i := 0; i < hold; i++ {
				amplitudes = append(amplitudes, low)
			}

			for i, amplitude := range amplitudes {
				out := sine(48_000, 1_000, 48_000, amplitude)
				a.Process(out)

				if g := a.Gain(); math.IsNaN(g) || g < AGCMinGain || g > AGCMaxGain {
					t.Fatalf("block %d: gain %v outside [%v, %v]", i, g, AGCMinGain, float64(AGCMaxGain))
				}

				// the end of each plateau
				if i == ramp+hold || i == len(amplitudes)-1 {
					p := peak(out[len(out)-4_800:])
					if p < 0.8*DefaultAGCTarget || p > 1.2*DefaultAGCTarget {
						t.Errorf("block %d: expected output peak near %v at amplitude %v, got %v",
							i, DefaultAGCTarget, amplitude, p)
					}
				}
			}

			if g := a.Gain(); g < 0.5*DefaultAGCTarget/low || g > 2*DefaultAGCTarget/low {
				t.Errorf("Expected gain near %v after the ramp down, got %v", DefaultAGCTarget/low, g)
			}
		})
	}
}

func TestParseAGCProfile(t *testing.T) {
	for _, name := range []string{"fast", "Medium", " slow "} {
		if _, err := ParseAGCProfile(name); err != nil {
			t.Errorf("ParseAGCProfile(%q): %v", name, err)
		}
	}
	if _, err := ParseAGCProfile("turbo"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}
