package demod

import (
	"math"
	"testing"
)

func carrier(n int, offset, sampleRate, amplitude float64) []complex64 {
	samples := make([]complex64, n)
	for i := range samples {
		s, c := math.Sincos(2 * math.Pi * offset * float64(i) / sampleRate)
		samples[i] = complex(float32(amplitude*c), float32(amplitude*s))
	}
	return samples
}

func TestDemodulators_SameLength(t *testing.T) {
	r := NewRegistry()
	in := carrier(1000, 1000, 48_000, 0.5)

	for _, mode := range Modes {
		d, err := r.Select(mode)
		if err != nil {
			t.Fatalf("Select(%s): %v", mode, err)
		}
		if d == nil {
			if mode != RAW {
				t.Errorf("Select(%s) returned nil", mode)
			}
			continue
		}
		if got := len(d.Demodulate(in, 48_000)); got != len(in) {
			t.Errorf("%s: expected %d samples, got %d", mode, len(in), got)
		}
	}
}

func TestFM_ConstantOffset(t *testing.T) {
	const (
		sampleRate = 240_000
		offset     = 3_000
	)
	want := 2 * offset / float64(sampleRate)

	for _, amplitude := range []float64{0.01, 0.5, 1} {
		d := NewFMDemodulator()
		out := d.Demodulate(carrier(24_000, offset, sampleRate, amplitude), sampleRate)

		// de-emphasis has settled after 100 ms
		got := float64(out[len(out)-1])
		if math.Abs(got-want) > 1e-4 {
			t.Errorf("amplitude %v: expected %v, got %v", amplitude, want, got)
		}
	}
}

func TestFM_PhaseWrap(t *testing.T) {
	d := &FMDemodulator{}

	// negative offset crosses the -π boundary every few samples
	out := d.Demodulate(carrier(64, -20_000, 48_000, 1), 48_000)
	want := -2 * 20_000 / 48_000.0
	for i, v := range out[1:] {
		if math.Abs(float64(v)-want) > 1e-4 {
			t.Fatalf("sample %d: expected %v, got %v", i+1, want, v)
		}
	}
}

func TestAM_CarrierRemoved(t *testing.T) {
	d := &AMDemodulator{}
	out := d.Demodulate(carrier(20_000, 0, 48_000, 0.8), 48_000)

	if got := math.Abs(float64(out[len(out)-1])); got > 1e-3 {
		t.Errorf("Expected an unmodulated carrier to settle near 0, got %v", got)
	}
}

func TestAM_Envelope(t *testing.T) {
	const sampleRate = 48_000
	samples := make([]complex64, 48_000)
	for i := range samples {
		env := 0.5 + 0.25*math.Sin(2*math.Pi*1000*float64(i)/sampleRate)
		samples[i] = complex(float32(env), 0)
	}

	d := &AMDemodulator{}
	out := d.Demodulate(samples, sampleRate)

	var peak float64
	for _, v := range out[len(out)-480:] {
		peak = max(peak, math.Abs(float64(v)))
	}
	if math.Abs(peak-0.25) > 0.01 {
		t.Errorf("Expected modulation peak near 0.25, got %v", peak)
	}
}

func TestCW_Beat(t *testing.T) {
	d := NewCWDemodulator()

	// a bare carrier at DC comes out as the BFO tone: I·cos φ
	out := d.Demodulate(carrier(48, 0, 48_000, 1), 48_000)
	for i, v := range out {
		want := math.Cos(2 * math.Pi * 700 * float64(i) / 48_000)
		if math.Abs(float64(v)-want) > 1e-5 {
			t.Fatalf("sample %d: expected %v, got %v", i, want, v)
		}
	}
}

func TestSSB_RealPart(t *testing.T) {
	in := []complex64{complex(0.1, 0.9), complex(-0.4, 0.2)}
	for _, d := range []*SSBDemodulator{{}, {Upper: true}} {
		out := d.Demodulate(in, 48_000)
		if out[0] != 0.1 || out[1] != -0.4 {
			t.Errorf("Upper=%v: unexpected output %v", d.Upper, out)
		}
	}
}

func TestDemodulators_DeterministicAfterReset(t *testing.T) {
	r := NewRegistry()
	in := carrier(4096, 1234, 48_000, 0.7)
	warmup := carrier(1000, -5000, 48_000, 0.3)

	for _, mode := range Modes {
		if mode == RAW {
			continue
		}
		t.Run(mode.String(), func(t *testing.T) {
			d, err := r.Select(mode)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			first := d.Demodulate(in, 48_000)

			d.Demodulate(warmup, 48_000)
			d, _ = r.Select(mode) // resets

			second := d.Demodulate(in, 48_000)
			for i := range first {
				if first[i] != second[i] {
					t.Fatalf("sample %d differs after reset: %v != %v", i, first[i], second[i])
				}
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"am", AM, false},
		{"FM", FM, false},
		{"nfm", FM, false},
		{" wfm ", WFM, false},
		{"lsb", LSB, false},
		{"USB", USB, false},
		{"cw", CW, false},
		{"raw", RAW, false},
		{"dsb", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, m := range Modes {
		if got, _ := ParseMode(m.String()); got != m {
			t.Errorf("round trip of %s gave %s", m, got)
		}
	}
}

func TestMode_Bandwidth(t *testing.T) {
	if WFM.Bandwidth() <= FM.Bandwidth() {
		t.Error("WFM must be wider than FM")
	}
	if RAW.Bandwidth() != 0 {
		t.Error("RAW has no channel bandwidth")
	}
}
