package spectrum

import (
	"fmt"
	"math"
	"math/bits"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultFFTSize   = 4096
	DefaultAveraging = 4

	// floor for |X|² before taking the logarithm, maps silence to -200 dB
	powerEpsilon = 1e-20
)

// WithFFTSize sets the transform length, it must be a power of two
func WithFFTSize(n int) func(*Analyzer) {
	return func(a *Analyzer) {
		a.fftSize = n
	}
}

// WithWindow sets the window function
func WithWindow(w Window) func(*Analyzer) {
	return func(a *Analyzer) {
		a.window = w
	}
}

// WithAveraging sets the number of frames in the moving average, 1 disables averaging
func WithAveraging(frames int) func(*Analyzer) {
	return func(a *Analyzer) {
		a.averaging = frames
	}
}

// WithDisplayOffset adds a fixed dB offset to every bin
func WithDisplayOffset(db float64) func(*Analyzer) {
	return func(a *Analyzer) {
		a.offset = db
	}
}

// Analyzer computes averaged display spectra. It is safe for concurrent use; settings
// changes take effect on the next Compute.
type Analyzer struct {
	mu sync.Mutex

	fftSize   int
	window    Window
	averaging int
	offset    float64

	fft    *fourier.CmplxFFT
	coeffs []float64
	in     []complex128
	out    []complex128

	// boxcar average over the last `averaging` frames
	ring   [][]float64
	sum    []float64
	next   int
	filled int
}

// NewAnalyzer creates a spectrum analyzer
func NewAnalyzer(options ...func(*Analyzer)) (*Analyzer, error) {
	a := Analyzer{
		fftSize:   DefaultFFTSize,
		window:    Hanning,
		averaging: DefaultAveraging,
	}

	for _, option := range options {
		option(&a)
	}

	if err := validateFFTSize(a.fftSize); err != nil {
		return nil, err
	}
	if a.averaging < 1 {
		return nil, fmt.Errorf("averaging must be at least 1 frame: %d given", a.averaging)
	}

	a.rebuild()
	return &a, nil
}

func validateFFTSize(n int) error {
	if n < 4 || bits.OnesCount(uint(n)) != 1 {
		return fmt.Errorf("FFT size must be a power of two and at least 4: %d given", n)
	}
	return nil
}

// rebuild re-synthesises the window and FFT plan and drops the averaging history.
// Must be called with mu held.
func (a *Analyzer) rebuild() {
	if a.fft == nil || a.fft.Len() != a.fftSize {
		a.fft = fourier.NewCmplxFFT(a.fftSize)
		a.in = make([]complex128, a.fftSize)
		a.out = make([]complex128, a.fftSize)
	}
	a.coeffs = a.window.coefficients(a.fftSize)
	a.resetAverage()
}

func (a *Analyzer) resetAverage() {
	a.ring = make([][]float64, a.averaging)
	for i := range a.ring {
		a.ring[i] = make([]float64, a.fftSize)
	}
	a.sum = make([]float64, a.fftSize)
	a.next = 0
	a.filled = 0
}

// FFTSize returns the current transform length
func (a *Analyzer) FFTSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fftSize
}

// SetFFTSize changes the transform length and resets averaging.
func (a *Analyzer) SetFFTSize(n int) error {
	if err := validateFFTSize(n); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fftSize = n
	a.rebuild()
	return nil
}

// SetWindow changes the window function and resets averaging.
func (a *Analyzer) SetWindow(w Window) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = w
	a.rebuild()
}

// SetAveraging changes the averaging depth and resets averaging.
func (a *Analyzer) SetAveraging(frames int) error {
	if frames < 1 {
		return fmt.Errorf("averaging must be at least 1 frame: %d given", frames)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.averaging = frames
	a.resetAverage()
	return nil
}

// Reset drops the averaging history, e.g. after a retune.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetAverage()
}

// Compute transforms the most recent fftSize samples. It returns the empty Data when
// fewer samples than the FFT size are given.
func (a *Analyzer) Compute(samples []complex64, centerFrequency, sampleRate float64) Data {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.fftSize
	if len(samples) < n {
		return Data{}
	}
	samples = samples[len(samples)-n:]

	for i, s := range samples {
		w := a.coeffs[i]
		a.in[i] = complex(float64(real(s))*w, float64(imag(s))*w)
	}
	a.fft.Coefficients(a.out, a.in)

	frame := a.ring[a.next]
	norm := float64(n) * float64(n)
	for i, x := range a.out {
		power := (real(x)*real(x) + imag(x)*imag(x)) / norm
		db := 10*math.Log10(max(power, powerEpsilon)) + a.offset

		if a.filled == a.averaging {
			a.sum[i] -= frame[i]
		}
		frame[i] = db
		a.sum[i] += db
	}

	a.next = (a.next + 1) % a.averaging
	if a.filled < a.averaging {
		a.filled++
	}

	// FFT shift: negative frequencies first, DC at n/2. Pairs of shifted bins are then
	// reduced to their peak, leaving n/2 display bins with DC at n/4.
	bins := make([]float64, n/2)
	div := float64(a.filled)
	half := n / 2
	for k := range bins {
		j0 := (2*k + half) % n
		j1 := (2*k + 1 + half) % n
		bins[k] = max(a.sum[j0], a.sum[j1]) / div
	}

	return Data{
		Bins:            bins,
		FFTSize:         n,
		CenterFrequency: centerFrequency,
		SampleRate:      sampleRate,
		BinWidth:        2 * sampleRate / float64(n),
		Timestamp:       time.Now(),
	}
}
