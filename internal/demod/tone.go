package demod

import "math"

// CTCSSTones are the standard sub-audible squelch tones in Hz.
var CTCSSTones = []float64{
	67.0, 69.3, 71.9, 74.4, 77.0, 79.7, 82.5, 85.4, 88.5, 91.5,
	94.8, 97.4, 100.0, 103.5, 107.2, 110.9, 114.8, 118.8, 123.0, 127.3,
	131.8, 136.5, 141.3, 146.2, 151.4, 156.7, 159.8, 162.2, 165.5, 167.9,
	171.3, 173.8, 177.3, 179.9, 183.5, 186.2, 189.9, 192.8, 196.6, 199.5,
	203.5, 206.5, 210.7, 218.1, 225.7, 229.1, 233.6, 241.8, 250.3, 254.1,
}

// DefaultToneThreshold is the share of block energy the tone must hold to count as present.
const DefaultToneThreshold = 0.1

// ToneDetector measures one audio frequency with the Goertzel algorithm.
type ToneDetector struct {
	frequency  float64
	sampleRate float64
	threshold  float64
	coeff      float64
}

// NewToneDetector creates a detector for toneHz in audio sampled at sampleRate
func NewToneDetector(toneHz, sampleRate float64) *ToneDetector {
	return &ToneDetector{
		frequency:  toneHz,
		sampleRate: sampleRate,
		threshold:  DefaultToneThreshold,
		coeff:      2 * math.Cos(2*math.Pi*toneHz/sampleRate),
	}
}

// Frequency returns the tone frequency in Hz
func (d *ToneDetector) Frequency() float64 {
	return d.frequency
}

// SetThreshold sets the detection threshold in (0, 1]
func (d *ToneDetector) SetThreshold(ratio float64) {
	d.threshold = ratio
}

// Ratio returns the fraction of the block's energy found at the tone, about 1
// for a pure tone and near 0 when absent.
func (d *ToneDetector) Ratio(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var s1, s2, energy float64
	for _, x := range samples {
		v := float64(x)
		s0 := v + d.coeff*s1 - s2
		s2 = s1
		s1 = s0
		energy += v * v
	}
	if energy == 0 {
		return 0
	}

	power := s1*s1 + s2*s2 - d.coeff*s1*s2
	return power / (float64(len(samples)) * energy / 2)
}

// Detect reports whether the tone is present in the block.
func (d *ToneDetector) Detect(samples []float32) bool {
	return d.Ratio(samples) >= d.threshold
}

// NearestCTCSS returns the standard tone closest to hz.
func NearestCTCSS(hz float64) float64 {
	best := CTCSSTones[0]
	for _, tone := range CTCSSTones[1:] {
		if math.Abs(tone-hz) < math.Abs(best-hz) {
			best = tone
		}
	}
	return best
}
