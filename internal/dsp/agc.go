package dsp

import (
	"fmt"
	"strings"
)

const (
	DefaultAGCTarget = 0.5

	AGCMinGain = 0.001
	AGCMaxGain = 100
)

// AGCProfile selects the AGC attack/release pair.
type AGCProfile int

const (
	AGCFast AGCProfile = iota
	AGCMedium
	AGCSlow
)

var agcProfiles = map[AGCProfile]struct {
	name            string
	attack, release float64
}{
	AGCFast:   {"fast", 0.1, 0.001},
	AGCMedium: {"medium", 0.05, 0.0002},
	AGCSlow:   {"slow", 0.02, 0.00005},
}

func (p AGCProfile) String() string {
	if v, ok := agcProfiles[p]; ok {
		return v.name
	}
	return fmt.Sprintf("AGCProfile(%d)", int(p))
}

// ParseAGCProfile parses "fast", "medium" or "slow".
func ParseAGCProfile(s string) (AGCProfile, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, v := range agcProfiles {
		if v.name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown AGC profile %q", s)
}

func (p *AGCProfile) UnmarshalText(text []byte) error {
	parsed, err := ParseAGCProfile(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p AGCProfile) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// AGC is a peak-tracking automatic gain control. The tracked peak rises with the
// attack coefficient and decays with the release coefficient; the applied gain is
// target/peak clamped to [AGCMinGain, AGCMaxGain].
type AGC struct {
	target  float64
	profile AGCProfile
	attack  float64
	release float64
	peak    float64
	gain    float64
}

func NewAGC(profile AGCProfile, target float64) *AGC {
	a := AGC{target: target}
	a.SetProfile(profile)
	a.Reset()
	return &a
}

func (a *AGC) SetProfile(profile AGCProfile) {
	v, ok := agcProfiles[profile]
	if !ok {
		profile, v = AGCMedium, agcProfiles[AGCMedium]
	}
	a.profile = profile
	a.attack = v.attack
	a.release = v.release
}

func (a *AGC) Profile() AGCProfile {
	return a.profile
}

// Gain returns the gain applied to the last sample
func (a *AGC) Gain() float64 {
	return a.gain
}

func (a *AGC) Reset() {
	a.peak = a.target
	a.gain = 1
}

// Process scales samples in place.
func (a *AGC) Process(samples []float32) {
	for i, s := range samples {
		level := float64(s)
		if level < 0 {
			level = -level
		}

		if level > a.peak {
			a.peak += a.attack * (level - a.peak)
		} else {
			a.peak += a.release * (level - a.peak)
		}

		gain := float64(AGCMaxGain)
		if a.peak > 0 {
			gain = min(max(a.target/a.peak, AGCMinGain), AGCMaxGain)
		}
		a.gain = gain
		samples[i] = float32(float64(s) * gain)
	}
}
