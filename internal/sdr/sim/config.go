package sim

import (
	"github.com/roman-kulish/radio-scanner/internal/sdr/driver"
)

const (
	Driver = "sim"

	DefaultSampleRate = 2_400_000
	FrequencyMin      = 24_000_000
	FrequencyMax      = 1_766_000_000
)

// Transmitter is a synthetic emitter at an absolute frequency.
type Transmitter struct {
	Frequency float64 `yaml:"frequency" json:"frequency"` // Hz
	Amplitude float64 `yaml:"amplitude" json:"amplitude"` // linear, 1.0 is full scale
	ToneHz    float64 `yaml:"toneHz" json:"toneHz"`       // FM modulating tone, 0 for a bare carrier
	Deviation float64 `yaml:"deviation" json:"deviation"` // FM deviation in Hz

	// Keying: the transmitter is on for Period*DutyCycle out of every Period.
	// A zero Period means always on.
	Period    driver.TimeDuration `yaml:"period" json:"period"`
	DutyCycle float64             `yaml:"dutyCycle" json:"dutyCycle"`
}

// Config configures the synthetic front-end
type Config struct {
	NoiseLevel    float64       `yaml:"noiseLevel" json:"noiseLevel"` // RMS of complex gaussian noise
	Realtime      bool          `yaml:"realtime" json:"realtime"`     // pace reads to the sample clock
	Seed          uint64        `yaml:"seed" json:"seed"`
	OverflowEvery int           `yaml:"overflowEvery" json:"overflowEvery"` // flag every Nth read as overflowed, 0 disables
	Transmitters  []Transmitter `yaml:"transmitters" json:"transmitters"`
}

func (c *Config) Validate() error {
	if c.NoiseLevel < 0 {
		return driver.NewConfigError(Driver, "noise level must not be negative: %f", c.NoiseLevel)
	}
	if c.OverflowEvery < 0 {
		return driver.NewConfigError(Driver, "overflowEvery must not be negative: %d", c.OverflowEvery)
	}
	for i, tx := range c.Transmitters {
		if tx.Frequency < FrequencyMin || tx.Frequency > FrequencyMax {
			return driver.NewConfigError(Driver, "transmitter %d: frequency %.0f out of range", i, tx.Frequency)
		}
		if tx.Amplitude < 0 {
			return driver.NewConfigError(Driver, "transmitter %d: amplitude must not be negative", i)
		}
		if tx.Period < 0 || tx.DutyCycle < 0 || tx.DutyCycle > 1 {
			return driver.NewConfigError(Driver, "transmitter %d: invalid keying", i)
		}
	}
	return nil
}
