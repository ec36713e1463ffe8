package capture

import (
	"os"

	"github.com/roman-kulish/radio-scanner/internal/sdr/driver"
	"hz.tools/rf"
)

const Driver = "capture"

// Config plays back an rfcap recording as if it were a live front-end.
type Config struct {
	Path string `yaml:"path" json:"path"`

	// CenterFrequency the recording was made at, e.g. "146.52MHz". Samples carry it
	// as their tuned frequency until Tune is called.
	CenterFrequency string `yaml:"centerFrequency" json:"centerFrequency"`

	// Loop rewinds to the start at end of file instead of reporting the stream finished.
	Loop bool `yaml:"loop" json:"loop"`

	// Realtime paces reads to the recorded sample rate.
	Realtime bool `yaml:"realtime" json:"realtime"`
}

func (c *Config) Validate() error {
	if c.Path == "" {
		return driver.NewConfigError(Driver, "path is required")
	}
	if _, err := os.Stat(c.Path); err != nil {
		return driver.NewConfigError(Driver, "capture file: %s", err)
	}
	if c.CenterFrequency != "" {
		if _, err := rf.ParseHz(c.CenterFrequency); err != nil {
			return driver.NewConfigError(Driver, "invalid center frequency %q: %s", c.CenterFrequency, err)
		}
	}
	return nil
}

func (c *Config) centerFrequency() float64 {
	if c.CenterFrequency == "" {
		return 0
	}
	hz, _ := rf.ParseHz(c.CenterFrequency)
	return float64(hz)
}
