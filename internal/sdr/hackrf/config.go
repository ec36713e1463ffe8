package hackrf

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Driver = "hackrf"

	MaxLNAGain  = 40
	MaxVGAGain  = 62
	LNAGainStep = 8
	VGAGainStep = 2

	DefaultLNAGain = 16
	DefaultVGAGain = 20

	FrequencyMin     = 1_000_000
	FrequencyMax     = 6_000_000_000
	SampleRateMin    = 2_000_000
	SampleRateMax    = 20_000_000
	BasebandFilterLo = 1_750_000
	BasebandFilterHi = 28_000_000
)

// Usage examples from man page:
// https://manpages.debian.org/bookworm/hackrf/hackrf_transfer.1.en.html

/*
	hackrfConfig := hackrf.Config{
        LNAGain:   ptr(16),
        VGAGain:   ptr(20),
        EnableAmp: true,
    }
    // After Tune(446_006_250) and SetSampleRate(2_400_000) executes:
    // hackrf_transfer -r - -f 446006250 -s 2400000 -l 16 -g 20 -a 1
*/

// Config is a struct for configuring the `hackrf_transfer` tool
type Config struct {
	SerialNumber string `yaml:"serialNumber" json:"serialNumber"` // -d serial_number Serial number of desired HackRF

	LNAGain *int `yaml:"lnaGain" json:"lnaGain"` // -l gain_db LNA (IF) gain, 0-40dB, 8dB steps
	VGAGain *int `yaml:"vgaGain" json:"vgaGain"` // -g gain_db VGA (baseband) gain, 0-62dB, 2dB steps

	EnableAmp    bool `yaml:"enableAmp" json:"enableAmp"`       // -a amp_enable RX RF amplifier 1=Enable, 0=Disable
	AntennaPower bool `yaml:"antennaPower" json:"antennaPower"` // -p antenna_enable Antenna port power, 1=Enable, 0=Disable
}

func (c *Config) Validate() error {
	// LNA gain validation (0-40dB in 8dB steps)
	if c.LNAGain != nil {
		if err := validateLNAGain(*c.LNAGain); err != nil {
			return err
		}
	}

	// VGA gain validation (0-62dB in 2dB steps)
	if c.VGAGain != nil {
		if err := validateVGAGain(*c.VGAGain); err != nil {
			return err
		}
	}

	return nil
}

func validateLNAGain(gain int) error {
	if gain < 0 || gain > MaxLNAGain {
		return fmt.Errorf("hackrf.Config: LNA gain must be between 0 and 40 dB: %d given", gain)
	}
	if gain%LNAGainStep != 0 {
		return fmt.Errorf("hackrf.Config: LNA gain must be a multiple of 8 dB: %d given", gain)
	}
	return nil
}

func validateVGAGain(gain int) error {
	if gain < 0 || gain > MaxVGAGain {
		return fmt.Errorf("hackrf.Config: VGA gain must be between 0 and 62 dB: %d given", gain)
	}
	if gain%VGAGainStep != 0 {
		return fmt.Errorf("hackrf.Config: VGA gain must be a multiple of 2 dB: %d given", gain)
	}
	return nil
}

// settings are the live tuning parameters, a change restarts the transfer
type settings struct {
	frequency  float64
	sampleRate float64
	bandwidth  float64
	lnaGain    int
	vgaGain    int
	ppm        float64
}

func (c *Config) defaults() settings {
	s := settings{
		frequency:  100_000_000,
		sampleRate: 8_000_000,
		lnaGain:    DefaultLNAGain,
		vgaGain:    DefaultVGAGain,
	}
	if c.LNAGain != nil {
		s.lnaGain = *c.LNAGain
	}
	if c.VGAGain != nil {
		s.vgaGain = *c.VGAGain
	}
	return s
}

// splitGain distributes a total gain over the LNA and VGA stages, filling the LNA first
// up to half the total so the VGA is not driven hard at low settings.
func splitGain(db float64) (lna, vga int) {
	lna = int(db/2) / LNAGainStep * LNAGainStep
	lna = min(max(lna, 0), MaxLNAGain)

	vga = int(db-float64(lna)) / VGAGainStep * VGAGainStep
	vga = min(max(vga, 0), MaxVGAGain)
	return lna, vga
}

// args builds the command line arguments for `hackrf_transfer`
// See `man hackrf_transfer` for more information:
// https://manpages.debian.org/bookworm/hackrf/hackrf_transfer.1.en.html
func (c *Config) args(s settings) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	args := []string{
		"-r", "-", // Always dump to stdout
		"-f", strconv.FormatInt(int64(s.frequency), 10),
		"-s", strconv.FormatInt(int64(s.sampleRate), 10),
	}

	if c.SerialNumber != "" {
		args = append(args, "-d", c.SerialNumber)
	}

	if s.bandwidth > 0 {
		args = append(args, "-b", strconv.FormatInt(int64(s.bandwidth), 10))
	}

	args = append(args, "-l", strconv.Itoa(s.lnaGain), "-g", strconv.Itoa(s.vgaGain))

	if c.EnableAmp {
		args = append(args, "-a", "1")
	}

	if c.AntennaPower {
		args = append(args, "-p", "1")
	}

	if s.ppm != 0 {
		args = append(args, "-C", strconv.FormatFloat(s.ppm, 'f', -1, 64))
	}

	return args, nil
}

func (c *Config) String() string {
	args, err := c.args(c.defaults())
	if err != nil {
		return fmt.Sprintf("hackrf.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", Runtime, strings.Join(args, " "))
}
