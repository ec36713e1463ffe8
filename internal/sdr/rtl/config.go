package rtl

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/sdr/driver"
)

const (
	Driver = "rtl"

	DefaultHost           = "127.0.0.1"
	DefaultPort           = 1234
	DefaultConnectTimeout = 5 * time.Second

	// rtl_tcp refuses anything outside these; 225-300 kHz and 900 kHz-3.2 MHz are the stable windows.
	SampleRateMin = 225_001
	SampleRateMax = 3_200_000
)

// Usage examples from man page:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_tcp.1.en.html

/*
Example 1: Local dongle, spawned helper
    rtlConfig := rtl.Config{
        DeviceIndex: 0,
        PPMError:    -2,
    }
    // Executes: rtl_tcp -a 127.0.0.1 -p 1234 -d 0 -P -2

Example 2: Remote server
    rtlConfig := rtl.Config{
        Address: "raspberrypi.local:1234",
    }
    // Nothing is spawned, the driver connects to an rtl_tcp already running elsewhere
*/

// Config is the `rtl_tcp` driver configuration
type Config struct {
	// Address of an already running rtl_tcp server, "host:port". When empty the
	// driver spawns rtl_tcp itself and listens on Host:Port.
	Address string `yaml:"address" json:"address"`

	Host string `yaml:"host" json:"host"` // -a listen address (default: 127.0.0.1)
	Port int    `yaml:"port" json:"port"` // -p listen port (default: 1234)

	DeviceIndex int `yaml:"deviceIndex" json:"deviceIndex"` // -d device_index (default: 0)
	PPMError    int `yaml:"ppmError" json:"ppmError"`       // -P ppm_error (default: 0)
	Buffers     int `yaml:"buffers" json:"buffers"`         // -b number of buffers (default: 15, set by the library)

	ConnectTimeout driver.TimeDuration `yaml:"connectTimeout" json:"connectTimeout"` // how long to wait for the server to accept

	// Hardware Options
	DirectSampling bool `yaml:"directSampling" json:"directSampling"` // enable direct sampling (default: off)
	OffsetTuning   bool `yaml:"offsetTuning" json:"offsetTuning"`     // enable offset tuning (default: off)
	BiasTee        bool `yaml:"biasTee" json:"biasTee"`               // -T enable bias-tee (default: off)
}

func (c *Config) Validate() error {
	if c.Address != "" {
		if _, _, err := net.SplitHostPort(c.Address); err != nil {
			return driver.NewConfigError(Driver, "invalid address %q: %s", c.Address, err)
		}
	}

	if c.Port < 0 || c.Port > 65535 {
		return driver.NewConfigError(Driver, "invalid port: %d", c.Port)
	}

	if c.DeviceIndex < 0 {
		return driver.NewConfigError(Driver, "device index must not be negative: %d", c.DeviceIndex)
	}

	if c.Buffers < 0 {
		return driver.NewConfigError(Driver, "number of buffers must not be negative: %d", c.Buffers)
	}

	if c.ConnectTimeout < 0 {
		return driver.NewConfigError(Driver, "connect timeout must not be negative: %s", c.ConnectTimeout)
	}

	return nil
}

// Remote reports whether the driver attaches to an external server.
func (c *Config) Remote() bool {
	return c.Address != ""
}

// Endpoint returns the address the driver dials.
func (c *Config) Endpoint() string {
	if c.Remote() {
		return c.Address
	}

	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (c *Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout.Duration()
	}
	return DefaultConnectTimeout
}

// Args returns the command line arguments for `rtl_tcp`
// See `man rtl_tcp` for more information:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_tcp.1.en.html
func (c *Config) Args() ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Remote() {
		return nil, driver.NewConfigError(Driver, "remote server %s is not spawned", c.Address)
	}

	host, port, _ := net.SplitHostPort(c.Endpoint())
	args := []string{"-a", host, "-p", port}

	args = append(args, "-d", strconv.Itoa(c.DeviceIndex)) // 0 is the default device index

	if c.PPMError != 0 {
		args = append(args, "-P", strconv.Itoa(c.PPMError))
	}

	if c.Buffers > 0 {
		args = append(args, "-b", strconv.Itoa(c.Buffers))
	}

	if c.BiasTee {
		args = append(args, "-T")
	}

	return args, nil
}

func (c *Config) String() string {
	if c.Remote() {
		return fmt.Sprintf("%s://%s", Runtime, c.Address)
	}

	args, err := c.Args()
	if err != nil {
		return fmt.Sprintf("rtl.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", Runtime, strings.Join(args, " "))
}
