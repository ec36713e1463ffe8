package rtl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/sdr/driver"
)

// EnumerateRuntime lists dongles without streaming; `-t` makes it exit right after probing.
const EnumerateRuntime = "rtl_test"

const enumerateTimeout = 5 * time.Second

// e.g. "  0:  Realtek, RTL2838UHIDIR, SN: 00000001"
var deviceLine = regexp.MustCompile(`^\s*(\d+):\s+(.*?),\s*(.*?),\s*SN:\s*(.*)$`)

func (d *rtlDriver) Enumerate(ctx context.Context) ([]sdr.DeviceInfo, error) {
	if d.config.Remote() {
		return []sdr.DeviceInfo{{ID: d.config.Address, Name: Device, Driver: Driver}}, nil
	}

	binPath, err := driver.FindRuntime(EnumerateRuntime)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, enumerateTimeout)
	defer cancel()

	// rtl_test writes the device list to stderr and exits non-zero for a missing E4000,
	// so the exit status carries no information here.
	out, _ := exec.CommandContext(ctx, binPath, "-t").CombinedOutput()

	return parseDeviceList(out), nil
}

func parseDeviceList(out []byte) []sdr.DeviceInfo {
	var devices []sdr.DeviceInfo

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := deviceLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}

		devices = append(devices, sdr.DeviceInfo{
			ID:     m[1],
			Name:   fmt.Sprintf("%s %s", strings.TrimSpace(m[2]), strings.TrimSpace(m[3])),
			Driver: Driver,
			Serial: strings.TrimSpace(m[4]),
		})
	}

	return devices
}
