package hackrf

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/sdr/driver"
)

const (
	EnumerateRuntime = "hackrf_info"
	enumerateTimeout = 5 * time.Second
)

var boardName = regexp.MustCompile(`\((.+)\)`)

func (d *hackrfDriver) Enumerate(ctx context.Context) ([]sdr.DeviceInfo, error) {
	binPath, err := driver.FindRuntime(EnumerateRuntime)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, enumerateTimeout)
	defer cancel()

	// hackrf_info exits non-zero when nothing is attached, the output says so anyway
	out, _ := exec.CommandContext(ctx, binPath).CombinedOutput()

	return parseInfo(out), nil
}

// parseInfo reads the "Found HackRF" blocks printed by hackrf_info.
func parseInfo(out []byte) []sdr.DeviceInfo {
	var (
		devices []sdr.DeviceInfo
		current *sdr.DeviceInfo
	)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "Found HackRF" {
			devices = append(devices, sdr.DeviceInfo{Name: Device, Driver: Driver})
			current = &devices[len(devices)-1]
			continue
		}
		if current == nil {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "Index":
			current.ID = value
		case "Serial number":
			current.Serial = value
		case "Board ID Number":
			if m := boardName.FindStringSubmatch(value); m != nil {
				current.Name = m[1]
			}
		}
	}

	return devices
}

// hasBoard reports whether devices holds a board, the one with the given serial
// number when it is set. hackrf_transfer matches serials by suffix, so does this.
func hasBoard(devices []sdr.DeviceInfo, serial string) bool {
	serial = strings.ToLower(strings.TrimSpace(serial))
	for _, d := range devices {
		if serial == "" || strings.HasSuffix(strings.ToLower(d.Serial), serial) {
			return true
		}
	}
	return false
}
