package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/sdr/capture"
	"github.com/roman-kulish/radio-scanner/internal/sdr/hackrf"
	"github.com/roman-kulish/radio-scanner/internal/sdr/rtl"
	"github.com/roman-kulish/radio-scanner/internal/sdr/sim"
)

func newDriver(config *DeviceConfig, logger *slog.Logger) (sdr.Driver, error) {
	var drv sdr.Driver
	var err error

	switch config.Type {
	case DeviceRTLSDR:
		if drv, err = rtl.New(config.Config.(*rtl.Config), rtl.WithLogger(logger)); err != nil {
			return nil, fmt.Errorf("creating RTL-SDR driver: %w", err)
		}

	case DeviceHackRF:
		if drv, err = hackrf.New(config.Config.(*hackrf.Config), hackrf.WithLogger(logger)); err != nil {
			return nil, fmt.Errorf("creating HackRF driver: %w", err)
		}

	case DeviceSim:
		if drv, err = sim.New(config.Config.(*sim.Config)); err != nil {
			return nil, fmt.Errorf("creating simulator: %w", err)
		}

	case DeviceCapture:
		if drv, err = capture.New(config.Config.(*capture.Config)); err != nil {
			return nil, fmt.Errorf("creating capture player: %w", err)
		}

	default:
		return nil, fmt.Errorf("creating driver: unknown type '%s'", config.Type)
	}

	return drv, nil
}

// hardwareDrivers are the drivers probed when no configuration is given.
func hardwareDrivers(logger *slog.Logger) ([]sdr.Driver, error) {
	rtlDrv, err := rtl.New(&rtl.Config{}, rtl.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	hackrfDrv, err := hackrf.New(&hackrf.Config{}, hackrf.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	simDrv, err := sim.New(&sim.Config{})
	if err != nil {
		return nil, err
	}
	return []sdr.Driver{rtlDrv, hackrfDrv, simDrv}, nil
}

// ListDevices prints the devices of the configured driver, or of every hardware
// driver when config is nil. Drivers that fail to enumerate are logged.
func ListDevices(ctx context.Context, config *Config, w io.Writer, logger *slog.Logger) error {
	var drivers []sdr.Driver
	if config != nil {
		drv, err := newDriver(&config.Device, logger)
		if err != nil {
			return err
		}
		drivers = []sdr.Driver{drv}
	} else {
		var err error
		if drivers, err = hardwareDrivers(logger); err != nil {
			return err
		}
	}

	devices, err := sdr.ListDevices(ctx, drivers...)
	if err != nil {
		logger.Warn("some drivers failed to enumerate", slog.Any("error", err))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DRIVER\tID\tNAME\tSERIAL")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Driver, d.ID, d.Name, d.Serial)
	}
	return tw.Flush()
}
