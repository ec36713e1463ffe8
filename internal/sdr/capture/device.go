package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"hz.tools/rfcap"
	hzsdr "hz.tools/sdr"
	"hz.tools/sdr/stream"
)

type captureDriver struct {
	config *Config
}

// New creates a driver that replays an rfcap file
func New(config *Config) (sdr.Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &captureDriver{config: config}, nil
}

func (d *captureDriver) Name() string {
	return Driver
}

func (d *captureDriver) Enumerate(context.Context) ([]sdr.DeviceInfo, error) {
	return []sdr.DeviceInfo{{
		ID:     d.config.Path,
		Name:   filepath.Base(d.config.Path),
		Driver: Driver,
	}}, nil
}

func (d *captureDriver) Open(context.Context) (sdr.Handle, error) {
	h := handle{config: d.config}
	if err := h.open(); err != nil {
		return nil, err
	}
	return &h, nil
}

type handle struct {
	config *Config

	mu         sync.Mutex
	file       *os.File
	reader     hzsdr.Reader
	sampleRate float64
	active     bool
	startedAt  time.Time
	delivered  int64
}

// open must be called with mu held or before the handle is shared.
func (h *handle) open() error {
	f, err := os.Open(h.config.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", sdr.ErrDeviceNotFound, err)
	}

	reader, _, err := rfcap.Reader(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("error reading rfcap header: %w", err)
	}

	reader, err = stream.ConvertReader(reader, hzsdr.SampleFormatC64)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("error converting capture samples: %w", err)
	}

	if h.file != nil {
		_ = h.file.Close()
	}
	h.file = f
	h.reader = reader
	h.sampleRate = float64(reader.SampleRate())
	return nil
}

func (h *handle) Capabilities() sdr.Capabilities {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A recording has exactly one sample rate; tuning is accepted within the recorded
	// band and only relabels buffers.
	caps := sdr.Capabilities{
		SampleRateRange: sdr.Range{Min: h.sampleRate, Max: h.sampleRate},
		Antennas:        []string{"RX"},
	}
	if cf := h.config.centerFrequency(); cf > 0 {
		caps.FrequencyRange = sdr.Range{Min: cf - h.sampleRate/2, Max: cf + h.sampleRate/2}
	}
	return caps
}

func (h *handle) SetFrequency(float64) error         { return nil }
func (h *handle) SetGain(float64) error              { return nil }
func (h *handle) SetGainMode(sdr.GainMode) error     { return nil }
func (h *handle) SetBandwidth(float64) error         { return sdr.ErrNotSupported }
func (h *handle) SetCorrection(sdr.Correction) error { return sdr.ErrNotSupported }

func (h *handle) SetSampleRate(hz float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if hz != h.sampleRate {
		return sdr.ErrNotSupported
	}
	return nil
}

func (h *handle) SetAntenna(name string) error {
	if name != "RX" {
		return sdr.ErrNotSupported
	}
	return nil
}

func (h *handle) Activate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.reader == nil {
		return sdr.ErrClosed
	}
	h.active = true
	h.startedAt = time.Now()
	h.delivered = 0
	return nil
}

func (h *handle) Deactivate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = false
	return nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.active = false
	h.reader = nil
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}

func (h *handle) ReadStream(buf []complex64, timeout time.Duration) (int, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.active {
		return 0, false, sdr.ErrStreamingFailed
	}

	if h.config.Realtime {
		due := h.startedAt.Add(time.Duration(float64(h.delivered) / h.sampleRate * float64(time.Second)))
		if wait := time.Until(due); wait > 0 {
			if wait > timeout {
				time.Sleep(timeout)
				return 0, false, sdr.ErrTimeout
			}
			time.Sleep(wait)
		}
	}

	n, err := hzsdr.ReadFull(h.reader, hzsdr.SamplesC64(buf))
	h.delivered += int64(n)

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if !h.config.Loop {
			if n > 0 {
				return n, false, nil
			}
			return 0, false, fmt.Errorf("%w: end of capture", sdr.ErrStreamingFailed)
		}
		if err := h.open(); err != nil {
			return n, false, err
		}
		return n, false, nil
	}
	if err != nil {
		return n, false, err
	}

	return n, false, nil
}
