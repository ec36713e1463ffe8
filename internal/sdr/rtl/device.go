package rtl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/sdr/driver"
)

const (
	Runtime = "rtl_tcp"
	Device  = "RTL-SDR"

	defaultSampleRate = 2_048_000
	redialInterval    = 200 * time.Millisecond
)

type rtlDriver struct {
	config *Config
	logger *slog.Logger
}

func WithLogger(logger *slog.Logger) func(*rtlDriver) {
	return func(d *rtlDriver) {
		d.logger = logger
	}
}

// New creates an RTL-SDR driver that talks to the dongle through rtl_tcp
func New(config *Config, options ...func(*rtlDriver)) (sdr.Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := rtlDriver{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&d)
	}
	return &d, nil
}

func (d *rtlDriver) Name() string {
	return Driver
}

func (d *rtlDriver) Open(ctx context.Context) (sdr.Handle, error) {
	h := handle{
		config:     d.config,
		logger:     d.logger,
		sampleRate: defaultSampleRate,
	}

	if !d.config.Remote() {
		if err := h.spawn(); err != nil {
			return nil, err
		}
	}

	if err := h.connect(ctx); err != nil {
		_ = h.Close()
		return nil, err
	}

	if err := h.configure(); err != nil {
		_ = h.Close()
		return nil, err
	}

	d.logger.Info("connected to rtl_tcp",
		slog.String("endpoint", d.config.Endpoint()),
		slog.String("tuner", h.info.Tuner.String()),
		slog.Uint64("gains", uint64(h.info.GainCount)))

	return &h, nil
}

type handle struct {
	config *Config
	logger *slog.Logger

	cmd    *exec.Cmd
	cancel context.CancelFunc
	exited chan struct{}

	conn    net.Conn
	info    dongleInfo
	writeMu sync.Mutex

	sampleRate float64
	active     atomic.Bool
	closeOnce  sync.Once

	// Reader side state, only touched from ReadStream.
	raw     []byte
	pending []byte
}

func (h *handle) spawn() error {
	binPath, err := driver.FindRuntime(Runtime)
	if err != nil {
		return fmt.Errorf("%w: %w", sdr.ErrDeviceNotFound, err)
	}

	args, err := h.config.Args()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("error creating stderr pipe: %w", err)
	}

	h.logger.Debug(fmt.Sprintf("starting %s", h.config))
	if err := cmd.Start(); err != nil {
		cancel()
		return driver.NewRuntimeError(Runtime, err)
	}

	h.cmd = cmd
	h.cancel = cancel
	h.exited = make(chan struct{})

	go func() {
		defer close(h.exited)

		if err := driver.LogStderr(Runtime, stderr, h.logger); err != nil {
			h.logger.Error("error reading runtime output", slog.Any("error", err))
		}
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			h.logger.Warn(fmt.Sprintf("%s exited", Runtime), slog.Any("error", err))
		}
	}()

	return nil
}

// connect dials the server until it accepts, the helper exits or the connect timeout passes.
func (h *handle) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.connectTimeout())
	defer cancel()

	var dialer net.Dialer
	endpoint := h.config.Endpoint()

	for {
		conn, err := dialer.DialContext(ctx, "tcp", endpoint)
		if err == nil {
			h.conn = conn
			break
		}

		select {
		case <-h.exited:
			return fmt.Errorf("%s exited before accepting connections: %w", Runtime, sdr.ErrDeviceNotFound)
		case <-ctx.Done():
			return fmt.Errorf("error connecting to %s: %w: %w", endpoint, sdr.ErrConnectionFailed, err)
		case <-time.After(redialInterval):
		}
	}

	_ = h.conn.SetReadDeadline(time.Now().Add(h.config.connectTimeout()))
	info, err := readDongleInfo(h.conn)
	if err != nil {
		return fmt.Errorf("%w: %w", sdr.ErrConnectionFailed, err)
	}
	_ = h.conn.SetReadDeadline(time.Time{})

	h.info = info
	return nil
}

func (h *handle) configure() error {
	if h.config.Remote() && h.config.PPMError != 0 {
		if err := h.send(cmdSetFreqCorrection, uint32(int32(h.config.PPMError))); err != nil {
			return err
		}
	}
	if h.config.Remote() && h.config.BiasTee {
		if err := h.send(cmdSetBiasTee, 1); err != nil {
			return err
		}
	}
	if h.config.DirectSampling {
		if err := h.send(cmdSetDirectSampling, 2); err != nil { // Q branch, the usual HF mod
			return err
		}
	}
	if h.config.OffsetTuning {
		if err := h.send(cmdSetOffsetTuning, 1); err != nil {
			return err
		}
	}
	return nil
}

func (h *handle) send(cmd byte, param uint32) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.conn == nil {
		return sdr.ErrClosed
	}
	return writeCommand(h.conn, cmd, param)
}

func (h *handle) Capabilities() sdr.Capabilities {
	return sdr.Capabilities{
		FrequencyRange:  h.info.Tuner.FrequencyRange(),
		SampleRateRange: sdr.Range{Min: SampleRateMin, Max: SampleRateMax},
		GainRange:       sdr.Range{Min: 0, Max: 49.6},
		Antennas:        []string{"RX"},
		PPMCorrection:   true,
	}
}

func (h *handle) SetFrequency(hz float64) error {
	return h.send(cmdSetFrequency, uint32(math.Round(hz)))
}

func (h *handle) SetSampleRate(hz float64) error {
	if err := h.send(cmdSetSampleRate, uint32(math.Round(hz))); err != nil {
		return err
	}
	h.sampleRate = hz
	return nil
}

// SetGain sets the tuner gain; rtl_tcp expects tenths of a dB and snaps to the nearest supported step.
func (h *handle) SetGain(db float64) error {
	return h.send(cmdSetGain, uint32(math.Round(db*10)))
}

func (h *handle) SetGainMode(mode sdr.GainMode) error {
	manual := mode == sdr.GainManual
	if err := h.send(cmdSetGainMode, boolParam(manual)); err != nil {
		return err
	}
	return h.send(cmdSetAGCMode, boolParam(!manual))
}

func (h *handle) SetBandwidth(float64) error {
	return sdr.ErrNotSupported
}

func (h *handle) SetAntenna(name string) error {
	if name != "RX" {
		return sdr.ErrNotSupported
	}
	return nil
}

func (h *handle) SetCorrection(c sdr.Correction) error {
	if c.DCOffset || c.IQBalance {
		return sdr.ErrNotSupported
	}
	return h.send(cmdSetFreqCorrection, uint32(int32(math.Round(c.PPM))))
}

func (h *handle) Activate() error {
	h.pending = h.pending[:0]
	h.active.Store(true)
	return nil
}

func (h *handle) Deactivate() error {
	h.active.Store(false)
	return nil
}

// ReadStream reads unsigned 8-bit interleaved IQ. A partial block is returned when
// the deadline passes mid-read; an odd trailing byte is carried into the next call.
func (h *handle) ReadStream(buf []complex64, timeout time.Duration) (int, bool, error) {
	if !h.active.Load() {
		return 0, false, sdr.ErrStreamingFailed
	}

	need := 2 * len(buf)
	if cap(h.raw) < need {
		h.raw = make([]byte, need)
	}
	raw := h.raw[:need]
	filled := copy(raw, h.pending)
	h.pending = h.pending[:0]

	if err := h.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, false, err
	}

	for filled < need {
		n, err := h.conn.Read(raw[filled:])
		filled += n
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return 0, false, fmt.Errorf("%w: %w", sdr.ErrStreamingFailed, err)
			}
			return 0, false, err
		}
	}

	even := filled &^ 1
	if filled > even {
		h.pending = append(h.pending, raw[even])
	}
	if even == 0 {
		return 0, false, sdr.ErrTimeout
	}

	return sdr.DeinterleaveU8(buf, raw[:even]), false, nil
}

func (h *handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.active.Store(false)

		h.writeMu.Lock()
		if h.conn != nil {
			err = h.conn.Close()
		}
		h.writeMu.Unlock()

		if h.cancel != nil {
			h.cancel()
			<-h.exited
		}
	})
	return err
}
