package hackrf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/sdr/driver"
)

const (
	Runtime = "hackrf_transfer"
	Device  = "HackRF"
)

type hackrfDriver struct {
	config *Config
	logger *slog.Logger
}

func WithLogger(logger *slog.Logger) func(*hackrfDriver) {
	return func(d *hackrfDriver) {
		d.logger = logger
	}
}

// New creates a HackRF driver streaming through hackrf_transfer
func New(config *Config, options ...func(*hackrfDriver)) (sdr.Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := hackrfDriver{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&d)
	}
	return &d, nil
}

func (d *hackrfDriver) Name() string {
	return Driver
}

func (d *hackrfDriver) Open(ctx context.Context) (sdr.Handle, error) {
	binPath, err := driver.FindRuntime(Runtime)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sdr.ErrDeviceNotFound, err)
	}

	// hackrf_transfer starts and exits at once without a board, check one is attached
	devices, err := d.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sdr.ErrDeviceNotFound, err)
	}
	if !hasBoard(devices, d.config.SerialNumber) {
		if d.config.SerialNumber != "" {
			return nil, fmt.Errorf("%w: no HackRF with serial number %s", sdr.ErrDeviceNotFound, d.config.SerialNumber)
		}
		return nil, fmt.Errorf("%w: no HackRF boards found", sdr.ErrDeviceNotFound)
	}

	return &handle{
		binPath:  binPath,
		config:   d.config,
		logger:   d.logger,
		settings: d.config.defaults(),
	}, nil
}

// transfer is one running hackrf_transfer process.
type transfer struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	exited chan struct{}
}

func (t *transfer) stop() {
	t.cancel()
	_ = t.stdout.Close()
	<-t.exited
}

// handle restarts hackrf_transfer whenever a tuning parameter changes, the tool
// cannot be retuned while running.
type handle struct {
	binPath string
	config  *Config
	logger  *slog.Logger

	mu       sync.Mutex
	settings settings
	current  *transfer
	active   bool
	closed   bool

	// Reader side state, only touched from ReadStream.
	raw      []byte
	pending  []byte
	lastRead *transfer
}

func (h *handle) Capabilities() sdr.Capabilities {
	return sdr.Capabilities{
		FrequencyRange:  sdr.Range{Min: FrequencyMin, Max: FrequencyMax},
		SampleRateRange: sdr.Range{Min: SampleRateMin, Max: SampleRateMax},
		GainRange:       sdr.Range{Min: 0, Max: MaxLNAGain + MaxVGAGain},
		BandwidthRange:  sdr.Range{Min: BasebandFilterLo, Max: BasebandFilterHi},
		Antennas:        []string{"RX"},
		PPMCorrection:   true,
	}
}

// update applies fn to the settings and restarts a running transfer
func (h *handle) update(fn func(*settings)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return sdr.ErrClosed
	}

	fn(&h.settings)
	if !h.active {
		return nil
	}
	return h.restart()
}

func (h *handle) SetFrequency(hz float64) error {
	return h.update(func(s *settings) { s.frequency = hz })
}

func (h *handle) SetSampleRate(hz float64) error {
	return h.update(func(s *settings) { s.sampleRate = hz })
}

func (h *handle) SetGain(db float64) error {
	lna, vga := splitGain(db)
	return h.update(func(s *settings) {
		s.lnaGain = lna
		s.vgaGain = vga
	})
}

// SetGainMode: the HackRF has no AGC, automatic falls back to the configured gains.
func (h *handle) SetGainMode(mode sdr.GainMode) error {
	if mode == sdr.GainManual {
		return nil
	}

	defaults := h.config.defaults()
	return h.update(func(s *settings) {
		s.lnaGain = defaults.lnaGain
		s.vgaGain = defaults.vgaGain
	})
}

func (h *handle) SetBandwidth(hz float64) error {
	return h.update(func(s *settings) { s.bandwidth = hz })
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
	return h.update(func(s *settings) { s.ppm = c.PPM })
}

func (h *handle) Activate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return sdr.ErrClosed
	}
	if h.active {
		return nil
	}

	if err := h.restart(); err != nil {
		return err
	}
	h.active = true
	return nil
}

func (h *handle) Deactivate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.active = false
	if h.current != nil {
		h.current.stop()
		h.current = nil
	}
	return nil
}

func (h *handle) Close() error {
	err := h.Deactivate()

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return err
}

// restart must be called with mu held.
func (h *handle) restart() error {
	if h.current != nil {
		h.current.stop()
		h.current = nil
	}

	args, err := h.config.args(h.settings)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, h.binPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("error creating stderr pipe: %w", err)
	}

	h.logger.Debug(fmt.Sprintf("starting %s %v", Runtime, args))
	if err := cmd.Start(); err != nil {
		cancel()
		return driver.NewRuntimeError(Runtime, err)
	}

	t := &transfer{cmd: cmd, cancel: cancel, stdout: stdout, exited: make(chan struct{})}
	go func() {
		defer close(t.exited)

		if err := driver.LogStderr(Runtime, stderr, h.logger); err != nil {
			h.logger.Error("error reading runtime output", slog.Any("error", err))
		}
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			h.logger.Warn(fmt.Sprintf("%s exited", Runtime), slog.Any("error", err))
		}
	}()

	h.current = t
	return nil
}

// ReadStream reads signed 8-bit interleaved IQ from the running transfer. Reads racing
// a restart see the old pipe close and report a timeout instead of a failure.
func (h *handle) ReadStream(buf []complex64, timeout time.Duration) (int, bool, error) {
	h.mu.Lock()
	t := h.current
	h.mu.Unlock()

	if t == nil {
		return 0, false, sdr.ErrStreamingFailed
	}
	if t != h.lastRead {
		h.pending = h.pending[:0]
		h.lastRead = t
	}

	if f, ok := t.stdout.(interface{ SetReadDeadline(time.Time) error }); ok {
		_ = f.SetReadDeadline(time.Now().Add(timeout))
	}

	need := 2 * len(buf)
	if cap(h.raw) < need {
		h.raw = make([]byte, need)
	}
	raw := h.raw[:need]
	filled := copy(raw, h.pending)
	h.pending = h.pending[:0]

	for filled < need {
		n, err := t.stdout.Read(raw[filled:])
		filled += n
		if err == nil {
			continue
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			break
		}

		h.mu.Lock()
		superseded := h.current != t
		h.mu.Unlock()
		if superseded {
			return 0, false, sdr.ErrTimeout
		}
		return 0, false, fmt.Errorf("%w: %w", sdr.ErrStreamingFailed, err)
	}

	even := filled &^ 1
	if filled > even {
		h.pending = append(h.pending, raw[even])
	}
	if even == 0 {
		return 0, false, sdr.ErrTimeout
	}

	return sdr.DeinterleaveS8(buf, raw[:even]), false, nil
}
