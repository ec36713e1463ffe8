package sdr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultBlockSize is the number of samples read from the hardware per block.
	DefaultBlockSize = 65_536

	// DefaultReadTimeout bounds a single blocking hardware read.
	DefaultReadTimeout = 100 * time.Millisecond

	// DefaultQueueSize is the capacity of the output channel. When the consumer falls
	// behind, the oldest queued buffer is dropped to make room for the newest one.
	DefaultQueueSize = 16
)

// StreamObserver receives streaming loop events, typically to feed metrics.
type StreamObserver interface {
	BufferRead(b IQBuffer)
	BufferDropped()
	ReadFailed(err error)
}

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(slog.String("device", d.driver.Name()))
	}
}

// WithBlockSize sets the number of samples per emitted buffer
func WithBlockSize(size int) func(d *Device) {
	return func(d *Device) {
		if size > 0 {
			d.blockSize = size
		}
	}
}

// WithReadTimeout sets the bound on a single hardware read
func WithReadTimeout(timeout time.Duration) func(d *Device) {
	return func(d *Device) {
		if timeout > 0 {
			d.readTimeout = timeout
		}
	}
}

// WithQueueSize sets the capacity of the output channel
func WithQueueSize(size int) func(d *Device) {
	return func(d *Device) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// WithObserver registers a StreamObserver
func WithObserver(o StreamObserver) func(d *Device) {
	return func(d *Device) {
		d.observer = o
	}
}

// Stats are cumulative streaming counters.
type Stats struct {
	Buffers    uint64
	Overflows  uint64
	Dropped    uint64
	ReadErrors uint64
}

// Device is an open SDR front-end. It exclusively owns the hardware handle and the
// streaming goroutine; every tuning request goes through its methods.
type Device struct {
	driver Driver
	handle Handle
	caps   Capabilities

	mu         sync.Mutex
	frequency  float64
	sampleRate float64
	gain       float64
	gainMode   GainMode
	bandwidth  float64
	antenna    string
	correction Correction

	blockSize   int
	readTimeout time.Duration
	queueSize   int

	streamMu    sync.Mutex
	isStreaming atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	closeOnce sync.Once
	closed    atomic.Bool

	buffers    atomic.Uint64
	overflows  atomic.Uint64
	dropped    atomic.Uint64
	readErrors atomic.Uint64

	observer StreamObserver
	logger   *slog.Logger
}

// Open opens the device provided by the driver. A missing device is reported as
// ErrDeviceNotFound and is not retried.
func Open(ctx context.Context, drv Driver, options ...func(d *Device)) (*Device, error) {
	d := Device{
		driver:      drv,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		blockSize:   DefaultBlockSize,
		readTimeout: DefaultReadTimeout,
		queueSize:   DefaultQueueSize,
	}

	for _, option := range options {
		option(&d)
	}

	handle, err := drv.Open(ctx)
	if err != nil {
		return nil, deviceError("open", drv.Name(), err)
	}

	d.handle = handle
	d.caps = handle.Capabilities()

	d.logger.Info("device opened",
		slog.String("frequencyMin", FormatFrequency(d.caps.FrequencyRange.Min)),
		slog.String("frequencyMax", FormatFrequency(d.caps.FrequencyRange.Max)))

	return &d, nil
}

// ListDevices enumerates the devices of every given driver. It has no side effects;
// drivers that fail to enumerate are reported in the joined error while the
// devices found by the others are still returned.
func ListDevices(ctx context.Context, drivers ...Driver) ([]DeviceInfo, error) {
	var devices []DeviceInfo
	var errs []error
	for _, drv := range drivers {
		found, err := drv.Enumerate(ctx)
		if err != nil {
			errs = append(errs, deviceError("enumerate", drv.Name(), err))
			continue
		}
		devices = append(devices, found...)
	}
	return devices, errors.Join(errs...)
}

// Driver returns the driver name
func (d *Device) Driver() string {
	return d.driver.Name()
}

// Capabilities returns the snapshot taken at open time
func (d *Device) Capabilities() Capabilities {
	return d.caps
}

// Frequency returns the current center frequency in Hz
func (d *Device) Frequency() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frequency
}

// SampleRate returns the current sample rate in Hz
func (d *Device) SampleRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleRate
}

// Tune sets the center frequency.
func (d *Device) Tune(hz float64) error {
	if err := d.checkOpen("tune"); err != nil {
		return err
	}
	if !d.caps.FrequencyRange.Contains(hz) {
		return deviceError("tune", d.driver.Name(), fmt.Errorf("%w: frequency %s out of range", ErrNotSupported, FormatFrequency(hz)))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.handle.SetFrequency(hz); err != nil {
		return deviceError("tune", d.driver.Name(), err)
	}
	d.frequency = hz
	return nil
}

// SetGain sets the manual tuner gain in dB.
func (d *Device) SetGain(db float64) error {
	if err := d.checkOpen("set gain"); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	db = d.caps.GainRange.Clamp(db)
	if err := d.handle.SetGain(db); err != nil {
		return deviceError("set gain", d.driver.Name(), err)
	}
	d.gain = db
	return nil
}

// SetGainMode switches between manual and automatic gain.
func (d *Device) SetGainMode(mode GainMode) error {
	if err := d.checkOpen("set gain mode"); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.handle.SetGainMode(mode); err != nil {
		return deviceError("set gain mode", d.driver.Name(), err)
	}
	d.gainMode = mode
	return nil
}

// SetSampleRate sets the sample rate in Hz.
func (d *Device) SetSampleRate(hz float64) error {
	if err := d.checkOpen("set sample rate"); err != nil {
		return err
	}
	if hz <= 0 || !d.caps.SampleRateRange.Contains(hz) {
		return deviceError("set sample rate", d.driver.Name(), fmt.Errorf("%w: sample rate %.0f", ErrNotSupported, hz))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.handle.SetSampleRate(hz); err != nil {
		return deviceError("set sample rate", d.driver.Name(), err)
	}
	d.sampleRate = hz
	return nil
}

// SetBandwidth sets the analog filter bandwidth in Hz.
func (d *Device) SetBandwidth(hz float64) error {
	if err := d.checkOpen("set bandwidth"); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.handle.SetBandwidth(hz); err != nil {
		return deviceError("set bandwidth", d.driver.Name(), err)
	}
	d.bandwidth = hz
	return nil
}

// SetAntenna selects an antenna port by name.
func (d *Device) SetAntenna(name string) error {
	if err := d.checkOpen("set antenna"); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.handle.SetAntenna(name); err != nil {
		return deviceError("set antenna", d.driver.Name(), err)
	}
	d.antenna = name
	return nil
}

// SetCorrection applies DC offset, IQ balance and frequency corrections.
func (d *Device) SetCorrection(c Correction) error {
	if err := d.checkOpen("set correction"); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.handle.SetCorrection(c); err != nil {
		return deviceError("set correction", d.driver.Name(), err)
	}
	d.correction = c
	return nil
}

// StartStreaming activates the hardware and starts the streaming goroutine. Buffers
// are delivered in order on the returned channel, which is closed when streaming stops.
func (d *Device) StartStreaming(ctx context.Context) (<-chan IQBuffer, error) {
	if err := d.checkOpen("start streaming"); err != nil {
		return nil, err
	}

	d.streamMu.Lock()
	defer d.streamMu.Unlock()

	if d.isStreaming.Load() {
		return nil, deviceError("start streaming", d.driver.Name(), fmt.Errorf("%w: device is already streaming", ErrStreamingFailed))
	}
	if d.cancel != nil {
		// the previous stream ended with its parent context
		d.cancel()
		d.wg.Wait()
	}

	if err := d.handle.Activate(); err != nil {
		return nil, deviceError("start streaming", d.driver.Name(), fmt.Errorf("%w: %w", ErrStreamingFailed, err))
	}

	d.isStreaming.Store(true)

	ctx, d.cancel = context.WithCancel(ctx)
	out := make(chan IQBuffer, d.queueSize)

	d.wg.Add(1)
	go d.stream(ctx, out)

	return out, nil
}

// StopStreaming stops the streaming goroutine and deactivates the hardware.
// It is safe to call at any time and more than once.
func (d *Device) StopStreaming() {
	d.streamMu.Lock()
	defer d.streamMu.Unlock()

	if d.cancel == nil {
		return // already stopped
	}

	d.cancel()
	d.cancel = nil
	d.wg.Wait()
}

// IsStreaming returns true if the streaming goroutine is running
func (d *Device) IsStreaming() bool {
	return d.isStreaming.Load()
}

// Stats returns the streaming counters
func (d *Device) Stats() Stats {
	return Stats{
		Buffers:    d.buffers.Load(),
		Overflows:  d.overflows.Load(),
		Dropped:    d.dropped.Load(),
		ReadErrors: d.readErrors.Load(),
	}
}

// Close stops streaming and releases the hardware.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.StopStreaming()
		d.closed.Store(true)
		if cErr := d.handle.Close(); cErr != nil {
			err = deviceError("close", d.driver.Name(), cErr)
		}
		d.logger.Info("device closed")
	})
	return err
}

func (d *Device) checkOpen(op string) error {
	if d.closed.Load() {
		return deviceError(op, d.driver.Name(), ErrClosed)
	}
	return nil
}

func (d *Device) stream(ctx context.Context, out chan IQBuffer) {
	defer d.wg.Done()
	defer close(out)
	defer d.streamEnded()

	d.logger.Info("streaming started", slog.Int("blockSize", d.blockSize))

	for ctx.Err() == nil {
		d.mu.Lock()
		tunedTo := d.frequency
		d.mu.Unlock()

		samples := make([]complex64, d.blockSize)
		n, overflow, err := d.handle.ReadStream(samples, d.readTimeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue // missed frame
			}

			d.readErrors.Add(1)
			if d.observer != nil {
				d.observer.ReadFailed(err)
			}
			d.logger.Debug(fmt.Sprintf("transient read failure: %s", err.Error()))

			// back off for one read period so a failing handle does not spin
			select {
			case <-ctx.Done():
			case <-time.After(d.readTimeout):
			}
			continue
		}
		if n == 0 {
			continue
		}

		d.mu.Lock()
		if d.frequency != tunedTo {
			// the block straddles a retune, its samples belong to neither frequency
			d.mu.Unlock()
			continue
		}
		b := IQBuffer{
			Samples:         samples[:n],
			Timestamp:       time.Now(),
			CenterFrequency: d.frequency,
			SampleRate:      d.sampleRate,
			Overflow:        overflow,
		}
		d.mu.Unlock()

		d.buffers.Add(1)
		if overflow {
			d.overflows.Add(1)
		}
		if d.observer != nil {
			d.observer.BufferRead(b)
		}

		d.emit(ctx, out, b)
	}

	d.logger.Info("streaming stopped")
}

// streamEnded deactivates the hardware once reading stops, whether StopStreaming
// or the caller's context ended it. Consumers see the flag cleared before out closes.
func (d *Device) streamEnded() {
	if err := d.handle.Deactivate(); err != nil {
		d.logger.Warn(fmt.Sprintf("deactivating stream: %s", err.Error()))
	}
	d.isStreaming.Store(false)
}

// emit pushes b onto out, dropping the oldest queued buffer when out is full.
func (d *Device) emit(ctx context.Context, out chan IQBuffer, b IQBuffer) {
	for {
		select {
		case out <- b:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-out:
			d.dropped.Add(1)
			if d.observer != nil {
				d.observer.BufferDropped()
			}
		default:
		}
	}
}
