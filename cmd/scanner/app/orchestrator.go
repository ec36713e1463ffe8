package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/radio-scanner/internal/audio"
	"github.com/roman-kulish/radio-scanner/internal/demod"
	"github.com/roman-kulish/radio-scanner/internal/dsp"
	"github.com/roman-kulish/radio-scanner/internal/event"
	"github.com/roman-kulish/radio-scanner/internal/publish"
	"github.com/roman-kulish/radio-scanner/internal/scanner"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
	"github.com/roman-kulish/radio-scanner/internal/storage"
	"github.com/roman-kulish/radio-scanner/internal/telemetry"
)

// used when neither the config nor a fixed-rate device decide
const defaultSampleRate = 2_400_000

// WithDriver replaces the driver built from the device configuration.
func WithDriver(drv sdr.Driver) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.driver = drv
	}
}

// WithSink replaces the audio output selected by settings.audio.
func WithSink(sink dsp.AudioSink) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithStore replaces the SQLite store selected by the storage section.
func WithStore(store storage.Store) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.store = store
	}
}

func WithMetrics(m *telemetry.Metrics) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator wires the device, the pipeline and the scanner together with the
// event subscribers: logging, activity recording, MQTT and metrics.
type Orchestrator struct {
	config *Config
	logger *slog.Logger
	runID  string

	driver  sdr.Driver
	sink    dsp.AudioSink
	store   storage.Store
	metrics *telemetry.Metrics
	bus     *event.Bus

	ownStore bool

	device   *sdr.Device
	pipeline *dsp.Pipeline
	scanner  *scanner.Scanner

	ready chan struct{}
	wg    sync.WaitGroup
}

func NewOrchestrator(config *Config, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		config: config,
		logger: logger,
		runID:  uuid.NewString(),
		bus:    event.NewBus(),
		ready:  make(chan struct{}),
	}

	for _, option := range options {
		option(&o)
	}

	if o.metrics == nil {
		o.metrics = telemetry.New(nil)
	}

	return &o
}

// Ready is closed once the receiver is streaming.
func (o *Orchestrator) Ready() <-chan struct{} {
	return o.ready
}

func (o *Orchestrator) Scanner() *scanner.Scanner {
	return o.scanner
}

func (o *Orchestrator) Pipeline() *dsp.Pipeline {
	return o.pipeline
}

func (o *Orchestrator) Bus() *event.Bus {
	return o.bus
}

// Run opens the device and receives until ctx is done or the stream ends.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.logger.Info("starting receiver", slog.String("run", o.runID), slog.String("device", string(o.config.Device.Type)))

	if o.driver == nil {
		if o.driver, err = newDriver(&o.config.Device, o.logger); err != nil {
			return err
		}
	}

	o.device, err = sdr.Open(ctx, o.driver,
		sdr.WithLogger(o.logger),
		sdr.WithBlockSize(o.config.Device.BlockSize),
		sdr.WithReadTimeout(o.config.Device.Timeout.Duration()),
		sdr.WithObserver(o.metrics))
	if err != nil {
		return err
	}
	defer func() {
		if cErr := o.device.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if err = o.configureDevice(); err != nil {
		return err
	}

	if o.sink == nil {
		if o.sink, err = o.createSink(); err != nil {
			return err
		}
	}
	if c, ok := o.sink.(interface{ Close() error }); ok {
		defer c.Close()
	}

	if o.pipeline, err = o.createPipeline(); err != nil {
		return err
	}

	defer func() {
		cancel()
		o.bus.Close()
		o.wg.Wait()
		if o.ownStore {
			if cErr := o.store.Close(); cErr != nil && err == nil {
				err = cErr
			}
		}
	}()

	// subscribers go first so nothing published by the receiver is missed
	if err = o.startSubscribers(ctx); err != nil {
		return err
	}

	iq, err := o.device.StartStreaming(ctx)
	if err != nil {
		return err
	}
	defer o.device.StopStreaming()

	pipelineErr := make(chan error, 1)
	o.goSubscriber(func() {
		pipelineErr <- o.pipeline.Run(ctx, iq)
	})

	if err = o.startScanner(ctx); err != nil {
		return err
	}
	defer o.scanner.Stop()

	close(o.ready)

	select {
	case <-ctx.Done():
		return nil
	case err = <-pipelineErr:
		if err == nil {
			o.logger.Info("stream ended")
		}
		return err
	}
}

func (o *Orchestrator) configureDevice() error {
	dc := &o.config.Device
	caps := o.device.Capabilities()

	rate := dc.SampleRate
	switch {
	case rate > 0:
	case caps.SampleRateRange.Min > 0 && caps.SampleRateRange.Min == caps.SampleRateRange.Max:
		// fixed rate source such as a capture file
		rate = caps.SampleRateRange.Min
	default:
		rate = caps.SampleRateRange.Clamp(defaultSampleRate)
	}
	if err := o.device.SetSampleRate(rate); err != nil {
		return err
	}

	if dc.Gain != nil {
		if err := o.device.SetGainMode(sdr.GainManual); err != nil {
			return err
		}
		if err := o.device.SetGain(*dc.Gain); err != nil {
			return err
		}
	} else if err := o.device.SetGainMode(sdr.GainAutomatic); err != nil && !errors.Is(err, sdr.ErrNotSupported) {
		return err
	}

	if dc.Bandwidth > 0 {
		if err := o.device.SetBandwidth(dc.Bandwidth); err != nil {
			return err
		}
	}
	if dc.PPM != 0 {
		if err := o.device.SetCorrection(sdr.Correction{PPM: dc.PPM}); err != nil {
			return err
		}
	}

	o.logger.Info("device configured",
		slog.String("sampleRate", sdr.FormatFrequency(rate)),
		slog.Bool("manualGain", dc.Gain != nil))
	return nil
}

func (o *Orchestrator) createSink() (dsp.AudioSink, error) {
	if o.config.Settings.Audio == AudioNone {
		return &audio.Discard{}, nil
	}
	sink, err := audio.NewPulseSink(uint(o.config.Settings.AudioRate), o.config.Device.DeviceID())
	if err != nil {
		return nil, err
	}
	sink.SetVolume(o.config.Settings.Volume)
	return sink, nil
}

func (o *Orchestrator) createPipeline() (*dsp.Pipeline, error) {
	rc := &o.config.Receiver

	analyzer, err := spectrum.NewAnalyzer(
		spectrum.WithFFTSize(rc.FFTSize),
		spectrum.WithWindow(rc.Window),
		spectrum.WithAveraging(rc.Averaging),
		spectrum.WithDisplayOffset(rc.DisplayOffset))
	if err != nil {
		return nil, fmt.Errorf("creating spectrum analyzer: %w", err)
	}

	registryOptions := []func(*demod.Registry){demod.WithBFO(rc.BFO)}
	if rc.DeemphasisTau > 0 {
		registryOptions = append(registryOptions, demod.WithDeemphasis(rc.DeemphasisTau))
	}

	p, err := dsp.NewPipeline(analyzer, demod.NewRegistry(registryOptions...), o.sink,
		dsp.WithLogger(o.logger),
		dsp.WithObserver(o.metrics),
		dsp.WithBus(o.bus),
		dsp.WithAudioRate(o.config.Settings.AudioRate),
		dsp.WithSignalBins(rc.SignalBins))
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	if err = p.SetMode(rc.Mode); err != nil {
		return nil, err
	}
	if rc.Squelch != nil {
		p.SetSquelch(*rc.Squelch)
		p.EnableSquelch(true)
	}
	p.SetToneSquelch(rc.ToneSquelch)
	p.SetAGC(rc.AGCProfile)
	p.EnableAGC(rc.AGC)

	return p, nil
}

func (o *Orchestrator) startSubscribers(ctx context.Context) error {
	o.goSubscriber(func() { o.metrics.Watch(ctx, o.bus) })

	changes, _ := o.bus.Subscribe(64, event.KindMode, event.KindSquelch, event.KindAGC, event.KindScannerState)
	o.goSubscriber(func() { logEvents(ctx, o.logger, changes) })

	if addr := o.config.Settings.MetricsAddress; addr != "" {
		o.serveMetrics(ctx, addr)
	}

	if err := o.startRecorder(ctx); err != nil {
		return err
	}

	if o.config.MQTT != nil {
		pub, err := publish.Connect(o.config.MQTT, publish.WithLogger(o.logger))
		if err != nil {
			return err
		}
		events, _ := o.bus.Subscribe(256)
		o.goSubscriber(func() {
			defer pub.Close()
			pub.Run(ctx, events)
		})
	}

	return nil
}

func (o *Orchestrator) goSubscriber(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

func (o *Orchestrator) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", o.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	o.goSubscriber(func() {
		o.logger.Info("serving metrics", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error("metrics endpoint failed", slog.Any("error", err))
		}
	})
	o.goSubscriber(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
}

func (o *Orchestrator) startRecorder(ctx context.Context) error {
	if o.store == nil {
		if !o.config.Storage.Enabled {
			return nil
		}
		store, err := createStorage(&o.config.Storage)
		if err != nil {
			return fmt.Errorf("creating storage: %w", err)
		}
		o.store = store
		o.ownStore = true
	}

	sessionID, err := o.store.CreateSession(ctx, string(o.config.Device.Type), o.config.Device.DeviceID(),
		map[string]any{"run": o.runID, "config": o.config})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	o.logger.Info("recording activity", slog.Int64("session", sessionID))

	events, _ := o.bus.Subscribe(256, event.KindActivity)
	recorder := storage.NewRecorder(o.store, sessionID,
		storage.WithRecorderLogger(o.logger),
		storage.WithFlushInterval(o.config.Storage.FlushInterval.Duration()))

	o.goSubscriber(func() {
		recorder.Run(ctx, events)

		endCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := o.store.EndSession(endCtx, sessionID, time.Now()); err != nil {
			o.logger.Error("failed to close session", slog.Any("error", err))
		}
	})
	return nil
}

func (o *Orchestrator) startScanner(ctx context.Context) (err error) {
	sc := &o.config.Scanner

	settings, err := o.config.ScannerSettings()
	if err != nil {
		return err
	}

	o.scanner, err = scanner.New(o.device, signalMeter{pipeline: o.pipeline, device: o.device}, settings,
		scanner.WithLogger(o.logger),
		scanner.WithBus(o.bus),
		scanner.WithModeSwitcher(o.pipeline),
		scanner.WithDefaultMode(o.config.Receiver.Mode))
	if err != nil {
		return err
	}

	if !sc.Enabled {
		return o.device.Tune(o.config.Receiver.Frequency)
	}

	entries := make([]scanner.Entry, 0, len(sc.Memory))
	for _, m := range sc.Memory {
		entries = append(entries, scanner.Entry{
			Frequency: m.Frequency,
			Mode:      m.Mode,
			Label:     m.Label,
			Priority:  m.Priority,
			Locked:    m.Locked,
		})
	}

	start, end := sc.Start, sc.End
	if sc.Plan != "" {
		plan, err := LoadPlan(sc.Plan)
		if err != nil {
			return err
		}
		entries = append(entries, plan.Entries...)
		if end <= start && len(plan.Ranges) > 0 {
			r := plan.Ranges[0]
			start, end = r.Start, r.End
			settings.StepSize = r.Step
			if err = o.scanner.SetSettings(settings); err != nil {
				return err
			}
		}
	}

	for _, e := range entries {
		if err = o.scanner.AddEntry(e); err != nil {
			o.logger.Warn("skipping memory entry", slog.String("frequency", sdr.FormatFrequency(e.Frequency)), slog.Any("error", err))
		}
	}
	for _, hz := range sc.Lockouts {
		o.scanner.Lockout(hz)
	}

	o.scanner.SetMode(sc.Mode)
	if sc.Mode == scanner.RangeMode {
		if err = o.scanner.SetRange(start, end); err != nil {
			return err
		}
	}

	return o.scanner.Start(ctx)
}

// signalMeter reports no signal until the pipeline has processed a buffer at the
// device's current frequency, so buffers queued before a retune are never measured.
type signalMeter struct {
	pipeline *dsp.Pipeline
	device   *sdr.Device
}

func (m signalMeter) SignalStrength() float64 {
	if m.pipeline.Spectrum().CenterFrequency != m.device.Frequency() {
		return math.Inf(-1)
	}
	return m.pipeline.SignalStrength()
}

func logEvents(ctx context.Context, logger *slog.Logger, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e := e.(type) {
			case event.ModeChanged:
				logger.Info("demodulator changed", slog.String("mode", e.Mode.String()))
			case event.SquelchChanged:
				logger.Info("squelch changed", slog.Bool("enabled", e.Enabled), slog.Float64("level", e.Level), slog.Float64("tone", e.ToneHz))
			case event.AGCChanged:
				logger.Info("AGC changed", slog.Bool("enabled", e.Enabled), slog.String("profile", e.Profile))
			case event.ScannerStateChanged:
				logger.Debug("scanner state", slog.String("state", e.State), slog.Float64("frequency", e.Frequency))
			}
		}
	}
}
