// Package scanner steps the receiver through a frequency range or a list of memory
// channels, stops on activity and resumes once the channel goes quiet.
//
// All state transitions happen on the scan goroutine. Control methods only queue a
// command or edit the channel lists, so a Skip or Pause never races with a hold.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/demod"
	"github.com/roman-kulish/radio-scanner/internal/event"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
)

var (
	ErrRunning       = errors.New("scanner is already running")
	ErrEntryNotFound = errors.New("memory entry not found")
	ErrEntryExists   = errors.New("memory entry already exists")
)

// Tuner retunes the receiver.
type Tuner interface {
	Tune(hz float64) error
}

// SignalMeter reports the current signal strength near the tuned frequency in dB.
type SignalMeter interface {
	SignalStrength() float64
}

// ModeSwitcher is told the demodulation mode of each memory channel as it is tuned.
type ModeSwitcher interface {
	SetMode(mode demod.Mode) error
}

type command int

const (
	cmdPause command = iota + 1
	cmdResume
	cmdSkip
)

func WithLogger(logger *slog.Logger) func(*Scanner) {
	return func(s *Scanner) {
		s.logger = logger
	}
}

func WithBus(bus *event.Bus) func(*Scanner) {
	return func(s *Scanner) {
		s.bus = bus
	}
}

func WithModeSwitcher(m ModeSwitcher) func(*Scanner) {
	return func(s *Scanner) {
		s.modes = m
	}
}

// WithDefaultMode sets the mode reported for activity found in range mode.
func WithDefaultMode(mode demod.Mode) func(*Scanner) {
	return func(s *Scanner) {
		s.defaultMode = mode
	}
}

// WithClock replaces time.Now for activity timestamps.
func WithClock(now func() time.Time) func(*Scanner) {
	return func(s *Scanner) {
		s.now = now
	}
}

type Scanner struct {
	tuner       Tuner
	meter       SignalMeter
	modes       ModeSwitcher
	logger      *slog.Logger
	bus         *event.Bus
	now         func() time.Time
	defaultMode demod.Mode

	commands chan command

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	settings   Settings
	mode       Mode
	state      State
	frequency  float64
	rangeStart float64
	rangeEnd   float64
	rangeIndex int
	entries    []Entry
	entryIndex int
	lockouts   []float64
	active     []Entry
	activity   []event.Activity

	// scan goroutine only
	steps         int
	lastPriority  int
	pendingPause  bool
	appliedMode   demod.Mode
	modeApplied   bool
}

// New creates an idle scanner in range mode with no range set.
func New(tuner Tuner, meter SignalMeter, settings Settings, options ...func(*Scanner)) (*Scanner, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("scanner settings: %w", err)
	}

	s := Scanner{
		tuner:       tuner,
		meter:       meter,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		defaultMode: demod.FM,
		commands:    make(chan command, 8),
		settings:    settings,
		state:       Idle(),
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Frequency is the frequency currently tuned by the scanner.
func (s *Scanner) Frequency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}

func (s *Scanner) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches between range, memory and priority scanning. The position
// restarts at the beginning of the new list.
func (s *Scanner) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.rangeIndex = 0
	s.entryIndex = 0
}

func (s *Scanner) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings applies from the next scan step.
func (s *Scanner) SetSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("scanner settings: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

// SetRange sets the band swept in range mode.
func (s *Scanner) SetRange(start, end float64) error {
	if start <= 0 || end <= start {
		return fmt.Errorf("invalid scan range %s - %s", sdr.FormatFrequency(start), sdr.FormatFrequency(end))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rangeStart, s.rangeEnd = start, end
	s.rangeIndex = 0
	return nil
}

func (s *Scanner) Range() (start, end float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rangeStart, s.rangeEnd
}

// Start launches the scan loop. It runs until ctx is cancelled or Stop is called.
func (s *Scanner) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
			// the previous loop ended with its parent context
		default:
			return ErrRunning
		}
	}

	s.mu.Lock()
	err := s.checkRunnable()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	// drain commands queued while idle
	for len(s.commands) > 0 {
		<-s.commands
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.steps, s.lastPriority, s.pendingPause, s.modeApplied = 0, 0, false, false

	go s.loop(ctx, s.done)

	return nil
}

// Stop cancels any hold and waits for the scan loop to exit. The scanner is Idle
// when Stop returns.
func (s *Scanner) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.done, s.cancel = nil, nil
}

// Wait blocks until the scan loop exits.
func (s *Scanner) Wait() {
	s.runMu.Lock()
	done := s.done
	s.runMu.Unlock()
	if done != nil {
		<-done
	}
}

// Pause stops sweeping on the current frequency. A pause requested while holding
// takes effect once the hold ends.
func (s *Scanner) Pause() { s.send(cmdPause) }

func (s *Scanner) Resume() { s.send(cmdResume) }

// Skip abandons the current frequency, cancelling any hold in progress.
func (s *Scanner) Skip() { s.send(cmdSkip) }

// Toggle pauses a running scan or resumes a paused one.
func (s *Scanner) Toggle() {
	if s.State().Kind() == KindPaused {
		s.Resume()
		return
	}
	s.Pause()
}

func (s *Scanner) send(c command) {
	select {
	case s.commands <- c:
	default:
		s.logger.Warn("scanner command dropped", slog.Int("command", int(c)))
	}
}

func (s *Scanner) checkRunnable() error {
	if s.mode == RangeMode && s.rangeEnd <= s.rangeStart {
		return errors.New("scan range is not set")
	}
	return nil
}

func (s *Scanner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.setState(Idle())

	s.setState(Scanning())
	s.logger.Info("scanner started", slog.String("mode", s.Mode().String()))

	for ctx.Err() == nil {
		if err := s.step(ctx); err != nil {
			break
		}
	}

	s.logger.Info("scanner stopped")
}

// step performs one scan step: an optional priority check, then tune, settle,
// measure and either hold or advance.
func (s *Scanner) step(ctx context.Context) error {
	settings := s.Settings()

	if s.pendingPause {
		return s.paused(ctx)
	}

	if s.priorityDue(settings) {
		s.lastPriority = s.steps
		hit, strength, err := s.checkPriority(ctx, settings)
		if err != nil {
			return err
		}
		if s.pendingPause {
			return s.paused(ctx)
		}
		if hit != nil {
			// the interrupted normal step is not consumed
			return s.hold(ctx, settings, *hit, strength)
		}
	}

	entry, ok := s.current()
	if !ok {
		// nothing to scan, idle on the loop until something is added
		cmd, err := s.wait(ctx, max(settings.ScanSpeed, 10*time.Millisecond), false)
		if err == nil && cmd == cmdPause {
			return s.paused(ctx)
		}
		return err
	}

	if err := s.tune(entry); err != nil {
		s.logger.Warn("failed to tune",
			slog.String("frequency", sdr.FormatFrequency(entry.Frequency)),
			slog.Any("error", err))
		s.Advance()
		// already advanced, a Skip here has nothing left to do
		cmd, err := s.wait(ctx, settings.ScanSpeed, false)
		if err == nil && cmd == cmdPause {
			return s.paused(ctx)
		}
		return err
	}

	cmd, err := s.wait(ctx, settings.ScanSpeed, false)
	if err != nil {
		return err
	}
	switch cmd {
	case cmdPause:
		return s.paused(ctx)
	case cmdSkip:
		s.Advance()
		s.steps++
		return nil
	}

	strength := s.meter.SignalStrength()
	if strength > settings.Squelch && !s.lockedOut(settings, entry.Frequency) {
		if err := s.hold(ctx, settings, entry, strength); err != nil {
			return err
		}
	}

	s.Advance()
	s.steps++
	return nil
}

// hold stays on an active channel for HoldTime, then until the signal drops below
// squelch, then for ResumeDelay. Skip ends it early.
func (s *Scanner) hold(ctx context.Context, settings Settings, entry Entry, strength float64) error {
	s.setState(Holding(entry.Frequency))
	s.recordHit(entry, strength)

	s.logger.Info("activity detected",
		slog.String("frequency", sdr.FormatFrequency(entry.Frequency)),
		slog.Float64("strength", strength),
		slog.String("label", entry.Label))

	skipped, err := s.holdPhases(ctx, settings)
	if err != nil {
		return err
	}

	last := s.meter.SignalStrength()
	s.recordActivity(event.Activity{
		Frequency: entry.Frequency,
		Mode:      entry.Mode,
		Strength:  last,
		Detected:  false,
		Label:     entry.Label,
		Time:      s.now(),
	})
	s.logger.Info("activity ended",
		slog.String("frequency", sdr.FormatFrequency(entry.Frequency)),
		slog.Bool("skipped", skipped))

	s.setState(Scanning())
	return nil
}

func (s *Scanner) holdPhases(ctx context.Context, settings Settings) (skipped bool, err error) {
	cmd, err := s.wait(ctx, settings.HoldTime, true)
	if err != nil || cmd == cmdSkip {
		return cmd == cmdSkip, err
	}

	poll := max(settings.PollInterval, time.Millisecond)
	for s.meter.SignalStrength() > settings.Squelch {
		cmd, err = s.wait(ctx, poll, true)
		if err != nil || cmd == cmdSkip {
			return cmd == cmdSkip, err
		}
	}

	cmd, err = s.wait(ctx, settings.ResumeDelay, true)
	return cmd == cmdSkip, err
}

// paused blocks until Resume or cancellation.
func (s *Scanner) paused(ctx context.Context) error {
	s.pendingPause = false
	s.setState(Paused())
	s.logger.Info("scanner paused", slog.String("frequency", sdr.FormatFrequency(s.Frequency())))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.commands:
			if cmd == cmdResume {
				s.setState(Scanning())
				s.logger.Info("scanner resumed")
				return nil
			}
		}
	}
}

// wait sleeps for d and returns early with the first command that needs handling.
// While holding, Pause is remembered for later and Resume cancels it.
func (s *Scanner) wait(ctx context.Context, d time.Duration, holding bool) (command, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			return 0, nil
		case cmd := <-s.commands:
			switch {
			case cmd == cmdSkip:
				return cmd, nil
			case cmd == cmdPause && holding:
				s.pendingPause = true
			case cmd == cmdResume && holding:
				s.pendingPause = false
			case cmd == cmdPause:
				return cmd, nil
			}
		}
	}
}

func (s *Scanner) tune(entry Entry) error {
	if err := s.tuner.Tune(entry.Frequency); err != nil {
		return err
	}
	if s.modes != nil && (!s.modeApplied || entry.Mode != s.appliedMode) {
		if err := s.modes.SetMode(entry.Mode); err != nil {
			s.logger.Warn("failed to switch mode", slog.String("mode", entry.Mode.String()), slog.Any("error", err))
		} else {
			s.appliedMode, s.modeApplied = entry.Mode, true
		}
	}

	s.mu.Lock()
	s.frequency = entry.Frequency
	s.mu.Unlock()

	s.bus.Publish(event.ScannerTuned{Frequency: entry.Frequency})
	return nil
}

func (s *Scanner) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev == state {
		return
	}

	hz, _ := state.HoldFrequency()
	s.bus.Publish(event.ScannerStateChanged{
		State:     state.Kind().String(),
		Frequency: hz,
		Time:      s.now(),
	})
}

func (s *Scanner) priorityDue(settings Settings) bool {
	if settings.PriorityInterval <= 0 || s.steps-s.lastPriority < settings.PriorityInterval {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == PriorityMode {
		// every step is already a priority channel
		return false
	}
	for _, e := range s.entries {
		if e.Priority && !e.Locked {
			return true
		}
	}
	return false
}

// checkPriority visits every unlocked priority channel and returns the first active one.
func (s *Scanner) checkPriority(ctx context.Context, settings Settings) (*Entry, float64, error) {
	s.mu.Lock()
	var channels []Entry
	for _, e := range s.entries {
		if e.Priority && !e.Locked {
			channels = append(channels, e)
		}
	}
	s.mu.Unlock()

	for _, e := range channels {
		if err := s.tune(e); err != nil {
			s.logger.Warn("failed to tune priority channel",
				slog.String("frequency", sdr.FormatFrequency(e.Frequency)),
				slog.Any("error", err))
			continue
		}
		cmd, err := s.wait(ctx, settings.PrioritySettle, false)
		if err != nil {
			return nil, 0, err
		}
		switch cmd {
		case cmdPause:
			s.pendingPause = true
			return nil, 0, nil
		case cmdSkip:
			// the rest of the sweep is abandoned, normal scanning continues
			return nil, 0, nil
		}
		if strength := s.meter.SignalStrength(); strength > settings.Squelch && !s.lockedOut(settings, e.Frequency) {
			return &e, strength, nil
		}
	}

	return nil, 0, nil
}
