package app

import (
	"io"
	"log/slog"
	"testing"

	"github.com/eiannone/keyboard"

	"github.com/roman-kulish/radio-scanner/internal/demod"
)

type fakeScanner struct {
	toggles, skips int
	lockouts       []float64
	frequency      float64
}

func (f *fakeScanner) Toggle()            { f.toggles++ }
func (f *fakeScanner) Skip()              { f.skips++ }
func (f *fakeScanner) Lockout(hz float64) { f.lockouts = append(f.lockouts, hz) }
func (f *fakeScanner) Frequency() float64 { return f.frequency }

type fakeReceiver struct {
	mode    demod.Mode
	squelch bool
	agc     bool
}

func (f *fakeReceiver) Mode() demod.Mode { return f.mode }
func (f *fakeReceiver) SetMode(m demod.Mode) error {
	f.mode = m
	return nil
}
func (f *fakeReceiver) SquelchEnabled() bool { return f.squelch }
func (f *fakeReceiver) EnableSquelch(b bool) { f.squelch = b }
func (f *fakeReceiver) AGCEnabled() bool     { return f.agc }
func (f *fakeReceiver) EnableAGC(b bool)     { f.agc = b }

func newTestControls(scanning bool) (*controls, *fakeScanner, *fakeReceiver) {
	s := &fakeScanner{frequency: 146_520_000}
	r := &fakeReceiver{mode: demod.FM}
	return &controls{
		scanner:  s,
		receiver: r,
		scanning: scanning,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, s, r
}

func TestControls_Quit(t *testing.T) {
	tests := []struct {
		char rune
		key  keyboard.Key
	}{
		{'q', 0},
		{'Q', 0},
		{0, keyboard.KeyEsc},
		{0, keyboard.KeyCtrlC},
	}

	for _, tt := range tests {
		c, _, _ := newTestControls(true)
		if !c.handleKey(tt.char, tt.key) {
			t.Errorf("Expected quit for %q/%v", tt.char, tt.key)
		}
	}
}

func TestControls_Scanner(t *testing.T) {
	c, s, _ := newTestControls(true)

	for _, ch := range []rune{'n', 'N', 'l'} {
		if c.handleKey(ch, 0) {
			t.Fatalf("%q must not quit", ch)
		}
	}
	c.handleKey(0, keyboard.KeySpace)

	if s.toggles != 1 || s.skips != 2 {
		t.Errorf("toggles = %d, skips = %d", s.toggles, s.skips)
	}
	if len(s.lockouts) != 1 || s.lockouts[0] != 146_520_000 {
		t.Errorf("lockouts = %v", s.lockouts)
	}
}

func TestControls_ScannerDisabled(t *testing.T) {
	c, s, _ := newTestControls(false)

	c.handleKey(0, keyboard.KeySpace)
	c.handleKey('n', 0)
	c.handleKey('l', 0)

	if s.toggles != 0 || s.skips != 0 || len(s.lockouts) != 0 {
		t.Errorf("Expected no scanner commands, got %+v", s)
	}
}

func TestControls_Receiver(t *testing.T) {
	c, _, r := newTestControls(false)

	c.handleKey('m', 0)
	if r.mode != demod.WFM {
		t.Errorf("mode = %v, want WFM", r.mode)
	}
	for range demod.Modes {
		c.handleKey('m', 0)
	}
	if r.mode != demod.WFM {
		t.Errorf("Expected a full cycle to return to WFM, got %v", r.mode)
	}

	c.handleKey('s', 0)
	c.handleKey('a', 0)
	if !r.squelch || !r.agc {
		t.Errorf("Expected squelch and AGC enabled, got %+v", r)
	}
	c.handleKey('S', 0)
	c.handleKey('A', 0)
	if r.squelch || r.agc {
		t.Errorf("Expected squelch and AGC disabled, got %+v", r)
	}
}
