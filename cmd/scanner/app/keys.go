package app

import (
	"context"
	"log/slog"
	"slices"

	"github.com/eiannone/keyboard"

	"github.com/roman-kulish/radio-scanner/internal/demod"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
)

const keyHelp = "space pause/resume · n skip · l lockout · m mode · s squelch · a AGC · q quit"

type scanControl interface {
	Toggle()
	Skip()
	Lockout(hz float64)
	Frequency() float64
}

type receiverControl interface {
	Mode() demod.Mode
	SetMode(demod.Mode) error
	SquelchEnabled() bool
	EnableSquelch(bool)
	AGCEnabled() bool
	EnableAGC(bool)
}

// controls maps operator keys onto the scanner and the receiver.
type controls struct {
	scanner  scanControl
	receiver receiverControl
	scanning bool
	logger   *slog.Logger
}

// handleKey applies one key press and reports whether the operator asked to quit.
func (c *controls) handleKey(char rune, key keyboard.Key) (quit bool) {
	switch {
	case key == keyboard.KeyCtrlC || key == keyboard.KeyEsc || char == 'q' || char == 'Q':
		return true

	case key == keyboard.KeySpace:
		if c.scanning {
			c.scanner.Toggle()
		}

	case char == 'n' || char == 'N':
		if c.scanning {
			c.scanner.Skip()
		}

	case char == 'l' || char == 'L':
		if c.scanning {
			hz := c.scanner.Frequency()
			c.scanner.Lockout(hz)
			c.logger.Info("frequency locked out", slog.String("frequency", sdr.FormatFrequency(hz)))
		}

	case char == 'm' || char == 'M':
		i := slices.Index(demod.Modes, c.receiver.Mode())
		next := demod.Modes[(i+1)%len(demod.Modes)]
		if err := c.receiver.SetMode(next); err != nil {
			c.logger.Warn("failed to change mode", slog.Any("error", err))
		}

	case char == 's' || char == 'S':
		c.receiver.EnableSquelch(!c.receiver.SquelchEnabled())

	case char == 'a' || char == 'A':
		c.receiver.EnableAGC(!c.receiver.AGCEnabled())
	}
	return false
}

// readKeys processes key presses until ctx is done or a quit key is pressed, in
// which case stop is called.
func (c *controls) readKeys(ctx context.Context, stop context.CancelFunc) error {
	keys, err := keyboard.GetKeys(8)
	if err != nil {
		return err
	}
	defer func() { _ = keyboard.Close() }()

	c.logger.Info("keyboard controls enabled", slog.String("keys", keyHelp))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-keys:
			if ev.Err != nil {
				return ev.Err
			}
			if c.handleKey(ev.Rune, ev.Key) {
				stop()
				return nil
			}
		}
	}
}
