package scanner

import (
	"fmt"
	"strings"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/demod"
)

const (
	// HitTolerance is how close a detection must be to an entry to count as the same channel.
	HitTolerance = 100.0 // Hz

	MaxActiveFrequencies = 20
	MaxActivityLog       = 100
)

// Mode selects what the scanner sweeps.
type Mode int

const (
	RangeMode Mode = iota
	MemoryMode
	PriorityMode
)

func (m Mode) String() string {
	switch m {
	case RangeMode:
		return "range"
	case MemoryMode:
		return "memory"
	case PriorityMode:
		return "priority"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "range":
		return RangeMode, nil
	case "memory":
		return MemoryMode, nil
	case "priority":
		return PriorityMode, nil
	default:
		return 0, fmt.Errorf("unknown scan mode %q", s)
	}
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Direction of the sweep.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

func (d *Direction) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "up", "":
		*d = Up
	case "down":
		*d = Down
	default:
		return fmt.Errorf("unknown scan direction %q", text)
	}
	return nil
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Settings are read at every scan step, changes apply from the next step.
type Settings struct {
	Squelch        float64       // dB, a channel is active when its strength exceeds this
	HoldTime       time.Duration // minimum dwell on an active channel
	ResumeDelay    time.Duration // wait after the signal drops before moving on
	ScanSpeed      time.Duration // settle time per step before measuring
	PollInterval   time.Duration // strength polling period while holding
	StepSize       float64       // Hz, range mode
	LockoutEnabled bool

	PriorityInterval int           // normal steps between priority checks, 0 disables
	PrioritySettle   time.Duration // settle time per priority channel

	Direction Direction
}

func DefaultSettings() Settings {
	return Settings{
		Squelch:          -60,
		HoldTime:         2 * time.Second,
		ResumeDelay:      2 * time.Second,
		ScanSpeed:        100 * time.Millisecond,
		PollInterval:     100 * time.Millisecond,
		StepSize:         12_500,
		LockoutEnabled:   true,
		PriorityInterval: 10,
		PrioritySettle:   50 * time.Millisecond,
		Direction:        Up,
	}
}

func (s Settings) Validate() error {
	if s.StepSize <= 0 {
		return fmt.Errorf("step size must be positive: %v", s.StepSize)
	}
	if s.HoldTime < 0 || s.ResumeDelay < 0 || s.ScanSpeed < 0 || s.PollInterval < 0 || s.PrioritySettle < 0 {
		return fmt.Errorf("scanner durations must not be negative")
	}
	if s.PriorityInterval < 0 {
		return fmt.Errorf("priority interval must not be negative: %d", s.PriorityInterval)
	}
	return nil
}

// Entry is a memory channel.
type Entry struct {
	Frequency  float64    `json:"frequency"`
	Mode       demod.Mode `json:"mode"`
	Label      string     `json:"label,omitempty"`
	Locked     bool       `json:"locked"`
	Priority   bool       `json:"priority"`
	Hits       int        `json:"hits"`
	LastActive time.Time  `json:"lastActive"`
}

func (e Entry) matches(hz float64) bool {
	return within(e.Frequency, hz)
}

func within(a, b float64) bool {
	d := a - b
	return d <= HitTolerance && d >= -HitTolerance
}
