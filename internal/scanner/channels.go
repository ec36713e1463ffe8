package scanner

import (
	"fmt"
	"math"
	"slices"

	"github.com/roman-kulish/radio-scanner/internal/event"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
)

// AddEntry appends a memory channel.
func (s *Scanner) AddEntry(e Entry) error {
	if e.Frequency <= 0 {
		return fmt.Errorf("invalid memory frequency: %v", e.Frequency)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findEntry(e.Frequency) >= 0 {
		return fmt.Errorf("%s: %w", sdr.FormatFrequency(e.Frequency), ErrEntryExists)
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *Scanner) RemoveEntry(hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findEntry(hz)
	if i < 0 {
		return fmt.Errorf("%s: %w", sdr.FormatFrequency(hz), ErrEntryNotFound)
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	return nil
}

// Entries returns a copy of the memory channels.
func (s *Scanner) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// SetLocked excludes a memory channel from memory and priority scanning.
func (s *Scanner) SetLocked(hz float64, locked bool) error {
	return s.updateEntry(hz, func(e *Entry) { e.Locked = locked })
}

func (s *Scanner) SetPriority(hz float64, priority bool) error {
	return s.updateEntry(hz, func(e *Entry) { e.Priority = priority })
}

func (s *Scanner) updateEntry(hz float64, update func(*Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findEntry(hz)
	if i < 0 {
		return fmt.Errorf("%s: %w", sdr.FormatFrequency(hz), ErrEntryNotFound)
	}
	update(&s.entries[i])
	return nil
}

func (s *Scanner) findEntry(hz float64) int {
	return slices.IndexFunc(s.entries, func(e Entry) bool { return e.matches(hz) })
}

// Lockout adds hz to the lockout set. Locked out frequencies are still tuned but
// never held while lockout is enabled. Locking out the held frequency skips it.
func (s *Scanner) Lockout(hz float64) {
	s.mu.Lock()
	if !slices.ContainsFunc(s.lockouts, func(f float64) bool { return within(f, hz) }) {
		s.lockouts = append(s.lockouts, hz)
	}
	held, holding := s.state.HoldFrequency()
	s.mu.Unlock()

	if holding && within(held, hz) {
		s.Skip()
	}
}

func (s *Scanner) ClearLockout(hz float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockouts = slices.DeleteFunc(s.lockouts, func(f float64) bool { return within(f, hz) })
}

func (s *Scanner) ClearLockouts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockouts = nil
}

func (s *Scanner) Lockouts() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lockouts)
}

func (s *Scanner) lockedOut(settings Settings, hz float64) bool {
	if !settings.LockoutEnabled {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.lockouts, func(f float64) bool { return within(f, hz) })
}

// ActiveFrequencies returns channels found active in range mode, most recent first.
func (s *Scanner) ActiveFrequencies() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.active)
}

// ActivityLog returns detect and lose records, most recent first.
func (s *Scanner) ActivityLog() []event.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.activity)
}

func (s *Scanner) ClearActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = nil
	s.active = nil
}

func (s *Scanner) recordHit(entry Entry, strength float64) {
	now := s.now()

	s.mu.Lock()
	if i := s.findEntry(entry.Frequency); i >= 0 {
		s.entries[i].Hits++
		s.entries[i].LastActive = now
	} else if i := slices.IndexFunc(s.active, func(e Entry) bool { return e.matches(entry.Frequency) }); i >= 0 {
		hit := s.active[i]
		hit.Hits++
		hit.LastActive = now
		s.active = slices.Insert(slices.Delete(s.active, i, i+1), 0, hit)
	} else {
		entry.Hits = 1
		entry.LastActive = now
		s.active = slices.Insert(s.active, 0, entry)
		if len(s.active) > MaxActiveFrequencies {
			s.active = s.active[:MaxActiveFrequencies]
		}
	}
	s.mu.Unlock()

	s.recordActivity(event.Activity{
		Frequency: entry.Frequency,
		Mode:      entry.Mode,
		Strength:  strength,
		Detected:  true,
		Label:     entry.Label,
		Time:      now,
	})
}

func (s *Scanner) recordActivity(a event.Activity) {
	s.mu.Lock()
	s.activity = slices.Insert(s.activity, 0, a)
	if len(s.activity) > MaxActivityLog {
		s.activity = s.activity[:MaxActivityLog]
	}
	s.mu.Unlock()

	s.bus.Publish(a)
}

// current returns the channel at the scan position. ok is false when there is
// nothing to scan, for example every memory channel is locked.
func (s *Scanner) current() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == RangeMode {
		if s.rangeEnd <= s.rangeStart {
			return Entry{}, false
		}
		if s.rangeIndex > s.rangeSteps() {
			s.rangeIndex = 0
		}
		return Entry{Frequency: s.rangeFrequency(s.rangeIndex), Mode: s.defaultMode}, true
	}

	list := s.list()
	if len(list) == 0 {
		return Entry{}, false
	}
	idx := s.entryIndex % len(list)
	for range list {
		if e := s.entries[list[idx]]; !e.Locked {
			s.entryIndex = idx
			return e, true
		}
		idx = (idx + 1) % len(list)
	}
	return Entry{}, false
}

// Advance moves the scan position to the next channel and returns its frequency.
// Memory and priority scanning visit every unlocked channel once per cycle; ok is
// false when all of them are locked.
func (s *Scanner) Advance() (hz float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := 1
	if s.settings.Direction == Down {
		dir = -1
	}

	if s.mode == RangeMode {
		if s.rangeEnd <= s.rangeStart {
			return 0, false
		}
		last := s.rangeSteps()
		s.rangeIndex += dir
		switch {
		case s.rangeIndex > last:
			s.rangeIndex = 0
		case s.rangeIndex < 0:
			s.rangeIndex = last
		}
		return s.rangeFrequency(s.rangeIndex), true
	}

	list := s.list()
	n := len(list)
	if n == 0 {
		return 0, false
	}
	idx := s.entryIndex % n
	for i := 1; i <= n; i++ {
		j := ((idx+i*dir)%n + n) % n
		if e := s.entries[list[j]]; !e.Locked {
			s.entryIndex = j
			return e.Frequency, true
		}
	}
	return 0, false
}

// list returns indexes into entries for the current mode.
func (s *Scanner) list() []int {
	list := make([]int, 0, len(s.entries))
	for i, e := range s.entries {
		if s.mode == PriorityMode && !e.Priority {
			continue
		}
		list = append(list, i)
	}
	return list
}

// rangeSteps is the index of the last step that does not exceed the range end.
func (s *Scanner) rangeSteps() int {
	return int(math.Floor((s.rangeEnd-s.rangeStart)/s.settings.StepSize + 1e-9))
}

// rangeFrequency computes the step from the start so no rounding error accumulates.
func (s *Scanner) rangeFrequency(i int) float64 {
	return s.rangeStart + float64(i)*s.settings.StepSize
}
