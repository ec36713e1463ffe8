// Package audio provides the sinks demodulated audio is written to.
package audio

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"hz.tools/pulseaudio"
)

const DefaultVolume = 1.0

type writer interface {
	Write([]float32) error
}

// PulseSink plays mono float32 audio through PulseAudio.
type PulseSink struct {
	mu     sync.Mutex
	w      writer
	buf    []float32
	volume atomic.Uint32 // float32 bits
}

// NewPulseSink opens a playback stream at rate Hz.
func NewPulseSink(rate uint, stream string) (*PulseSink, error) {
	w, err := pulseaudio.NewWriter(pulseaudio.Config{
		Format:     pulseaudio.SampleFormatFloat32NE,
		Rate:       rate,
		AppName:    "radio-scanner",
		StreamName: stream,
		Channels:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("opening pulseaudio stream: %w", err)
	}
	return newPulseSink(w), nil
}

func newPulseSink(w writer) *PulseSink {
	s := PulseSink{w: w}
	s.SetVolume(DefaultVolume)
	return &s
}

// SetVolume sets the linear output gain, clamped to [0, 4].
func (s *PulseSink) SetVolume(v float32) {
	v = min(max(v, 0), 4)
	s.volume.Store(math.Float32bits(v))
}

func (s *PulseSink) Volume() float32 {
	return math.Float32frombits(s.volume.Load())
}

func (s *PulseSink) Write(ctx context.Context, samples []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return io.ErrClosedPipe
	}

	v := s.Volume()
	if cap(s.buf) < len(samples) {
		s.buf = make([]float32, len(samples))
	}
	buf := s.buf[:len(samples)]
	for i, x := range samples {
		buf[i] = min(max(x*v, -1), 1)
	}
	return s.w.Write(buf)
}

func (s *PulseSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return nil
	}
	w := s.w
	s.w = nil
	if c, ok := w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Discard drops audio, counting the samples. It is the sink of headless runs.
type Discard struct {
	samples atomic.Uint64
}

func (d *Discard) Write(ctx context.Context, samples []float32) error {
	d.samples.Add(uint64(len(samples)))
	return ctx.Err()
}

func (d *Discard) Samples() uint64 {
	return d.samples.Load()
}
