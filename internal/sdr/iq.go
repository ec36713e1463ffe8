package sdr

import (
	"time"

	"github.com/dustin/go-humanize"
)

// IQBuffer is one block of complex baseband samples. It is immutable after creation
// and is consumed exactly once.
type IQBuffer struct {
	Samples         []complex64
	Timestamp       time.Time
	CenterFrequency float64 // Hz
	SampleRate      float64 // Hz
	Overflow        bool    // hardware dropped samples before this block
}

// Duration returns the time span covered by the buffer.
func (b IQBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / b.SampleRate * float64(time.Second))
}

// DeinterleaveU8 converts unsigned 8-bit interleaved I/Q (RTL-SDR) into complex samples
// and returns the number of samples written.
func DeinterleaveU8(dst []complex64, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		re := (float32(src[2*i]) - 127.5) / 127.5
		im := (float32(src[2*i+1]) - 127.5) / 127.5
		dst[i] = complex(re, im)
	}
	return n
}

// DeinterleaveS8 converts signed 8-bit interleaved I/Q (HackRF) into complex samples
// and returns the number of samples written.
func DeinterleaveS8(dst []complex64, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		re := float32(int8(src[2*i])) / 128
		im := float32(int8(src[2*i+1])) / 128
		dst[i] = complex(re, im)
	}
	return n
}

// FormatFrequency renders a frequency in Hz with an SI prefix, e.g. "144.0125 MHz".
func FormatFrequency(hz float64) string {
	return humanize.SIWithDigits(hz, 4, "Hz")
}
