package rtl

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
)

// rtl_tcp control commands. Each is sent as one opcode byte followed by a
// big-endian uint32 parameter.
const (
	cmdSetFrequency      byte = 0x01
	cmdSetSampleRate     byte = 0x02
	cmdSetGainMode       byte = 0x03
	cmdSetGain           byte = 0x04
	cmdSetFreqCorrection byte = 0x05
	cmdSetAGCMode        byte = 0x08
	cmdSetDirectSampling byte = 0x09
	cmdSetOffsetTuning   byte = 0x0a
	cmdSetBiasTee        byte = 0x0e
)

const (
	magic          = "RTL0"
	dongleInfoSize = 12
	commandSize    = 5
)

// TunerType as reported in the rtl_tcp greeting.
type TunerType uint32

const (
	TunerUnknown TunerType = iota
	TunerE4000
	TunerFC0012
	TunerFC0013
	TunerFC2580
	TunerR820T
	TunerR828D
)

func (t TunerType) String() string {
	switch t {
	case TunerE4000:
		return "E4000"
	case TunerFC0012:
		return "FC0012"
	case TunerFC0013:
		return "FC0013"
	case TunerFC2580:
		return "FC2580"
	case TunerR820T:
		return "R820T"
	case TunerR828D:
		return "R828D"
	default:
		return "unknown"
	}
}

// FrequencyRange returns the tuning range of the tuner chip.
func (t TunerType) FrequencyRange() sdr.Range {
	switch t {
	case TunerE4000:
		return sdr.Range{Min: 52e6, Max: 2.2e9}
	case TunerFC0012:
		return sdr.Range{Min: 22e6, Max: 948.6e6}
	case TunerFC0013:
		return sdr.Range{Min: 22e6, Max: 1.1e9}
	case TunerFC2580:
		return sdr.Range{Min: 146e6, Max: 924e6}
	default:
		return sdr.Range{Min: 24e6, Max: 1.766e9}
	}
}

type dongleInfo struct {
	Tuner     TunerType
	GainCount uint32
}

func readDongleInfo(r io.Reader) (dongleInfo, error) {
	var raw [dongleInfoSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return dongleInfo{}, fmt.Errorf("error reading dongle info: %w", err)
	}
	if string(raw[:4]) != magic {
		return dongleInfo{}, fmt.Errorf("unexpected greeting %q", raw[:4])
	}

	return dongleInfo{
		Tuner:     TunerType(binary.BigEndian.Uint32(raw[4:8])),
		GainCount: binary.BigEndian.Uint32(raw[8:12]),
	}, nil
}

func writeCommand(w io.Writer, cmd byte, param uint32) error {
	var raw [commandSize]byte
	raw[0] = cmd
	binary.BigEndian.PutUint32(raw[1:], param)

	if _, err := w.Write(raw[:]); err != nil {
		return fmt.Errorf("error sending command 0x%02x: %w", cmd, err)
	}
	return nil
}

func boolParam(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
