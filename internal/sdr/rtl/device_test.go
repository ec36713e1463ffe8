package rtl

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
)

// fakeServer speaks just enough rtl_tcp: the greeting, then it records commands and
// streams whatever is written to iq.
type fakeServer struct {
	listener net.Listener
	commands chan [commandSize]byte
	iq       chan []byte
}

func newFakeServer(t *testing.T, tuner TunerType) *fakeServer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	s := &fakeServer{
		listener: l,
		commands: make(chan [commandSize]byte, 16),
		iq:       make(chan []byte, 16),
	}

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		greeting := make([]byte, dongleInfoSize)
		copy(greeting, magic)
		binary.BigEndian.PutUint32(greeting[4:], uint32(tuner))
		binary.BigEndian.PutUint32(greeting[8:], 29)
		if _, err := conn.Write(greeting); err != nil {
			return
		}

		go func() {
			for {
				var cmd [commandSize]byte
				if _, err := io.ReadFull(conn, cmd[:]); err != nil {
					return
				}
				s.commands <- cmd
			}
		}()

		for chunk := range s.iq {
			if _, err := conn.Write(chunk); err != nil {
				return
			}
		}
	}()

	return s
}

func openFake(t *testing.T, s *fakeServer) sdr.Handle {
	t.Helper()

	drv, err := New(&Config{Address: s.listener.Addr().String()})
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}

	h, err := drv.Open(context.Background())
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHandle_Greeting(t *testing.T) {
	s := newFakeServer(t, TunerE4000)
	h := openFake(t, s)

	caps := h.Capabilities()
	if caps.FrequencyRange.Min != 52e6 || caps.FrequencyRange.Max != 2.2e9 {
		t.Errorf("Expected E4000 range, got %+v", caps.FrequencyRange)
	}
}

func TestHandle_Commands(t *testing.T) {
	s := newFakeServer(t, TunerR820T)
	h := openFake(t, s)

	if err := h.SetFrequency(146_520_000); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if err := h.SetGain(28.6); err != nil {
		t.Fatalf("SetGain: %v", err)
	}
	if err := h.SetCorrection(sdr.Correction{PPM: -3}); err != nil {
		t.Fatalf("SetCorrection: %v", err)
	}

	expected := []struct {
		cmd   byte
		param uint32
	}{
		{cmdSetFrequency, 146_520_000},
		{cmdSetGain, 286},
		{cmdSetFreqCorrection, uint32(0xfffffffd)},
	}

	for i, want := range expected {
		select {
		case got := <-s.commands:
			if got[0] != want.cmd {
				t.Errorf("command %d: expected opcode 0x%02x, got 0x%02x", i, want.cmd, got[0])
			}
			if param := binary.BigEndian.Uint32(got[1:]); param != want.param {
				t.Errorf("command %d: expected param %d, got %d", i, want.param, param)
			}
		case <-time.After(time.Second):
			t.Fatalf("command %d: not received", i)
		}
	}
}

func TestHandle_ReadStream(t *testing.T) {
	s := newFakeServer(t, TunerR820T)
	h := openFake(t, s)

	buf := make([]complex64, 4)
	if _, _, err := h.ReadStream(buf, 10*time.Millisecond); !errors.Is(err, sdr.ErrStreamingFailed) {
		t.Errorf("Expected ErrStreamingFailed before Activate, got %v", err)
	}

	if err := h.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if _, _, err := h.ReadStream(buf, 10*time.Millisecond); !errors.Is(err, sdr.ErrTimeout) {
		t.Errorf("Expected ErrTimeout with no data, got %v", err)
	}

	// Three bytes: one full sample plus a dangling I that must carry over.
	s.iq <- []byte{255, 0, 128}
	n, _, err := h.ReadStream(buf, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 sample, got %d", n)
	}
	if real(buf[0]) != 1 || imag(buf[0]) != -1 {
		t.Errorf("Expected (1,-1), got %v", buf[0])
	}

	s.iq <- []byte{128}
	n, _, err = h.ReadStream(buf, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected the carried byte to complete a sample, got %d samples", n)
	}
}

func TestConfig_Args(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		want    []string
		wantErr bool
	}{
		{
			name:   "defaults",
			config: Config{},
			want:   []string{"-a", "127.0.0.1", "-p", "1234", "-d", "0"},
		},
		{
			name:   "full",
			config: Config{Host: "0.0.0.0", Port: 5555, DeviceIndex: 1, PPMError: -2, Buffers: 32, BiasTee: true},
			want:   []string{"-a", "0.0.0.0", "-p", "5555", "-d", "1", "-P", "-2", "-b", "32", "-T"},
		},
		{
			name:    "remote is not spawned",
			config:  Config{Address: "pi.local:1234"},
			wantErr: true,
		},
		{
			name:    "bad address",
			config:  Config{Address: "pi.local"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.config.Args()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Args() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Args() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Args()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseDeviceList(t *testing.T) {
	out := []byte(`Found 2 device(s):
  0:  Realtek, RTL2838UHIDIR, SN: 00000001
  1:  RTLSDRBlog, Blog V4, SN: 00000002

Using device 0: Generic RTL2832U OEM
No E4000 tuner found, aborting.
`)

	devices := parseDeviceList(out)
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices))
	}
	if devices[1].ID != "1" || devices[1].Name != "RTLSDRBlog Blog V4" || devices[1].Serial != "00000002" {
		t.Errorf("Unexpected device: %+v", devices[1])
	}
}
