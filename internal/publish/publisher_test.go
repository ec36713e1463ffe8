package publish

import (
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roman-kulish/radio-scanner/internal/demod"
	"github.com/roman-kulish/radio-scanner/internal/event"
	"github.com/roman-kulish/radio-scanner/internal/sdr/driver"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type message struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	messages []message
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, message{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) {}

func TestPublisher_Publish(t *testing.T) {
	c := &fakeClient{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := newPublisher(c, &Config{Broker: "tcp://localhost:1883", TopicPrefix: "home/scanner", Interval: driver.NewTimeDuration(time.Second)})
	p.now = func() time.Time { return now }

	events := []event.Event{
		event.Activity{Frequency: 146_520_000, Mode: demod.FM, Strength: -42, Detected: true, Time: now},
		event.SignalStrength{Frequency: 146_520_000, Level: -42},
		event.SignalStrength{Frequency: 146_520_000, Level: -41}, // throttled
		event.ScannerTuned{Frequency: 146_525_000},
		event.ScannerTuned{Frequency: 146_530_000},
	}
	for _, e := range events {
		if err := p.Publish(e); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	now = now.Add(time.Second)
	if err := p.Publish(event.SignalStrength{Level: -40}); err != nil {
		t.Fatal(err)
	}

	wantTopics := []string{
		"home/scanner/scanner/activity",
		"home/scanner/signal",
		"home/scanner/scanner/frequency",
		"home/scanner/scanner/frequency",
		"home/scanner/signal",
	}
	if len(c.messages) != len(wantTopics) {
		t.Fatalf("published %d messages, want %d", len(c.messages), len(wantTopics))
	}
	for i, want := range wantTopics {
		if c.messages[i].topic != want {
			t.Errorf("message %d topic = %q, want %q", i, c.messages[i].topic, want)
		}
	}

	var got struct {
		Kind string `json:"kind"`
		Data struct {
			Frequency float64 `json:"frequency"`
			Mode      string  `json:"mode"`
			Detected  bool    `json:"detected"`
		} `json:"data"`
	}
	if err := json.Unmarshal(c.messages[0].payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Kind != "scanner/activity" || got.Data.Frequency != 146_520_000 || got.Data.Mode != "FM" || !got.Data.Detected {
		t.Errorf("payload = %s", c.messages[0].payload)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{Broker: "tcp://localhost:1883"}, false},
		{"websocket", Config{Broker: "wss://broker.example.com/mqtt", QoS: 1}, false},
		{"missing broker", Config{}, true},
		{"bad scheme", Config{Broker: "http://localhost"}, true},
		{"bad qos", Config{Broker: "tcp://localhost:1883", QoS: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
