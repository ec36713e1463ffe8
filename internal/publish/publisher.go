// Package publish forwards receiver and scanner events to an MQTT broker as JSON.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/roman-kulish/radio-scanner/internal/event"
)

const publishTimeout = 5 * time.Second

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Message is the JSON envelope of every published event.
type Message struct {
	Kind event.Kind  `json:"kind"`
	Time time.Time   `json:"time"`
	Data event.Event `json:"data"`
}

func WithLogger(logger *slog.Logger) func(*Publisher) {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// Publisher sends each event to <prefix>/<kind>. High rate kinds are throttled.
type Publisher struct {
	client   client
	prefix   string
	qos      byte
	retain   bool
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	last map[event.Kind]time.Time
}

// Connect connects to the broker. The client reconnects on its own afterwards.
func Connect(config *Config, options ...func(*Publisher)) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := newPublisher(nil, config, options...)

	clientID := config.ClientID
	if clientID == "" {
		clientID = "radio-scanner-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(clientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Info("connected to MQTT broker", slog.String("broker", config.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn("MQTT connection lost", slog.Any("error", err))
	})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(publishTimeout) {
		// with connect retry the client keeps trying in the background
		p.logger.Warn("MQTT broker not reachable yet", slog.String("broker", config.Broker))
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", err)
	}

	p.client = c
	return p, nil
}

func newPublisher(c client, config *Config, options ...func(*Publisher)) *Publisher {
	p := Publisher{
		client:   c,
		prefix:   config.topicPrefix(),
		qos:      config.QoS,
		retain:   config.Retain,
		interval: config.interval(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		last:     make(map[event.Kind]time.Time),
	}
	for _, option := range options {
		option(&p)
	}
	return &p
}

// Run publishes events until ctx is done or events is closed.
func (p *Publisher) Run(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(e); err != nil {
				p.logger.Warn("failed to publish event", slog.String("kind", string(e.Kind())), slog.Any("error", err))
			}
		}
	}
}

// Publish sends one event, unless its kind is throttled and was sent recently.
func (p *Publisher) Publish(e event.Event) error {
	now := p.now()
	kind := e.Kind()

	if throttled(kind) {
		if last, ok := p.last[kind]; ok && now.Sub(last) < p.interval {
			return nil
		}
		p.last[kind] = now
	}

	payload, err := json.Marshal(Message{Kind: kind, Time: now.UTC(), Data: e})
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", kind, err)
	}

	token := p.client.Publish(p.prefix+"/"+string(kind), p.qos, p.retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing %s: timed out", kind)
	}
	return token.Error()
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func throttled(k event.Kind) bool {
	switch k {
	case event.KindSpectrum, event.KindSignalStrength, event.KindAudioLevel:
		return true
	default:
		return false
	}
}
