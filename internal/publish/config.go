package publish

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/sdr/driver"
)

const (
	DefaultTopicPrefix = "radio-scanner"
	DefaultInterval    = time.Second
)

// Config is the MQTT broker connection.
type Config struct {
	Broker      string              `yaml:"broker" json:"broker"` // tcp://host:1883, ssl://host:8883, ws://...
	Username    string              `yaml:"username,omitempty" json:"username,omitempty"`
	Password    string              `yaml:"password,omitempty" json:"-"`
	ClientID    string              `yaml:"clientID,omitempty" json:"clientID,omitempty"` // random when empty
	TopicPrefix string              `yaml:"topicPrefix,omitempty" json:"topicPrefix,omitempty"`
	QoS         byte                `yaml:"qos,omitempty" json:"qos,omitempty"`
	Retain      bool                `yaml:"retain,omitempty" json:"retain,omitempty"`
	Interval    driver.TimeDuration `yaml:"interval,omitempty" json:"interval,omitempty"` // minimum gap between spectrum and level messages
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt: broker is required")
	}
	u, err := url.Parse(c.Broker)
	if err != nil {
		return fmt.Errorf("mqtt: invalid broker: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("mqtt: unsupported broker scheme %q", u.Scheme)
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt: invalid QoS %d", c.QoS)
	}
	if c.Interval.Duration() < 0 {
		return errors.New("mqtt: interval must not be negative")
	}
	return nil
}

func (c *Config) topicPrefix() string {
	if c.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return c.TopicPrefix
}

func (c *Config) interval() time.Duration {
	if d := c.Interval.Duration(); d > 0 {
		return d
	}
	return DefaultInterval
}
