// Package ingest bridges MQTT sensor traffic into the environment store.
//
// Sensors publish to `<root>/<scope>/<sensorType>` with a JSON payload; each
// message becomes one reading fed to the engine.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/preauto/preauto/pkg/env"
)

// DefaultTopicRoot is the subscription root when a broker row does not
// configure one.
const DefaultTopicRoot = "preauto/sensors"

// Sink receives parsed sensor readings.
type Sink interface {
	IngestSensor(scopeID, sensorType string, reading env.Reading) env.Scope
}

// Config describes one broker subscription.
type Config struct {
	BrokerURL string
	ClientID  string
	TopicRoot string
	Username  string
	Password  string
}

// payload is the wire format sensors publish.
type payload struct {
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit"`
	ObservedAt string   `json:"observed_at"`
	Source     string   `json:"source"`
	Weight     float64  `json:"weight"`
}

// Bridge subscribes to a broker and forwards readings to the sink.
type Bridge struct {
	cfg    Config
	sink   Sink
	client paho.Client
}

// NewBridge creates a bridge. Connect must be called before any messages
// arrive.
func NewBridge(cfg Config, sink Sink) *Bridge {
	if cfg.TopicRoot == "" {
		cfg.TopicRoot = DefaultTopicRoot
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "preauto-ingest"
	}
	return &Bridge{cfg: cfg, sink: sink}
}

// Connect dials the broker and subscribes. The client auto-reconnects and
// retries the initial connection until the broker appears.
func (b *Bridge) Connect() error {
	opts := paho.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(client paho.Client) {
			filter := b.cfg.TopicRoot + "/+/+"
			token := client.Subscribe(filter, 0, b.onMessage)
			if !token.WaitTimeout(10 * time.Second) {
				log.Warn().Str("filter", filter).Msg("MQTT subscribe timeout")
				return
			}
			if err := token.Error(); err != nil {
				log.Warn().Err(err).Str("filter", filter).Msg("MQTT subscribe failed")
				return
			}
			log.Info().Str("broker", b.cfg.BrokerURL).Str("filter", filter).
				Msg("Subscribed to sensor topics")
		})
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	b.client = paho.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect timeout for %s", b.cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.cfg.BrokerURL, err)
	}
	return nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	if b.client != nil {
		b.client.Disconnect(1000)
	}
}

func (b *Bridge) onMessage(_ paho.Client, msg paho.Message) {
	b.handle(msg.Topic(), msg.Payload())
}

// handle parses one message and feeds it to the sink. Malformed messages
// are logged and dropped.
func (b *Bridge) handle(topic string, body []byte) {
	scopeID, sensorType, ok := b.splitTopic(topic)
	if !ok {
		log.Warn().Str("topic", topic).Msg("Ignoring message on unexpected topic")
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Dropping malformed sensor payload")
		return
	}
	if p.Value == nil {
		log.Warn().Str("topic", topic).Msg("Dropping sensor payload without value")
		return
	}

	reading := env.Reading{
		Value:  *p.Value,
		Unit:   p.Unit,
		Source: p.Source,
		Weight: p.Weight,
	}
	if p.ObservedAt != "" {
		observed, err := time.Parse(time.RFC3339, p.ObservedAt)
		if err != nil {
			log.Warn().Str("topic", topic).Str("observed_at", p.ObservedAt).
				Msg("Ignoring unparseable observation time")
		} else {
			reading.ObservedAt = observed
		}
	}

	b.sink.IngestSensor(scopeID, sensorType, reading)
	log.Debug().Str("scope", scopeID).Str("sensor", sensorType).
		Float64("value", reading.Value).Msg("Ingested sensor reading")
}

// splitTopic extracts scope and sensor type from `<root>/<scope>/<type>`.
func (b *Bridge) splitTopic(topic string) (string, string, bool) {
	rest, found := strings.CutPrefix(topic, b.cfg.TopicRoot+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
