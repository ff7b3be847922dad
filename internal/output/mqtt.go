package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/loragateway/gatewayd/internal/config"
	"github.com/loragateway/gatewayd/internal/gateway"
)

// MQTT publishes decoded packets to a broker topic. Unlike the teacher
// repo's MQTT connection, which subscribed to an inbound Meshtastic uplink
// topic, this is a pure outbound sink: the modem is this gateway's only RX
// source, so paho is used here only to publish.
type MQTT struct {
	client  mqtt.Client
	topic   string
	qos     byte
	enabled bool
}

// NewMQTT creates a new MQTT output.
func NewMQTT(cfg config.OutputConfig) (*MQTT, error) {
	broker := ""
	if b, ok := cfg.Options["broker"].(string); ok {
		broker = b
	}
	if broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}

	topic := "gatewayd/packets"
	if t, ok := cfg.Options["topic"].(string); ok && t != "" {
		topic = t
	}

	qos := byte(0)
	switch q := cfg.Options["qos"].(type) {
	case int:
		qos = byte(q)
	case float64:
		qos = byte(q)
	}

	clientID := "gatewayd"
	if id, ok := cfg.Options["client_id"].(string); ok && id != "" {
		clientID = id
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	if u, ok := cfg.Options["username"].(string); ok {
		opts.SetUsername(u)
	}
	if p, ok := cfg.Options["password"].(string); ok {
		opts.SetPassword(p)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, err)
	}

	return &MQTT{
		client:  client,
		topic:   topic,
		qos:     qos,
		enabled: cfg.Enabled,
	}, nil
}

// Send publishes a decoded packet to the configured topic.
func (m *MQTT) Send(ctx context.Context, pkt gateway.DecodedPacket) error {
	env := NewEnvelope(time.Now(), pkt)
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal packet: %w", err)
	}

	token := m.client.Publish(m.topic, m.qos, false, data)
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return token.Error()
	}
}

// Close disconnects the MQTT client.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

// Name returns the output identifier.
func (m *MQTT) Name() string {
	return fmt.Sprintf("mqtt:%s", m.topic)
}

// Enabled returns whether this output is enabled.
func (m *MQTT) Enabled() bool {
	return m.enabled
}
