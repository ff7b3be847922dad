// Package simulator drives a virtual LoRa modem over a pseudo-terminal. It
// speaks the same NDJSON wire protocol a real modem would, so a gateway
// configured with modem.type serial and its slave path exercises the full
// transport/facade/engine pipeline with no hardware attached.
package simulator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loragateway/gatewayd/internal/ptytest"
	"github.com/loragateway/gatewayd/pkg/meshtastic"
)

// Config holds configuration for the simulated device.
type Config struct {
	// NodeID is this device's node number.
	NodeID uint32
	// Channel is the channel simulated packets are sent on.
	Channel meshtastic.ChannelConfig
	// Interval is how often to emit a simulated packet (0 = disabled).
	Interval time.Duration
	// Verbose logs every line exchanged with the connected gateway.
	Verbose bool
}

// DefaultConfig returns a default device configuration: the public LongFast
// channel, a random node number, and a packet every 30 seconds.
func DefaultConfig() Config {
	return Config{
		NodeID:   rand.Uint32(),
		Channel:  meshtastic.ChannelConfig{Name: "LongFast", PSKB64: "AQ=="},
		Interval: 30 * time.Second,
	}
}

// Device simulates a LoRa modem attached to a single Meshtastic channel.
type Device struct {
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	pty     *ptytest.PTY
	channel *meshtastic.Channel
	seq     uint32
	stopCh  chan struct{}
}

// New creates a simulated device. logger may be nil.
func New(config Config, logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Device{
		config: config,
		logger: logger.With(zap.String("component", "simulator")),
		seq:    rand.Uint32() % 10000,
	}
}

// Start opens a PTY, begins the read and message-generator loops, and
// returns the slave path a serial modem transport should be pointed at.
func (d *Device) Start(ctx context.Context) (string, error) {
	channel, err := meshtastic.NewChannel(d.config.Channel.Name, d.config.Channel.PSKB64)
	if err != nil {
		return "", fmt.Errorf("simulator: channel: %w", err)
	}

	pty, err := ptytest.OpenPTY()
	if err != nil {
		return "", fmt.Errorf("simulator: open pty: %w", err)
	}

	d.mu.Lock()
	d.pty = pty
	d.channel = channel
	d.stopCh = make(chan struct{})
	d.mu.Unlock()

	go d.readLoop(ctx)
	if d.config.Interval > 0 {
		go d.sendLoop(ctx)
	}

	d.logger.Info("simulator started", zap.String("path", pty.SlavePath))
	return pty.SlavePath, nil
}

// Stop closes the PTY and halts both loops.
func (d *Device) Stop() error {
	d.mu.Lock()
	pty := d.pty
	stopCh := d.stopCh
	d.pty = nil
	d.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if pty == nil {
		return nil
	}
	return pty.Close()
}

// readLoop consumes whatever the connected gateway writes to the PTY:
// settings updates and outbound packetTx requests. The simulator doesn't
// need to act on either, only acknowledge them in its logs, since the
// facade resends settings on every reconnect and doesn't wait for an ack.
func (d *Device) readLoop(ctx context.Context) {
	d.mu.Lock()
	master := d.pty.Master
	d.mu.Unlock()

	scanner := bufio.NewScanner(master)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if d.config.Verbose {
			d.logger.Info("received line", zap.ByteString("line", line))
		}

		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &env); err != nil {
			continue
		}
		switch env.Type {
		case "settings":
			d.logger.Debug("gateway applied settings")
		case "packetTx":
			d.logger.Debug("gateway transmitted a packet")
		}
	}
}

// sendLoop periodically emits a synthetic text message from a remote node,
// simulating traffic arriving over the air.
func (d *Device) sendLoop(ctx context.Context) {
	d.mu.Lock()
	stopCh := d.stopCh
	d.mu.Unlock()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := d.sendTextMessage(); err != nil {
				d.logger.Warn("failed to emit simulated packet", zap.Error(err))
			}
		}
	}
}

// sendTextMessage builds, encrypts, and writes one text-message packet as
// a packetRx line, as if it had just arrived over the air from a remote
// node with this device's configured node number.
func (d *Device) sendTextMessage() error {
	d.mu.Lock()
	d.seq++
	seq := d.seq
	channel := d.channel
	master := d.pty.Master
	d.mu.Unlock()

	data := &meshtastic.Data{
		PortNum: meshtastic.PortNumTextMessageApp,
		Payload: []byte(fmt.Sprintf("simulated packet #%d", seq)),
	}

	packet := &meshtastic.Packet{
		Destination:      0xffffffff,
		Sender:           d.config.NodeID,
		PacketID:         seq,
		HopLimit:         3,
		HopStart:         3,
		ChannelHash:      channel.Hash,
		PayloadDecrypted: data.Serialize(),
	}
	if err := packet.Encrypt(channel.Key); err != nil {
		return fmt.Errorf("simulator: encrypt: %w", err)
	}

	return d.writeLine(wirePacketRx{
		Type: "packetRx",
		Data: packet.Serialize(),
		RSSI: -60 - rand.Intn(20),
		SNR:  5 + rand.Float64()*5,
	}, master)
}

// wirePacketRx mirrors the modem package's unexported wire type: the
// simulator speaks the same NDJSON shape but lives on the other side of
// the transport, so it keeps its own copy rather than reaching into an
// internal package it isn't part of.
type wirePacketRx struct {
	Type      string    `json:"type"`
	Data      byteArray `json:"data"`
	RSSI      int       `json:"rssi"`
	SNR       float64   `json:"snr"`
	FreqError int       `json:"freqError"`
}

// byteArray marshals as a JSON array of byte values rather than
// encoding/json's default base64-string encoding for []byte, matching the
// wire protocol's "data":[u8..] shape and the modem package's own byteArray.
type byteArray []byte

func (b byteArray) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%d", v)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (b *byteArray) UnmarshalJSON(data []byte) error {
	var vals []int
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	out := make([]byte, len(vals))
	for i, v := range vals {
		out[i] = byte(v)
	}
	*b = out
	return nil
}

func (d *Device) writeLine(msg wirePacketRx, master interface{ Write([]byte) (int, error) }) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("simulator: encode packetRx: %w", err)
	}
	if d.config.Verbose {
		d.logger.Info("sending line", zap.ByteString("line", line))
	}
	_, err = master.Write(append(line, '\n'))
	return err
}
