package meshcore

import (
	"time"

	"go.uber.org/zap"

	"github.com/loragateway/gatewayd/pkg/lora"
)

// Transmitter is the outbound half of the modem facade the engine needs.
type Transmitter interface {
	TX(data []byte) error
}

// PowerController lets the engine raise TX power for a close-range repeat
// and restore it afterward.
type PowerController interface {
	SetTXPower(dBm int) error
}

// DecodedPacket is what the engine hands upward to its configured consumer.
type DecodedPacket struct {
	Raw  *Packet
	RSSI int
	SNR  float64
}

// EngineConfig configures a new Engine.
type EngineConfig struct {
	Channels []ChannelConfig
}

// Engine implements MeshCore's unconditional-repeat-with-RSSI-gated-power
// policy: every received packet is repeated, at full TX power (20dBm) if it
// arrived with RSSI above closeRangeRSSIThreshold, at the modem's configured
// low power otherwise. Unlike the Meshtastic engine, MeshCore has no
// destination field at the wire level this codec exposes and performs no
// packet-ID dedup.
type Engine struct {
	channels *ChannelRegistry

	tx       Transmitter
	power    PowerController
	sleep    func(time.Duration)
	consumer func(DecodedPacket)

	logger *zap.Logger
}

// closeRangeRSSIThreshold is the RSSI, in dBm, above which a received
// packet is judged to have come from nearby and is repeated at full power.
const closeRangeRSSIThreshold = -80

// fullPowerDBm / restorePowerDBm are the TX power levels applied around a
// close-range repeat.
const (
	fullPowerDBm    = 20
	restorePowerDBm = 0
)

// preRepeatDelay is the fixed pause before retransmitting, giving the
// sender's own transmission time to clear the channel.
const preRepeatDelay = 100 * time.Millisecond

// NewEngine builds an Engine from configuration.
func NewEngine(cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	registry, err := NewChannelRegistry(cfg.Channels)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		channels: registry,
		sleep:    time.Sleep,
		logger:   logger,
	}, nil
}

// SetTransmitter wires the engine's outbound path.
func (e *Engine) SetTransmitter(tx Transmitter) {
	e.tx = tx
}

// SetPowerController wires the engine's TX power control. If unset, the
// engine still repeats packets but never adjusts power.
func (e *Engine) SetPowerController(p PowerController) {
	e.power = p
}

// SetConsumer installs the callback invoked with every successfully decoded
// packet.
func (e *Engine) SetConsumer(consumer func(DecodedPacket)) {
	e.consumer = consumer
}

// RX processes one inbound LoRa frame: parses it, hands it to the consumer,
// then unconditionally repeats it, raising TX power first if the packet
// arrived from close range.
func (e *Engine) RX(p lora.PacketRx) {
	pkt, err := ParsePacket(e.channels, p.Payload)
	if err != nil {
		e.logger.Debug("dropping undecodable packet", zap.Error(err))
		return
	}

	if e.consumer != nil {
		e.consumer(DecodedPacket{Raw: pkt, RSSI: p.RSSI, SNR: p.SNR})
	}

	e.repeat(p.Payload, p.RSSI)
}

// repeat retransmits the untouched raw frame the modem handed to RX, never
// the re-serialized decoded packet: several payload kinds (ADVERT's
// signature block, for one) aren't round-trippable through Serialize.
func (e *Engine) repeat(raw []byte, rssi int) {
	if e.tx == nil {
		return
	}

	fullPower := rssi > closeRangeRSSIThreshold
	e.sleep(preRepeatDelay)

	if fullPower && e.power != nil {
		if err := e.power.SetTXPower(fullPowerDBm); err != nil {
			e.logger.Debug("raising tx power failed", zap.Error(err))
		}
	}
	defer func() {
		if fullPower && e.power != nil {
			if err := e.power.SetTXPower(restorePowerDBm); err != nil {
				e.logger.Debug("restoring tx power failed", zap.Error(err))
			}
		}
	}()

	if err := e.tx.TX(raw); err != nil {
		e.logger.Debug("repeat TX failed", zap.Error(err))
	}
}
