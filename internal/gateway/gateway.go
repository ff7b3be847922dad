// Package gateway implements the protocol supervisor: it owns one modem
// facade and one mesh engine (Meshtastic or MeshCore), wires the facade's
// inbound frames into the engine and the engine's outbound frames back to
// the facade, and republishes the engine's decoded packets on a single
// consumer-facing channel. It never persists anything and never reaches
// into a caller's output sinks directly — wiring this supervisor to
// concrete sinks is the caller's job.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/loragateway/gatewayd/internal/modem"
	"github.com/loragateway/gatewayd/pkg/lora"
	"github.com/loragateway/gatewayd/pkg/meshcore"
	"github.com/loragateway/gatewayd/pkg/meshtastic"
)

// Protocol names which mesh engine a Supervisor runs.
type Protocol string

const (
	ProtocolMeshtastic Protocol = "meshtastic"
	ProtocolMeshCore   Protocol = "meshcore"
)

// RadioConfig is the logical LoRa parameter set applied to the modem facade
// at Supervisor start. Zero-value fields are filled in from the protocol's
// default preset, except where a field is documented as required.
type RadioConfig struct {
	Gain                int
	FrequencyHz         int
	SpreadingFactor     int
	BandwidthHz         int
	CodingRate          int
	PreambleLength      int
	Syncword            int
	TXPower             int
	CRC                 bool
	InvertIQ            bool
	LowDataRateOptimize bool
}

// DefaultMeshtasticRadio returns the LongFast EU_868 preset the reference
// deployment starts with.
func DefaultMeshtasticRadio() RadioConfig {
	return RadioConfig{
		Gain:                0, // AGC
		FrequencyHz:         869525000,
		SpreadingFactor:     11,
		BandwidthHz:         250000,
		CodingRate:          5,
		PreambleLength:      16,
		Syncword:            0x2b,
		TXPower:             20,
		CRC:                 true,
		InvertIQ:            false,
		LowDataRateOptimize: false,
	}
}

// DefaultMeshCoreRadio returns the EU/UK narrow preset. FrequencyHz,
// SpreadingFactor, BandwidthHz, and CodingRate are left at zero here: the
// caller must supply them from configuration before starting a MeshCore
// Supervisor.
func DefaultMeshCoreRadio() RadioConfig {
	return RadioConfig{
		PreambleLength: 16,
		Syncword:       0x12,
		CRC:            true,
		InvertIQ:       false,
	}
}

// MeshtasticConfig configures a Meshtastic Supervisor.
type MeshtasticConfig struct {
	Channels         []meshtastic.ChannelConfig
	PingReplyChannel string
	NodeID           uint32
	DedupCapacity    int
	Radio            RadioConfig
}

// MeshCoreConfig configures a MeshCore Supervisor.
type MeshCoreConfig struct {
	Channels []meshcore.ChannelConfig
	Radio    RadioConfig
}

// Config is the full Supervisor configuration. Exactly one of Meshtastic or
// MeshCore is consulted, selected by Protocol.
type Config struct {
	Transport  modem.Transport
	Protocol   Protocol
	Meshtastic MeshtasticConfig
	MeshCore   MeshCoreConfig
}

// DecodedPacket is the protocol-tagged envelope a Supervisor publishes on
// Messages(). Exactly one of Meshtastic or MeshCore is populated, matching
// the Supervisor's configured Protocol.
type DecodedPacket struct {
	Protocol   Protocol
	Meshtastic *meshtastic.DecodedPacket
	MeshCore   *meshcore.DecodedPacket
}

// Supervisor realizes the protocol supervisor contract: Start/Stop
// (idempotent), a decoded-packet feed, and the channel set the engine was
// configured with. The engines never reach into the Supervisor or any
// persistence layer — they only ever see the modem.Facade's Transmitter/
// PowerController surface and hand decoded packets to a plain callback.
type Supervisor struct {
	facade   *modem.Facade
	protocol Protocol

	mtEngine *meshtastic.Engine
	mcEngine *meshcore.Engine

	messages chan DecodedPacket
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New builds a Supervisor from cfg. The underlying engine is constructed
// but not started; call Start to connect the transport and begin
// processing.
func New(cfg Config, logger *zap.Logger) (*Supervisor, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("gateway: transport is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "gateway"), zap.String("protocol", string(cfg.Protocol)))

	facade := modem.NewFacade(cfg.Transport, logger)

	s := &Supervisor{
		facade:   facade,
		protocol: cfg.Protocol,
		messages: make(chan DecodedPacket, 100),
		logger:   logger,
	}

	switch cfg.Protocol {
	case ProtocolMeshtastic:
		engine, err := meshtastic.NewEngine(meshtastic.EngineConfig{
			Channels:         cfg.Meshtastic.Channels,
			PingReplyChannel: cfg.Meshtastic.PingReplyChannel,
			NodeID:           cfg.Meshtastic.NodeID,
			DedupCapacity:    cfg.Meshtastic.DedupCapacity,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("gateway: build meshtastic engine: %w", err)
		}
		engine.SetTransmitter(facade)
		engine.SetConsumer(func(p meshtastic.DecodedPacket) {
			s.publish(DecodedPacket{Protocol: ProtocolMeshtastic, Meshtastic: &p})
		})
		s.mtEngine = engine
		applyRadio(facade, withDefaults(cfg.Meshtastic.Radio, DefaultMeshtasticRadio()))

	case ProtocolMeshCore:
		engine, err := meshcore.NewEngine(meshcore.EngineConfig{
			Channels: cfg.MeshCore.Channels,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("gateway: build meshcore engine: %w", err)
		}
		engine.SetTransmitter(facade)
		engine.SetPowerController(facade)
		engine.SetConsumer(func(p meshcore.DecodedPacket) {
			s.publish(DecodedPacket{Protocol: ProtocolMeshCore, MeshCore: &p})
		})
		s.mcEngine = engine
		applyRadio(facade, withDefaults(cfg.MeshCore.Radio, DefaultMeshCoreRadio()))

	default:
		return nil, fmt.Errorf("gateway: unknown protocol %q", cfg.Protocol)
	}

	return s, nil
}

// withDefaults fills zero-value fields of r from def, leaving any field the
// caller explicitly set untouched.
func withDefaults(r, def RadioConfig) RadioConfig {
	if r.FrequencyHz == 0 {
		r.FrequencyHz = def.FrequencyHz
	}
	if r.SpreadingFactor == 0 {
		r.SpreadingFactor = def.SpreadingFactor
	}
	if r.BandwidthHz == 0 {
		r.BandwidthHz = def.BandwidthHz
	}
	if r.CodingRate == 0 {
		r.CodingRate = def.CodingRate
	}
	if r.PreambleLength == 0 {
		r.PreambleLength = def.PreambleLength
	}
	if r.Syncword == 0 {
		r.Syncword = def.Syncword
	}
	if r.TXPower == 0 {
		r.TXPower = def.TXPower
	}
	if !r.CRC {
		r.CRC = def.CRC
	}
	return r
}

func applyRadio(facade *modem.Facade, r RadioConfig) {
	facade.SetGain(r.Gain)
	facade.SetFrequency(r.FrequencyHz)
	facade.SetSpreadingFactor(r.SpreadingFactor)
	facade.SetBandwidth(r.BandwidthHz)
	facade.SetCodingRate(r.CodingRate)
	facade.SetPreambleLength(r.PreambleLength)
	facade.SetSyncword(r.Syncword)
	_ = facade.SetTXPower(r.TXPower)
	facade.SetAuxLoraSettings(r.CRC, r.InvertIQ, r.LowDataRateOptimize)
}

// Start connects the modem transport and begins dispatching received
// frames through the configured engine. Calling Start twice is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	facadeCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	if err := s.facade.Start(facadeCtx, s.dispatch); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("gateway: start facade: %w", err)
	}

	go func() {
		<-s.facade.Done()
		close(s.messages)
	}()

	s.logger.Info("gateway supervisor started")
	return nil
}

// Stop idempotently shuts the Supervisor down: it cancels the facade's read
// loop, closes the transport, and (once the read loop has actually
// exited) closes Messages(). Safe to call multiple times and safe to call
// without a prior Start.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := s.facade.Stop()
	<-s.facade.Done()
	s.logger.Info("gateway supervisor stopped")
	return err
}

// Messages returns the channel of decoded packets. Closed once Stop has
// fully quiesced the facade's reader goroutine.
func (s *Supervisor) Messages() <-chan DecodedPacket {
	return s.messages
}

// Channels returns the configured Meshtastic channel names, or nil for a
// MeshCore Supervisor (MeshCore channels are keyed by hash, not exposed as
// a flat name list here).
func (s *Supervisor) Channels() []string {
	if s.mtEngine == nil {
		return nil
	}
	return s.mtEngine.ChannelNames()
}

func (s *Supervisor) dispatch(p lora.PacketRx) {
	switch s.protocol {
	case ProtocolMeshtastic:
		s.mtEngine.RX(p)
	case ProtocolMeshCore:
		s.mcEngine.RX(p)
	}
}

func (s *Supervisor) publish(p DecodedPacket) {
	select {
	case s.messages <- p:
	default:
		s.logger.Warn("decoded packet dropped: consumer not keeping up")
	}
}
