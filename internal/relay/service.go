// Package relay wires a configured modem transport, protocol gateway
// (Meshtastic or MeshCore), and set of decoded-packet output sinks into one
// runnable service for the reference cmd binary and its TUI.
package relay

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/loragateway/gatewayd/internal/config"
	"github.com/loragateway/gatewayd/internal/gateway"
	"github.com/loragateway/gatewayd/internal/logging"
	"github.com/loragateway/gatewayd/internal/modem"
	"github.com/loragateway/gatewayd/internal/output"
	"github.com/loragateway/gatewayd/pkg/meshcore"
	"github.com/loragateway/gatewayd/pkg/meshtastic"
)

// Stats holds runtime counters for the relay service.
type Stats struct {
	PacketsReceived uint64
	PacketsSent     uint64
	SendErrors      uint64
}

// Service owns a gateway.Supervisor and fans its decoded-packet feed out to
// the configured output sinks. It is the in-repo stand-in for the
// persistence/process-management shell spec.md treats as an external
// collaborator.
type Service struct {
	config     *config.Config
	supervisor *gateway.Supervisor
	outputs    []output.Output
	logger     *zap.Logger

	mu      sync.RWMutex
	running bool
	stats   Stats
	taps    []chan gateway.DecodedPacket
}

// New builds a Service from cfg. The underlying transport, engine, and
// outputs are constructed but nothing is connected until Start.
func New(cfg *config.Config) (*Service, error) {
	logger := logging.With(zap.String("component", "relay"))

	transport, err := buildTransport(cfg.Modem, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build modem transport: %w", err)
	}

	gwCfg, err := buildGatewayConfig(cfg, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway config: %w", err)
	}

	supervisor, err := gateway.New(gwCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway supervisor: %w", err)
	}

	return &Service{
		config:     cfg,
		supervisor: supervisor,
		logger:     logger,
	}, nil
}

func buildTransport(cfg config.ModemConfig, logger *zap.Logger) (modem.Transport, error) {
	switch cfg.Type {
	case "tcp":
		return modem.NewTCP(modem.TCPConfig{Host: cfg.TCP.Host, Port: cfg.TCP.Port}, logger), nil
	case "serial":
		return modem.NewSerial(modem.SerialConfig{Port: cfg.Serial.Port}, logger), nil
	default:
		return nil, fmt.Errorf("unknown modem type: %s", cfg.Type)
	}
}

func buildGatewayConfig(cfg *config.Config, transport modem.Transport) (gateway.Config, error) {
	gwCfg := gateway.Config{
		Transport: transport,
		Protocol:  gateway.Protocol(cfg.Protocol),
	}

	switch gwCfg.Protocol {
	case gateway.ProtocolMeshtastic:
		channels := make([]meshtastic.ChannelConfig, 0, len(cfg.Meshtastic.Channels))
		for _, c := range cfg.Meshtastic.Channels {
			channels = append(channels, meshtastic.ChannelConfig{Name: c.Name, PSKB64: c.PSK})
		}
		gwCfg.Meshtastic = gateway.MeshtasticConfig{
			Channels:         channels,
			PingReplyChannel: cfg.Meshtastic.PingReplyChannel,
			NodeID:           cfg.Meshtastic.NodeID,
			DedupCapacity:    cfg.Meshtastic.DedupCapacity,
			Radio:            radioFromConfig(cfg.Meshtastic.Radio),
		}

	case gateway.ProtocolMeshCore:
		channels := make([]meshcore.ChannelConfig, 0, len(cfg.MeshCore.Channels))
		for _, c := range cfg.MeshCore.Channels {
			key, err := base64.StdEncoding.DecodeString(c.Key)
			if err != nil {
				return gateway.Config{}, fmt.Errorf("meshcore channel %q: decode key: %w", c.Name, err)
			}
			channels = append(channels, meshcore.ChannelConfig{Name: c.Name, Key: key})
		}
		gwCfg.MeshCore = gateway.MeshCoreConfig{
			Channels: channels,
			Radio:    radioFromConfig(cfg.MeshCore.Radio),
		}

	default:
		return gateway.Config{}, fmt.Errorf("invalid protocol: %s (must be meshtastic or meshcore)", cfg.Protocol)
	}

	return gwCfg, nil
}

func radioFromConfig(r config.RadioConfig) gateway.RadioConfig {
	return gateway.RadioConfig{
		Gain:                r.Gain,
		FrequencyHz:         r.FrequencyHz,
		SpreadingFactor:     r.SpreadingFactor,
		BandwidthHz:         r.BandwidthHz,
		CodingRate:          r.CodingRate,
		PreambleLength:      r.PreambleLength,
		Syncword:            r.Syncword,
		TXPower:             r.TXPower,
		CRC:                 r.CRC,
		InvertIQ:            r.InvertIQ,
		LowDataRateOptimize: r.LowDataRateOptimize,
	}
}

// Start initializes the configured outputs, starts the gateway supervisor,
// and begins fanning decoded packets out to those outputs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.initOutputs(); err != nil {
		return fmt.Errorf("failed to initialize outputs: %w", err)
	}

	if err := s.supervisor.Start(ctx); err != nil {
		s.closeOutputs()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to start gateway supervisor: %w", err)
	}

	s.logger.Info("relay service started",
		zap.String("protocol", s.config.Protocol),
		zap.Int("outputs", len(s.outputs)))

	go s.fanOut(ctx)

	return nil
}

// Stop gracefully shuts the relay service down.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping relay service")
	err := s.supervisor.Stop()
	s.closeOutputs()
	s.logger.Info("relay service stopped")
	return err
}

// IsRunning returns true if the service is currently running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetStats returns the current runtime statistics.
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// GetOutputs returns the configured outputs.
func (s *Service) GetOutputs() []output.Output {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputs
}

// Supervisor returns the underlying gateway supervisor, for callers that
// want the engine's channel set directly.
func (s *Service) Supervisor() *gateway.Supervisor {
	return s.supervisor
}

// Tap registers a second, independent consumer of the decoded-packet feed
// (the TUI) alongside the configured output sinks, so observing the stream
// never steals packets from persistence. The returned channel is buffered
// and closed when the service stops; a slow reader drops packets rather
// than backing up the fan-out loop.
func (s *Service) Tap(bufSize int) <-chan gateway.DecodedPacket {
	ch := make(chan gateway.DecodedPacket, bufSize)
	s.mu.Lock()
	s.taps = append(s.taps, ch)
	s.mu.Unlock()
	return ch
}

func (s *Service) initOutputs() error {
	s.outputs = make([]output.Output, 0)

	for _, outCfg := range s.config.Outputs {
		if !outCfg.Enabled {
			continue
		}

		out, err := output.New(outCfg)
		if err != nil {
			return fmt.Errorf("failed to create output %s: %w", outCfg.Type, err)
		}
		s.outputs = append(s.outputs, out)
		s.logger.Debug("initialized output", zap.String("type", outCfg.Type), zap.String("name", out.Name()))
	}

	if len(s.outputs) == 0 {
		return fmt.Errorf("no outputs enabled")
	}

	return nil
}

func (s *Service) closeOutputs() {
	for _, out := range s.outputs {
		if err := out.Close(); err != nil {
			s.logger.Error("error closing output", zap.String("output", out.Name()), zap.Error(err))
		}
	}
}

func (s *Service) fanOut(ctx context.Context) {
	for pkt := range s.supervisor.Messages() {
		s.mu.Lock()
		s.stats.PacketsReceived++
		taps := s.taps
		s.mu.Unlock()

		s.sendToOutputs(ctx, pkt)

		for _, tap := range taps {
			select {
			case tap <- pkt:
			default:
			}
		}
	}

	s.mu.Lock()
	taps := s.taps
	s.taps = nil
	s.mu.Unlock()
	for _, tap := range taps {
		close(tap)
	}
}

func (s *Service) sendToOutputs(ctx context.Context, pkt gateway.DecodedPacket) {
	for _, out := range s.outputs {
		if err := out.Send(ctx, pkt); err != nil {
			s.logger.Error("failed to send packet to output",
				zap.String("output", out.Name()),
				zap.Error(err))
			s.mu.Lock()
			s.stats.SendErrors++
			s.mu.Unlock()
		} else {
			s.mu.Lock()
			s.stats.PacketsSent++
			s.mu.Unlock()
		}
	}
}
