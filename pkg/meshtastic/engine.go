// Package meshtastic implements a Meshtastic-compatible packet codec and
// the minimal engine logic (dedup, naive relay, ping responder, traceroute
// participation) needed to behave as a well-mannered repeater.
package meshtastic

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"os"

	"go.uber.org/zap"

	"github.com/loragateway/gatewayd/pkg/lora"
)

// Transmitter is the outbound half of the modem facade the engine needs:
// submit a raw LoRa frame for transmission. The engine never talks to a
// transport directly.
type Transmitter interface {
	TX(data []byte) error
}

// DecodedPacket is what the engine hands upward to its configured consumer
// once a packet has been parsed (and decrypted, if its channel is known).
type DecodedPacket struct {
	Raw     *Packet
	Channel *Channel // nil if the channel hash was unrecognized
	RSSI    int
	SNR     float64
}

// EngineConfig configures a new Engine.
type EngineConfig struct {
	Channels         []ChannelConfig
	PingReplyChannel string
	NodeID           uint32 // 0 means "derive one"
	DedupCapacity    int
}

// Engine holds the dedup state, channel registry, and self node ID needed
// to decode, relay, and answer Meshtastic traffic.
type Engine struct {
	channels         *ChannelRegistry
	dedup            *DedupSet
	nodeID           uint32
	pingReplyChannel string

	tx       Transmitter
	consumer func(DecodedPacket)

	logger *zap.Logger
}

// NewEngine builds an Engine from configuration. Returns a *ConfigError if
// any channel's PSK cannot be expanded; the engine refuses to start in that
// case.
func NewEngine(cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	registry, err := NewChannelRegistry(cfg.Channels)
	if err != nil {
		return nil, err
	}

	nodeID := cfg.NodeID
	if nodeID == 0 {
		nodeID = deriveNodeID()
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("meshtastic engine node ID", zap.Uint32("node_id", nodeID), zap.String("node_id_hex", fmt.Sprintf("0x%x", nodeID)))

	capacity := cfg.DedupCapacity
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}

	return &Engine{
		channels:         registry,
		dedup:            NewDedupSet(capacity),
		nodeID:           nodeID,
		pingReplyChannel: cfg.PingReplyChannel,
		logger:           logger,
	}, nil
}

// deriveNodeID computes a deterministic per-host 32-bit node ID by hashing
// the hostname, so repeated runs on the same host pick the same ID.
func deriveNodeID() uint32 {
	host, err := os.Hostname()
	if err != nil {
		host = "meshtastic-gateway"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return h.Sum32()
}

// SetTransmitter wires the engine's outbound path. Must be called before RX
// processing can relay or reply.
func (e *Engine) SetTransmitter(tx Transmitter) {
	e.tx = tx
}

// SetConsumer installs the callback invoked with every successfully decoded
// packet.
func (e *Engine) SetConsumer(consumer func(DecodedPacket)) {
	e.consumer = consumer
}

// NodeID returns this engine's self node number.
func (e *Engine) NodeID() uint32 {
	return e.nodeID
}

// ChannelNames returns the configured channel names, in no particular order.
func (e *Engine) ChannelNames() []string {
	return e.channels.Names()
}

// RX processes one inbound LoRa frame: parses the header, decrypts and
// parses the payload if the channel is known, decides whether to relay,
// augments traceroute payloads, and answers ping requests. Never panics or
// returns an error that should stop the caller's read loop — all failures
// are logged. A frame whose header cannot be parsed is dropped; an unknown
// channel or a decrypt or payload parse failure still lets the packet be
// relayed and handed to the consumer.
func (e *Engine) RX(p lora.PacketRx) {
	pkt, err := ParsePacket(p.Payload)
	if err != nil {
		e.logger.Debug("dropping undecodable packet", zap.Error(err))
		return
	}

	channel, haveChannel := e.channels.ByHash(pkt.ChannelHash)
	if !haveChannel {
		e.logger.Debug("unknown channel hash", zap.Uint8("hash", pkt.ChannelHash))
	} else if err := pkt.Decrypt(channel.Key); err != nil {
		e.logger.Debug("decrypt failed", zap.Error(err))
	} else if len(pkt.PayloadDecrypted) > 0 {
		if data, err := ParseData(pkt.PayloadDecrypted); err != nil {
			e.logger.Debug("payload protobuf parse failed", zap.Error(err))
		} else {
			pkt.Payload = data
		}
	}

	alreadyHeard := e.dedup.Contains(pkt.PacketID)
	shouldRelay := pkt.HopLimit > 0 && !alreadyHeard && pkt.Destination != e.nodeID

	if shouldRelay {
		e.relay(pkt, p.RSSI, p.SNR, channel)
	}
	e.dedup.Add(pkt.PacketID)

	if e.consumer != nil {
		e.consumer(DecodedPacket{Raw: pkt, Channel: channel, RSSI: p.RSSI, SNR: p.SNR})
	}

	if haveChannel && pkt.Payload != nil {
		e.maybeReplyPing(pkt, channel, p.RSSI, p.SNR)
	}
}

// relay decrements hopLimit, re-serializes (augmenting a traceroute payload
// if present), and retransmits. packet_id is already known not to be in the
// dedup set by the caller; relay adds it before transmitting so a reflected
// copy of our own relay never gets relayed again.
func (e *Engine) relay(pkt *Packet, rssi int, snr float64, channel *Channel) {
	e.dedup.Add(pkt.PacketID)

	out := *pkt
	out.HopLimit--

	if pkt.Payload != nil && pkt.Payload.PortNum == PortNumTracerouteApp {
		if augmented, ok := e.augmentTraceroute(pkt, snr); ok {
			out.PayloadDecrypted = augmented
			if channel != nil {
				if err := out.Encrypt(channel.Key); err != nil {
					e.logger.Debug("traceroute re-encrypt failed", zap.Error(err))
				}
			}
		}
	}

	if e.tx == nil {
		return
	}
	if err := e.tx.TX(out.Serialize()); err != nil {
		e.logger.Debug("relay TX failed", zap.Error(err))
	}
}

// augmentTraceroute appends this node to the route (or route_back) array
// and its SNR to the matching snr array, right-padding any unknown
// intermediate hops. Returns the re-serialized RouteDiscovery payload and
// true on success.
func (e *Engine) augmentTraceroute(pkt *Packet, snr float64) ([]byte, bool) {
	rd, err := ParseRouteDiscovery(pkt.Payload.Payload)
	if err != nil {
		e.logger.Debug("traceroute payload parse failed", zap.Error(err))
		return nil, false
	}

	hopsAway := int(pkt.HopStart) - int(pkt.HopLimit)
	wayBack := pkt.Payload.HasRequestID

	var route *[]uint32
	var snrs *[]int32
	if wayBack {
		route, snrs = &rd.RouteBack, &rd.SNRBack
	} else {
		route, snrs = &rd.Route, &rd.SNRTowards
	}

	if hopsAway >= 0 {
		for len(*route) < hopsAway {
			*route = append(*route, 0xFFFFFFFF)
		}
		for len(*snrs) < hopsAway {
			*snrs = append(*snrs, -128)
		}
	}

	*route = append(*route, e.nodeID)
	*snrs = append(*snrs, int32(snr*4))

	payload := rd.Serialize()
	newData := *pkt.Payload
	newData.Payload = payload
	return newData.Serialize(), true
}

// maybeReplyPing answers a ping with a pong on the ping-reply channel.
func (e *Engine) maybeReplyPing(pkt *Packet, channel *Channel, rssi int, snr float64) {
	if e.pingReplyChannel == "" || channel.Name != e.pingReplyChannel {
		return
	}
	if pkt.Payload.PortNum != PortNumTextMessageApp {
		return
	}
	text := string(pkt.Payload.Payload)
	if len(text) < 4 || text[:4] != "ping" {
		return
	}

	reply := &Data{
		PortNum: PortNumTextMessageApp,
		Payload: []byte(fmt.Sprintf("pong RSSI: %ddBm SNR: %gdB", rssi, snr)),
		ReplyID: pkt.PacketID,
	}

	replyID := randomPacketID()
	e.dedup.Add(replyID)

	out := &Packet{
		Destination:      0xFFFFFFFF,
		Sender:           e.nodeID,
		PacketID:         replyID,
		HopLimit:         3,
		HopStart:         3,
		ChannelHash:      channel.Hash,
		PayloadDecrypted: reply.Serialize(),
	}
	if err := out.Encrypt(channel.Key); err != nil {
		e.logger.Debug("pong encrypt failed", zap.Error(err))
		return
	}

	if e.tx == nil {
		return
	}
	if err := e.tx.TX(out.Serialize()); err != nil {
		e.logger.Debug("pong TX failed", zap.Error(err))
	}
}

func randomPacketID() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}
