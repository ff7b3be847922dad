package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/loragateway/gatewayd/pkg/meshcore"
	"github.com/loragateway/gatewayd/pkg/meshtastic"
)

// fakeTransport is a minimal modem.Transport double for exercising the
// supervisor without a real socket or serial port.
type fakeTransport struct {
	mu        sync.Mutex
	lines     chan []byte
	sent      [][]byte
	connected bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{lines: make(chan []byte, 10)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}
func (f *fakeTransport) Lines() <-chan []byte { return f.lines }
func (f *fakeTransport) Send(line []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte{}, line...))
	return nil
}
func (f *fakeTransport) Close() error {
	close(f.lines)
	return nil
}
func (f *fakeTransport) SetConnectPayload(line []byte) {}
func (f *fakeTransport) Name() string                  { return "fake" }
func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func buildMeshtasticPacketLine(t *testing.T, psk string, channelName string) []byte {
	t.Helper()
	ch, err := meshtastic.NewChannel(channelName, psk)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	data := &meshtastic.Data{PortNum: meshtastic.PortNumTextMessageApp, Payload: []byte("hi")}
	pkt := &meshtastic.Packet{
		Destination:      0xFFFFFFFF,
		Sender:           0x11223344,
		PacketID:         42,
		HopLimit:         3,
		HopStart:         3,
		ChannelHash:      ch.Hash,
		PayloadDecrypted: data.Serialize(),
	}
	if err := pkt.Encrypt(ch.Key); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// The wire protocol encodes "data" as a JSON array of byte values, not
	// a base64 string; build it as a literal array here rather than
	// handing encoding/json a []byte directly.
	raw := pkt.Serialize()
	dataInts := make([]int, len(raw))
	for i, b := range raw {
		dataInts[i] = int(b)
	}
	line, err := json.Marshal(map[string]any{
		"type": "packetRx",
		"data": dataInts,
		"rssi": -55,
		"snr":  4.5,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return line
}

func TestSupervisorMeshtasticDispatchesDecodedPacket(t *testing.T) {
	transport := newFakeTransport()
	sup, err := New(Config{
		Transport: transport,
		Protocol:  ProtocolMeshtastic,
		Meshtastic: MeshtasticConfig{
			Channels: []meshtastic.ChannelConfig{{Name: "gg", PSKB64: "AQ=="}},
		},
	}, nil)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sup.Stop()

	transport.lines <- buildMeshtasticPacketLine(t, "AQ==", "gg")

	select {
	case msg := <-sup.Messages():
		if msg.Protocol != ProtocolMeshtastic {
			t.Fatalf("unexpected protocol %v", msg.Protocol)
		}
		if msg.Meshtastic == nil || msg.Meshtastic.Raw == nil {
			t.Fatal("expected decoded meshtastic packet")
		}
		if msg.Meshtastic.RSSI != -55 {
			t.Errorf("expected rssi -55, got %d", msg.Meshtastic.RSSI)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded packet")
	}

	if got := sup.Channels(); len(got) != 1 || got[0] != "gg" {
		t.Errorf("unexpected channels %v", got)
	}
}

func TestSupervisorMeshCoreChannelsReturnsNil(t *testing.T) {
	transport := newFakeTransport()
	sup, err := New(Config{
		Transport: transport,
		Protocol:  ProtocolMeshCore,
		MeshCore: MeshCoreConfig{
			Channels: meshcore.DefaultChannels(),
			Radio:    RadioConfig{FrequencyHz: 869525000, SpreadingFactor: 11, BandwidthHz: 250000, CodingRate: 5},
		},
	}, nil)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	if sup.Channels() != nil {
		t.Error("expected nil channel list for a meshcore supervisor")
	}
}

func TestSupervisorStartStopIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	sup, err := New(Config{
		Transport: transport,
		Protocol:  ProtocolMeshtastic,
		Meshtastic: MeshtasticConfig{
			Channels: []meshtastic.ChannelConfig{{Name: "gg", PSKB64: "AQ=="}},
		},
	}, nil)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}

	ctx := context.Background()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("second start should be a no-op, got: %v", err)
	}

	if err := sup.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sup.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op, got: %v", err)
	}

	if _, ok := <-sup.Messages(); ok {
		t.Error("expected Messages() to be closed after Stop")
	}
}

func TestNewRejectsNilTransport(t *testing.T) {
	_, err := New(Config{Protocol: ProtocolMeshtastic}, nil)
	if err == nil {
		t.Fatal("expected error for nil transport")
	}
}
