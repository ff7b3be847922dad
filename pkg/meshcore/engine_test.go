package meshcore

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"testing"
	"time"

	"github.com/loragateway/gatewayd/pkg/lora"
)

type fakeTransmitter struct {
	sent [][]byte
}

func (f *fakeTransmitter) TX(data []byte) error {
	f.sent = append(f.sent, data)
	return nil
}

type fakePowerController struct {
	levels []int
}

func (f *fakePowerController) SetTXPower(dBm int) error {
	f.levels = append(f.levels, dBm)
	return nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{Channels: DefaultChannels()}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.sleep = func(time.Duration) {} // skip the real 100ms delay in tests
	return e
}

func buildRawFrame() []byte {
	p := &Packet{
		RouteType:   RouteTypeFlood,
		PayloadType: PayloadTypeTxtMsg,
		Path:        []uint8{5},
		Payload:     &PayloadRaw{Data: []byte("hi")},
	}
	return p.Serialize()
}

func TestEngineRepeatsEveryPacket(t *testing.T) {
	e := newTestEngine(t)
	tx := &fakeTransmitter{}
	e.SetTransmitter(tx)

	e.RX(lora.PacketRx{Packet: lora.Packet{Payload: buildRawFrame()}, RSSI: -90})

	if len(tx.sent) != 1 {
		t.Fatalf("expected unconditional repeat, got %d sends", len(tx.sent))
	}
}

func TestEngineRaisesPowerForCloseRangePackets(t *testing.T) {
	e := newTestEngine(t)
	e.SetTransmitter(&fakeTransmitter{})
	power := &fakePowerController{}
	e.SetPowerController(power)

	e.RX(lora.PacketRx{Packet: lora.Packet{Payload: buildRawFrame()}, RSSI: -60})

	if len(power.levels) != 2 {
		t.Fatalf("expected raise then restore, got %v", power.levels)
	}
	if power.levels[0] != fullPowerDBm || power.levels[1] != restorePowerDBm {
		t.Errorf("expected [%d, %d], got %v", fullPowerDBm, restorePowerDBm, power.levels)
	}
}

func TestEngineLeavesPowerAloneForFarPackets(t *testing.T) {
	e := newTestEngine(t)
	e.SetTransmitter(&fakeTransmitter{})
	power := &fakePowerController{}
	e.SetPowerController(power)

	e.RX(lora.PacketRx{Packet: lora.Packet{Payload: buildRawFrame()}, RSSI: -90})

	if len(power.levels) != 0 {
		t.Errorf("expected no power changes for a far packet, got %v", power.levels)
	}
}

func TestEngineConsumerReceivesDecodedPacket(t *testing.T) {
	e := newTestEngine(t)
	e.SetTransmitter(&fakeTransmitter{})

	var got *DecodedPacket
	e.SetConsumer(func(d DecodedPacket) { got = &d })

	e.RX(lora.PacketRx{Packet: lora.Packet{Payload: buildRawFrame()}, RSSI: -70})

	if got == nil {
		t.Fatal("expected consumer to be invoked")
	}
	if got.Raw.PayloadType != PayloadTypeTxtMsg {
		t.Errorf("expected TXT_MSG payload type, got %v", got.Raw.PayloadType)
	}
}

// buildRawAdvertFrame builds a full on-wire ADVERT packet (header + path +
// signed payload) so it can be fed through RX exactly as a real repeater
// would receive it.
func buildRawAdvertFrame(t *testing.T) []byte {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	unsigned := make([]byte, 0, 32+4+1)
	unsigned = append(unsigned, pub...)
	ts := make([]byte, 4)
	binary.LittleEndian.PutUint32(ts, 1700000000)
	unsigned = append(unsigned, ts...)
	unsigned = append(unsigned, byte(AdvertNodeTypeRepeater)) // flags: node type only

	sig := ed25519.Sign(priv, unsigned)

	payload := make([]byte, 0, len(unsigned)+len(sig))
	payload = append(payload, pub...)
	payload = append(payload, ts...)
	payload = append(payload, sig...)
	payload = append(payload, byte(AdvertNodeTypeRepeater))

	header := uint8(RouteTypeFlood) | uint8(PayloadTypeAdvert)<<2
	frame := []byte{header, 0} // header, path length 0
	frame = append(frame, payload...)
	return frame
}

func TestEngineRepeatsAdvertRawBytesUnchanged(t *testing.T) {
	e := newTestEngine(t)
	tx := &fakeTransmitter{}
	e.SetTransmitter(tx)

	raw := buildRawAdvertFrame(t)

	e.RX(lora.PacketRx{Packet: lora.Packet{Payload: raw}, RSSI: -90})

	if len(tx.sent) != 1 {
		t.Fatalf("expected unconditional repeat, got %d sends", len(tx.sent))
	}
	if !bytes.Equal(tx.sent[0], raw) {
		t.Fatalf("expected the untouched raw frame to be retransmitted, got %d bytes (want %d)", len(tx.sent[0]), len(raw))
	}
}

func TestEngineDropsUndecodablePacket(t *testing.T) {
	e := newTestEngine(t)
	tx := &fakeTransmitter{}
	e.SetTransmitter(tx)

	e.RX(lora.PacketRx{Packet: lora.Packet{Payload: nil}, RSSI: -70})

	if len(tx.sent) != 0 {
		t.Errorf("expected no repeat of an undecodable packet, got %d", len(tx.sent))
	}
}
