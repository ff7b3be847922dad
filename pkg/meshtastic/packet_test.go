package meshtastic

import "testing"

func TestParsePacketRoundTrip(t *testing.T) {
	p := &Packet{
		Destination:      0x12345678,
		Sender:           0x9ABCDEF0,
		PacketID:         0x01020304,
		HopLimit:         5,
		WantAck:          true,
		ViaMQTT:          false,
		HopStart:         7,
		ChannelHash:      0x42,
		NextHop:          0x01,
		RelayNode:        0x02,
		PayloadEncrypted: []byte{0xde, 0xad, 0xbe, 0xef},
	}
	raw := p.Serialize()

	got, err := ParsePacket(raw)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if got.Destination != p.Destination || got.Sender != p.Sender || got.PacketID != p.PacketID {
		t.Errorf("header ids mismatch: %+v", got)
	}
	if got.HopLimit != 5 || got.HopStart != 7 {
		t.Errorf("hop fields mismatch: limit=%d start=%d", got.HopLimit, got.HopStart)
	}
	if !got.WantAck || got.ViaMQTT {
		t.Errorf("flag fields mismatch: wantAck=%v viaMQTT=%v", got.WantAck, got.ViaMQTT)
	}
	if got.ChannelHash != 0x42 || got.NextHop != 0x01 || got.RelayNode != 0x02 {
		t.Errorf("trailer fields mismatch: %+v", got)
	}
	if string(got.PayloadEncrypted) != string(p.PayloadEncrypted) {
		t.Errorf("payload mismatch: got %x", got.PayloadEncrypted)
	}
}

func TestParsePacketTooShort(t *testing.T) {
	_, err := ParsePacket(make([]byte, 10))
	if err == nil {
		t.Fatal("expected error for short packet")
	}
	if _, ok := err.(*DecodeError); !ok {
		t.Errorf("expected *DecodeError, got %T", err)
	}
}

func TestParsePacketHopLimitAndStartPackInSameByte(t *testing.T) {
	p := &Packet{HopLimit: 3, HopStart: 3, ViaMQTT: true}
	raw := p.Serialize()
	got, err := ParsePacket(raw)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if got.HopLimit != 3 || got.HopStart != 3 || !got.ViaMQTT {
		t.Errorf("packed flag byte round trip failed: %+v", got)
	}
}
