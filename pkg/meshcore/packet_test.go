package meshcore

import "testing"

func TestParsePacketRoundTripRaw(t *testing.T) {
	p := &Packet{
		RouteType:   RouteTypeFlood,
		PayloadType: PayloadTypeTxtMsg,
		Path:        []uint8{1, 2, 3},
		Payload:     &PayloadRaw{Data: []byte("hello")},
	}
	raw := p.Serialize()

	got, err := ParsePacket(nil, raw)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if got.RouteType != RouteTypeFlood || got.PayloadType != PayloadTypeTxtMsg {
		t.Errorf("header mismatch: %+v", got)
	}
	if len(got.Path) != 3 || got.Path[2] != 3 {
		t.Errorf("path mismatch: %v", got.Path)
	}
	raw2, ok := got.Payload.(*PayloadRaw)
	if !ok {
		t.Fatalf("expected *PayloadRaw, got %T", got.Payload)
	}
	if string(raw2.Data) != "hello" {
		t.Errorf("payload mismatch: %q", raw2.Data)
	}
}

func TestParsePacketWithTransportCodes(t *testing.T) {
	p := &Packet{
		RouteType:      RouteTypeTransportFlood,
		PayloadType:    PayloadTypeAck,
		TransportCodes: []uint16{0x1111, 0x2222},
		Path:           nil,
		Payload:        &PayloadRaw{Data: nil},
	}
	raw := p.Serialize()

	got, err := ParsePacket(nil, raw)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if len(got.TransportCodes) != 2 || got.TransportCodes[0] != 0x1111 || got.TransportCodes[1] != 0x2222 {
		t.Errorf("transport codes mismatch: %v", got.TransportCodes)
	}
}

func TestParsePacketRejectsOversizedPath(t *testing.T) {
	data := make([]byte, 2+MaxPathSize+1)
	data[0] = uint8(RouteTypeFlood) | uint8(PayloadTypeTxtMsg)<<2
	data[1] = byte(MaxPathSize + 1)
	_, err := ParsePacket(nil, data)
	if err == nil {
		t.Fatal("expected error for oversized path")
	}
}

func TestParsePacketRejectsUnsupportedVersion(t *testing.T) {
	header := uint8(RouteTypeFlood) | uint8(PayloadTypeTxtMsg)<<2 | uint8(1)<<6
	_, err := ParsePacket(nil, []byte{header, 0})
	if err == nil {
		t.Fatal("expected error for unsupported payload version")
	}
}

func TestParsePacketRejectsOversizedPayload(t *testing.T) {
	data := append([]byte{uint8(RouteTypeFlood) | uint8(PayloadTypeTxtMsg)<<2, 0}, make([]byte, MaxPacketPayload+1)...)
	_, err := ParsePacket(nil, data)
	if err == nil {
		t.Fatal("expected error for oversized payload")
	}
}

func TestParsePacketFallsBackToRawOnBadAdvert(t *testing.T) {
	data := []byte{uint8(RouteTypeFlood) | uint8(PayloadTypeAdvert)<<2, 0, 0x01, 0x02}
	got, err := ParsePacket(nil, data)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if _, ok := got.Payload.(*PayloadRaw); !ok {
		t.Errorf("expected fallback to PayloadRaw for malformed advert, got %T", got.Payload)
	}
}
