package meshcore

import (
	"crypto/ed25519"
	"encoding/binary"
	"testing"
	"time"
)

func testChannel(t *testing.T) *Channel {
	t.Helper()
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i + 1)
	}
	ch, err := NewChannel("Public", key)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	return ch
}

func TestPayloadGroupTextRoundTrip(t *testing.T) {
	ch := testChannel(t)
	registry := &ChannelRegistry{
		byName: map[string]*Channel{ch.Name: ch},
		byHash: map[uint8]*Channel{ch.Hash: ch},
	}

	original := &PayloadGroupText{
		ChannelName: ch.Name,
		Timestamp:   time.Unix(1700000000, 0).UTC(),
		SenderName:  "alice",
		Message:     "hello channel",
		channel:     ch,
	}
	wire := original.Serialize()

	got, err := ParsePayloadGroupText(registry, wire)
	if err != nil {
		t.Fatalf("ParsePayloadGroupText: %v", err)
	}
	if got.SenderName != "alice" || got.Message != "hello channel" {
		t.Errorf("sender/message mismatch: %+v", got)
	}
	if got.ChannelName != "Public" {
		t.Errorf("expected channel name Public, got %q", got.ChannelName)
	}
	if !got.Timestamp.Equal(original.Timestamp) {
		t.Errorf("timestamp mismatch: got %v want %v", got.Timestamp, original.Timestamp)
	}
}

func TestPayloadGroupTextRejectsBadMAC(t *testing.T) {
	ch := testChannel(t)
	registry := &ChannelRegistry{
		byName: map[string]*Channel{ch.Name: ch},
		byHash: map[uint8]*Channel{ch.Hash: ch},
	}

	original := &PayloadGroupText{Timestamp: time.Now().UTC(), SenderName: "a", Message: "b", channel: ch}
	wire := original.Serialize()
	wire[1] ^= 0xFF // corrupt the MAC

	_, err := ParsePayloadGroupText(registry, wire)
	if err == nil {
		t.Fatal("expected MAC mismatch to be rejected")
	}
}

func TestPayloadAdvertRoundTripAndVerifies(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	ts := uint32(time.Now().Unix())
	var header []byte
	header = append(header, pub...)
	tsBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(tsBytes, ts)
	header = append(header, tsBytes...)
	header = append(header, make([]byte, 64)...) // signature placeholder
	header = append(header, 0x82)                // node_type=REPEATER(2), NAME flag set
	header = append(header, []byte("relay-node")...)

	signedMessage := buildAdvertSignedMessage(header, 32, 4, 64)
	sig := ed25519.Sign(priv, signedMessage)
	copy(header[32+4:32+4+64], sig)

	got, err := ParsePayloadAdvert(header)
	if err != nil {
		t.Fatalf("ParsePayloadAdvert: %v", err)
	}
	if got.NodeType != AdvertNodeTypeRepeater {
		t.Errorf("expected node type repeater, got %v", got.NodeType)
	}
	if got.Name != "relay-node" {
		t.Errorf("expected name relay-node, got %q", got.Name)
	}
	if got.HasLatLon {
		t.Error("expected no lat/lon when flag unset")
	}
}

func TestPayloadAdvertRejectsBadSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var header []byte
	header = append(header, pub...)
	header = append(header, make([]byte, 4)...)
	header = append(header, make([]byte, 64)...) // all-zero signature, won't verify
	header = append(header, 0x01)

	_, err = ParsePayloadAdvert(header)
	if err == nil {
		t.Fatal("expected signature verification failure")
	}
	if _, ok := err.(*CryptoError); !ok {
		t.Errorf("expected a *CryptoError, got %T", err)
	}
}

func TestPayloadAdvertWithLatLon(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var header []byte
	header = append(header, pub...)
	header = append(header, make([]byte, 4)...)
	header = append(header, make([]byte, 64)...)
	header = append(header, 0x11) // CHAT_NODE | LATLON flag

	latBytes := make([]byte, 4)
	lonBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(latBytes, uint32(int32(51500000)))
	binary.LittleEndian.PutUint32(lonBytes, uint32(int32(-100000)))
	header = append(header, latBytes...)
	header = append(header, lonBytes...)

	signedMessage := buildAdvertSignedMessage(header, 32, 4, 64)
	sig := ed25519.Sign(priv, signedMessage)
	copy(header[32+4:32+4+64], sig)

	got, err := ParsePayloadAdvert(header)
	if err != nil {
		t.Fatalf("ParsePayloadAdvert: %v", err)
	}
	if !got.HasLatLon {
		t.Fatal("expected lat/lon to be present")
	}
	if got.Lat != 51.5 || got.Lon != -0.1 {
		t.Errorf("unexpected lat/lon: %v,%v", got.Lat, got.Lon)
	}
}
