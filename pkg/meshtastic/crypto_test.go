package meshtastic

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := PSKToKey("MTIzNDU2Nzg5MDEyMzQ1Ng==")
	if err != nil {
		t.Fatalf("PSKToKey: %v", err)
	}

	p := &Packet{
		Sender:           0x01020304,
		PacketID:         0xA1B2C3D4,
		PayloadDecrypted: []byte("hello mesh radio"),
	}
	if err := p.Encrypt(key); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if string(p.PayloadEncrypted) == "hello mesh radio" {
		t.Fatal("expected ciphertext to differ from plaintext")
	}

	p2 := &Packet{
		Sender:           p.Sender,
		PacketID:         p.PacketID,
		PayloadEncrypted: p.PayloadEncrypted,
	}
	if err := p2.Decrypt(key); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(p2.PayloadDecrypted) != "hello mesh radio" {
		t.Errorf("round trip mismatch: got %q", p2.PayloadDecrypted)
	}
}

func TestEmptyKeyIsIdentity(t *testing.T) {
	p := &Packet{PacketID: 1, Sender: 2, PayloadDecrypted: []byte("plain")}
	if err := p.Encrypt(nil); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if string(p.PayloadEncrypted) != "plain" {
		t.Errorf("expected identity pass-through with empty key, got %q", p.PayloadEncrypted)
	}
}

func TestDifferentPacketIDsProduceDifferentCiphertext(t *testing.T) {
	key, _ := PSKToKey("MTIzNDU2Nzg5MDEyMzQ1Ng==")
	a := &Packet{PacketID: 1, Sender: 9, PayloadDecrypted: []byte("same plaintext..")}
	b := &Packet{PacketID: 2, Sender: 9, PayloadDecrypted: []byte("same plaintext..")}
	if err := a.Encrypt(key); err != nil {
		t.Fatal(err)
	}
	if err := b.Encrypt(key); err != nil {
		t.Fatal(err)
	}
	if string(a.PayloadEncrypted) == string(b.PayloadEncrypted) {
		t.Error("expected distinct nonces to produce distinct ciphertext")
	}
}
