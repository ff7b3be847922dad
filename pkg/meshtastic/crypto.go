package meshtastic

import (
	"crypto/aes"
	"crypto/cipher"
)

// nonce builds the 16-byte little-endian AES-CTR nonce Meshtastic uses:
// the low 64 bits are the packet ID (zero-extended), the high 64 bits are
// the sender node number (zero-extended).
func nonce(packetID, sender uint32) []byte {
	n := make([]byte, 16)
	n[0] = byte(packetID)
	n[1] = byte(packetID >> 8)
	n[2] = byte(packetID >> 16)
	n[3] = byte(packetID >> 24)
	n[8] = byte(sender)
	n[9] = byte(sender >> 8)
	n[10] = byte(sender >> 16)
	n[11] = byte(sender >> 24)
	return n
}

// cryptPayload runs AES-CTR over data with the given key and the nonce
// derived from packetID/sender. CTR is symmetric, so the same function
// serves both encrypt and decrypt. An empty key means encryption is
// disabled and data is returned unchanged.
func cryptPayload(key []byte, packetID, sender uint32, data []byte) ([]byte, error) {
	if len(key) == 0 {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Msg: "aes cipher setup failed", Err: err}
	}

	stream := cipher.NewCTR(block, nonce(packetID, sender))
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// Decrypt decrypts p.PayloadEncrypted using key (as resolved from the
// packet's channel) and stores the result as p.PayloadDecrypted.
func (p *Packet) Decrypt(key []byte) error {
	pt, err := cryptPayload(key, p.PacketID, p.Sender, p.PayloadEncrypted)
	if err != nil {
		return err
	}
	p.PayloadDecrypted = pt
	return nil
}

// Encrypt encrypts p.PayloadDecrypted using key and stores the result as
// p.PayloadEncrypted, ready for Serialize.
func (p *Packet) Encrypt(key []byte) error {
	ct, err := cryptPayload(key, p.PacketID, p.Sender, p.PayloadDecrypted)
	if err != nil {
		return err
	}
	p.PayloadEncrypted = ct
	return nil
}
