package meshtastic

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size, in bytes, of a Meshtastic mesh packet
// header (everything preceding the ciphertext).
const HeaderSize = 16

// Packet is a parsed Meshtastic mesh packet: the fixed 16-byte header plus
// whatever encryption/decoding state has been established for it.
type Packet struct {
	Destination uint32
	Sender      uint32
	PacketID    uint32
	HopLimit    uint8 // 3 bits
	WantAck     bool
	ViaMQTT     bool
	HopStart    uint8 // 3 bits
	ChannelHash uint8
	NextHop     uint8
	RelayNode   uint8

	PayloadEncrypted []byte
	PayloadDecrypted []byte // set once decrypted
	Payload          *Data  // set once the decrypted payload parses as Data
}

// DecodeError indicates a packet could not be decoded at the wire level
// (too short, malformed). It is distinct from CryptoError (decryption/
// signature failures) and is always fatal to processing that one packet.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string { return "meshtastic: decode error: " + e.Msg }

// CryptoError indicates an encryption or decryption operation failed, as
// opposed to a DecodeError's wire-framing failure.
type CryptoError struct {
	Msg string
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return "meshtastic: crypto error: " + e.Msg + ": " + e.Err.Error()
	}
	return "meshtastic: crypto error: " + e.Msg
}

func (e *CryptoError) Unwrap() error { return e.Err }

// ParsePacket unpacks the fixed 16-byte little-endian header and leaves the
// remainder as PayloadEncrypted. Decryption and protobuf parsing happen
// separately (see Engine.RX), since both require channel context.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, &DecodeError{Msg: fmt.Sprintf("packet too short: %d bytes", len(data))}
	}

	dest := binary.LittleEndian.Uint32(data[0:4])
	sender := binary.LittleEndian.Uint32(data[4:8])
	packetID := binary.LittleEndian.Uint32(data[8:12])
	flags := data[12]
	channelHash := data[13]
	nextHop := data[14]
	relayNode := data[15]

	return &Packet{
		Destination:      dest,
		Sender:           sender,
		PacketID:         packetID,
		HopLimit:         flags & 0x7,
		WantAck:          (flags>>3)&0x1 != 0,
		ViaMQTT:          (flags>>4)&0x1 != 0,
		HopStart:         (flags >> 5) & 0x7,
		ChannelHash:      channelHash,
		NextHop:          nextHop,
		RelayNode:        relayNode,
		PayloadEncrypted: data[HeaderSize:],
	}, nil
}

// Serialize packs the header and PayloadEncrypted back into wire bytes.
// Callers must have set PayloadEncrypted (e.g. via Engine's encrypt step)
// before calling Serialize.
func (p *Packet) Serialize() []byte {
	out := make([]byte, HeaderSize+len(p.PayloadEncrypted))
	binary.LittleEndian.PutUint32(out[0:4], p.Destination)
	binary.LittleEndian.PutUint32(out[4:8], p.Sender)
	binary.LittleEndian.PutUint32(out[8:12], p.PacketID)

	flags := p.HopLimit & 0x7
	if p.WantAck {
		flags |= 1 << 3
	}
	if p.ViaMQTT {
		flags |= 1 << 4
	}
	flags |= (p.HopStart & 0x7) << 5
	out[12] = flags

	out[13] = p.ChannelHash
	out[14] = p.NextHop
	out[15] = p.RelayNode

	copy(out[HeaderSize:], p.PayloadEncrypted)
	return out
}
