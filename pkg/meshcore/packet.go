package meshcore

import (
	"encoding/binary"
	"fmt"
)

// MaxPathSize is the largest number of path bytes a packet may carry.
const MaxPathSize = 64

// MaxPacketPayload is the largest payload a packet may carry.
const MaxPacketPayload = 184

// RouteType is the packet's routing mode, packed into the low 2 bits of
// the header byte.
type RouteType uint8

const (
	RouteTypeTransportFlood  RouteType = 0x0
	RouteTypeFlood           RouteType = 0x1
	RouteTypeDirect          RouteType = 0x2
	RouteTypeTransportDirect RouteType = 0x3
)

// PayloadType identifies the kind of payload the packet carries, packed
// into bits 2-5 of the header byte. Reserved values 0xC-0xE collapse to
// PayloadTypeReserved so they compare equal regardless of which reserved
// code was actually used.
type PayloadType uint8

const (
	PayloadTypeReq       PayloadType = 0x0
	PayloadTypeResponse  PayloadType = 0x1
	PayloadTypeTxtMsg    PayloadType = 0x2
	PayloadTypeAck       PayloadType = 0x3
	PayloadTypeAdvert    PayloadType = 0x4
	PayloadTypeGrpTxt    PayloadType = 0x5
	PayloadTypeGrpData   PayloadType = 0x6
	PayloadTypeAnonReq   PayloadType = 0x7
	PayloadTypePath      PayloadType = 0x8
	PayloadTypeTrace     PayloadType = 0x9
	PayloadTypeMultipart PayloadType = 0xA
	PayloadTypeControl   PayloadType = 0xB
	PayloadTypeReserved  PayloadType = 0xC
	PayloadTypeRawCustom PayloadType = 0xF
)

func normalizePayloadType(v uint8) PayloadType {
	if v >= 0xC && v <= 0xE {
		return PayloadTypeReserved
	}
	return PayloadType(v)
}

// PayloadVersion is the wire format version of the payload, packed into
// the top 2 bits of the header byte. Only V0 is currently understood.
type PayloadVersion uint8

const (
	PayloadVersionV0 PayloadVersion = 0x0
)

// AdvertNodeType identifies the kind of node a PayloadAdvert describes.
type AdvertNodeType uint8

const (
	AdvertNodeTypeChat     AdvertNodeType = 0x1
	AdvertNodeTypeRepeater AdvertNodeType = 0x2
	AdvertNodeTypeRoom     AdvertNodeType = 0x3
	AdvertNodeTypeSensor   AdvertNodeType = 0x4
)

// DecodeError indicates a packet could not be decoded at the wire level.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string { return "meshcore: decode error: " + e.Msg }

// CryptoError indicates a signature verification or decryption failure, as
// opposed to a DecodeError's wire-framing failure.
type CryptoError struct {
	Msg string
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return "meshcore: crypto error: " + e.Msg + ": " + e.Err.Error()
	}
	return "meshcore: crypto error: " + e.Msg
}

func (e *CryptoError) Unwrap() error { return e.Err }

// Payload is any of the decoded payload kinds a Packet may carry.
// Concrete types: *PayloadRaw, *PayloadGroupText, *PayloadAdvert.
type Payload interface {
	Serialize() []byte
}

// Packet is a parsed MeshCore packet.
type Packet struct {
	RouteType      RouteType
	PayloadType    PayloadType
	PayloadVersion PayloadVersion
	TransportCodes []uint16 // nil unless RouteType is one of the TRANSPORT_* kinds
	Path           []uint8
	Payload        Payload
}

// ParsePacket decodes a MeshCore packet. registry resolves PayloadGroupText
// channel keys; it may be nil if the caller only cares about other
// payload kinds (group-text payloads then always fall back to PayloadRaw).
func ParsePacket(registry *ChannelRegistry, data []byte) (*Packet, error) {
	if len(data) < 1 {
		return nil, &DecodeError{Msg: "empty packet"}
	}

	header := data[0]
	pos := 1

	p := &Packet{
		RouteType:      RouteType(header & 0x3),
		PayloadType:    normalizePayloadType((header >> 2) & 0xF),
		PayloadVersion: PayloadVersion((header >> 6) & 0x3),
	}
	if p.PayloadVersion != PayloadVersionV0 {
		return nil, &DecodeError{Msg: fmt.Sprintf("unsupported payload version %d", p.PayloadVersion)}
	}

	if p.RouteType == RouteTypeTransportFlood || p.RouteType == RouteTypeTransportDirect {
		if pos+4 > len(data) {
			return nil, &DecodeError{Msg: "truncated transport codes"}
		}
		p.TransportCodes = []uint16{
			binary.LittleEndian.Uint16(data[pos : pos+2]),
			binary.LittleEndian.Uint16(data[pos+2 : pos+4]),
		}
		pos += 4
	}

	if pos >= len(data) {
		return nil, &DecodeError{Msg: "missing path length"}
	}
	pathLen := int(data[pos])
	pos++
	if pathLen > MaxPathSize {
		return nil, &DecodeError{Msg: "MAX_PATH_SIZE exceeded"}
	}
	if pos+pathLen > len(data) {
		return nil, &DecodeError{Msg: "truncated path"}
	}
	p.Path = append([]uint8{}, data[pos:pos+pathLen]...)
	pos += pathLen

	payloadBytes := data[pos:]
	if len(payloadBytes) > MaxPacketPayload {
		return nil, &DecodeError{Msg: "MAX_PACKET_PAYLOAD exceeded"}
	}

	payload, err := decodePayload(registry, p.PayloadType, payloadBytes)
	if err != nil {
		// Unknown/malformed payloads of a recognized type fall back to raw
		// bytes rather than failing the whole packet, matching the
		// original's "deserialize, on any exception fall back to raw" rule.
		payload = &PayloadRaw{Data: append([]byte{}, payloadBytes...)}
	}
	p.Payload = payload

	return p, nil
}

func decodePayload(registry *ChannelRegistry, t PayloadType, data []byte) (Payload, error) {
	switch t {
	case PayloadTypeAdvert:
		return ParsePayloadAdvert(data)
	case PayloadTypeGrpTxt:
		return ParsePayloadGroupText(registry, data)
	default:
		return &PayloadRaw{Data: append([]byte{}, data...)}, nil
	}
}

// Serialize encodes the packet back into wire bytes.
func (p *Packet) Serialize() []byte {
	header := uint8(p.RouteType&0x3) | uint8(p.PayloadType&0xF)<<2 | uint8(p.PayloadVersion&0x3)<<6
	out := []byte{header}

	if p.RouteType == RouteTypeTransportFlood || p.RouteType == RouteTypeTransportDirect {
		tc := make([]byte, 4)
		if len(p.TransportCodes) == 2 {
			binary.LittleEndian.PutUint16(tc[0:2], p.TransportCodes[0])
			binary.LittleEndian.PutUint16(tc[2:4], p.TransportCodes[1])
		}
		out = append(out, tc...)
	}

	out = append(out, uint8(len(p.Path)))
	out = append(out, p.Path...)

	if p.Payload != nil {
		out = append(out, p.Payload.Serialize()...)
	}
	return out
}
