package meshtastic

import (
	"errors"
)

// PortNum identifies the application that produced a Data payload.
type PortNum uint32

// Meshtastic application port numbers actually exercised by this gateway;
// unrecognized values still round-trip (portnum is carried as a plain
// integer), they're just not named.
const (
	PortNumUnknownApp     PortNum = 0
	PortNumTextMessageApp PortNum = 1
	PortNumPositionApp    PortNum = 3
	PortNumNodeInfoApp    PortNum = 4
	PortNumRoutingApp     PortNum = 5
	PortNumTelemetryApp   PortNum = 67
	PortNumTracerouteApp  PortNum = 70
)

func (p PortNum) String() string {
	switch p {
	case PortNumTextMessageApp:
		return "TEXT_MESSAGE_APP"
	case PortNumPositionApp:
		return "POSITION_APP"
	case PortNumNodeInfoApp:
		return "NODEINFO_APP"
	case PortNumRoutingApp:
		return "ROUTING_APP"
	case PortNumTelemetryApp:
		return "TELEMETRY_APP"
	case PortNumTracerouteApp:
		return "TRACEROUTE_APP"
	default:
		return "UNKNOWN_APP"
	}
}

// Data is the decoded Meshtastic application payload. Only the fields this
// gateway actually touches (ping/pong, traceroute) are modeled; everything
// else round-trips as an opaque Payload.
type Data struct {
	PortNum      PortNum
	Payload      []byte
	WantResponse bool
	Dest         uint32
	Source       uint32
	RequestID    uint32
	ReplyID      uint32
	Emoji        uint32
	Bitfield     uint32
	HasRequestID bool
}

// ErrInvalidProtobuf indicates malformed varint/length-delimited data was
// encountered while parsing a Data or RouteDiscovery message.
var ErrInvalidProtobuf = errors.New("meshtastic: invalid protobuf data")

// ParseData decodes a Data message from its serialized bytes. This is a
// minimal hand-rolled protobuf reader scoped to the fields above, not a
// generated parser: the gateway only ever needs to round-trip a handful of
// fields, so pulling in a full protobuf toolchain buys nothing.
func ParseData(data []byte) (*Data, error) {
	d := &Data{}
	pos := 0

	for pos < len(data) {
		tag := data[pos]
		fieldNum := tag >> 3
		wireType := tag & 0x07
		pos++

		switch wireType {
		case 0: // varint
			val, n, ok := decodeVarint(data[pos:])
			if !ok {
				return nil, ErrInvalidProtobuf
			}
			pos += n
			switch fieldNum {
			case 1:
				d.PortNum = PortNum(val)
			case 3:
				d.WantResponse = val != 0
			case 4:
				d.Dest = uint32(val)
			case 5:
				d.Source = uint32(val)
			case 6:
				d.RequestID = uint32(val)
				d.HasRequestID = true
			case 7:
				d.ReplyID = uint32(val)
			case 8:
				d.Emoji = uint32(val)
			case 9:
				d.Bitfield = uint32(val)
			}

		case 2: // length-delimited
			length, n, ok := decodeVarint(data[pos:])
			if !ok {
				return nil, ErrInvalidProtobuf
			}
			pos += n
			if pos+int(length) > len(data) {
				return nil, ErrInvalidProtobuf
			}
			if fieldNum == 2 {
				d.Payload = append([]byte{}, data[pos:pos+int(length)]...)
			}
			pos += int(length)

		default:
			return nil, ErrInvalidProtobuf
		}
	}

	return d, nil
}

// Serialize encodes a Data message back into wire bytes.
func (d *Data) Serialize() []byte {
	var buf []byte
	buf = appendVarintField(buf, 1, uint64(d.PortNum))
	if len(d.Payload) > 0 {
		buf = appendBytesField(buf, 2, d.Payload)
	}
	if d.WantResponse {
		buf = appendVarintField(buf, 3, 1)
	}
	if d.Dest != 0 {
		buf = appendVarintField(buf, 4, uint64(d.Dest))
	}
	if d.Source != 0 {
		buf = appendVarintField(buf, 5, uint64(d.Source))
	}
	if d.HasRequestID {
		buf = appendVarintField(buf, 6, uint64(d.RequestID))
	}
	if d.ReplyID != 0 {
		buf = appendVarintField(buf, 7, uint64(d.ReplyID))
	}
	if d.Emoji != 0 {
		buf = appendVarintField(buf, 8, uint64(d.Emoji))
	}
	if d.Bitfield != 0 {
		buf = appendVarintField(buf, 9, uint64(d.Bitfield))
	}
	return buf
}

// RouteDiscovery is the TRACEROUTE_APP payload: the forward/backward hop
// lists and their per-hop SNR, appended to as a traceroute packet is relayed.
type RouteDiscovery struct {
	Route       []uint32
	SNRTowards  []int32
	RouteBack   []uint32
	SNRBack     []int32
}

// ParseRouteDiscovery decodes a RouteDiscovery payload.
func ParseRouteDiscovery(data []byte) (*RouteDiscovery, error) {
	rd := &RouteDiscovery{}
	pos := 0

	for pos < len(data) {
		tag := data[pos]
		fieldNum := tag >> 3
		wireType := tag & 0x07
		pos++

		switch wireType {
		case 0:
			val, n, ok := decodeVarint(data[pos:])
			if !ok {
				return nil, ErrInvalidProtobuf
			}
			pos += n
			switch fieldNum {
			case 1:
				rd.Route = append(rd.Route, uint32(val))
			case 2:
				rd.SNRTowards = append(rd.SNRTowards, int32(int64(val)))
			case 3:
				rd.RouteBack = append(rd.RouteBack, uint32(val))
			case 4:
				rd.SNRBack = append(rd.SNRBack, int32(int64(val)))
			}
		case 2:
			length, n, ok := decodeVarint(data[pos:])
			if !ok {
				return nil, ErrInvalidProtobuf
			}
			pos += n + int(length)
		default:
			return nil, ErrInvalidProtobuf
		}
	}

	return rd, nil
}

// Serialize encodes a RouteDiscovery payload back into wire bytes.
func (rd *RouteDiscovery) Serialize() []byte {
	var buf []byte
	for _, v := range rd.Route {
		buf = appendVarintField(buf, 1, uint64(v))
	}
	for _, v := range rd.SNRTowards {
		buf = appendVarintField(buf, 2, uint64(uint32(v)))
	}
	for _, v := range rd.RouteBack {
		buf = appendVarintField(buf, 3, uint64(v))
	}
	for _, v := range rd.SNRBack {
		buf = appendVarintField(buf, 4, uint64(uint32(v)))
	}
	return buf
}

func decodeVarint(data []byte) (uint64, int, bool) {
	var val uint64
	var shift uint
	for i, b := range data {
		val |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return val, i + 1, true
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, false
		}
	}
	return 0, 0, false
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func appendVarintField(buf []byte, fieldNum int, v uint64) []byte {
	tag := uint64(fieldNum)<<3 | 0
	buf = appendVarint(buf, tag)
	return appendVarint(buf, v)
}

func appendBytesField(buf []byte, fieldNum int, data []byte) []byte {
	tag := uint64(fieldNum)<<3 | 2
	buf = appendVarint(buf, tag)
	buf = appendVarint(buf, uint64(len(data)))
	return append(buf, data...)
}
