// Package modem implements the line-delimited-JSON transport to an
// external LoRa modem (over TCP or serial), and a facade that adds
// airtime/duty-cycle accounting and logical-to-wire settings translation
// on top of it.
package modem

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// byteArray marshals as a JSON array of byte values ("data":[1,2,3]) rather
// than encoding/json's default base64-string encoding for []byte. The wire
// protocol's packetTx/packetRx "data" field is specified as a byte array.
type byteArray []byte

func (b byteArray) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%d", v)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (b *byteArray) UnmarshalJSON(data []byte) error {
	var ints []byte
	if err := json.Unmarshal(data, &ints); err == nil {
		// Tolerate a base64-string encoding too, in case a peer marshals
		// plain []byte the encoding/json default way.
		*b = ints
		return nil
	}
	var vals []int
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	out := make([]byte, len(vals))
	for i, v := range vals {
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// wireSettings is the NDJSON "settings" message: any subset of fields may
// be present, and the modem firmware applies whichever keys are set. The
// facade always resends the full set on reconnect.
type wireSettings struct {
	Type                string `json:"type"`
	Receive             *bool  `json:"receive,omitempty"`
	Gain                *int   `json:"gain,omitempty"`
	Frequency           *int   `json:"frequency,omitempty"`
	SpreadingFactor     *int   `json:"spreadingFactor,omitempty"`
	SignalBandwidth     *int   `json:"signalBandwidth,omitempty"`
	CodingRate4         *int   `json:"codingRate4,omitempty"`
	PreambleLength      *int   `json:"preambleLength,omitempty"`
	SyncWord            *int   `json:"syncWord,omitempty"`
	TXPower             *int   `json:"txPower,omitempty"`
	CRC                 *bool  `json:"CRC,omitempty"`
	InvertIQ            *bool  `json:"invertIQ,omitempty"`
	LowDataRateOptimize *bool  `json:"lowDataRateOptimize,omitempty"`
}

// wirePacketTx is the NDJSON "packetTx" message: a request to transmit
// data, with the CAD (channel activity detection) parameters the firmware
// uses to avoid colliding with in-progress traffic.
type wirePacketTx struct {
	Type       string    `json:"type"`
	Data       byteArray `json:"data"`
	CAD        bool      `json:"cad"`
	CADWait    int       `json:"cadWait"`
	CADTimeout int       `json:"cadTimeout"`
}

// wirePacketRx is the NDJSON "packetRx" message the modem emits whenever it
// receives a LoRa frame.
type wirePacketRx struct {
	Type      string    `json:"type"`
	Data      byteArray `json:"data"`
	RSSI      int       `json:"rssi"`
	SNR       float64   `json:"snr"`
	FreqError int       `json:"freqError"`
}

// wireEnvelope is used to sniff a received line's "type" field before
// unmarshaling into the concrete message it names.
type wireEnvelope struct {
	Type string `json:"type"`
}

const (
	defaultCADWait    = 2000
	defaultCADTimeout = 10000
)
