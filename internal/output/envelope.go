package output

import (
	"fmt"
	"time"

	"github.com/loragateway/gatewayd/internal/gateway"
	"github.com/loragateway/gatewayd/pkg/meshcore"
	"github.com/loragateway/gatewayd/pkg/meshtastic"
)

// Envelope is the flattened, JSON-friendly shape every output sink renders
// a gateway.DecodedPacket into. It exists so stdout/file/webhook/mqtt don't
// each re-derive "what is this packet, in one line" independently.
type Envelope struct {
	Time     time.Time `json:"time"`
	Protocol string    `json:"protocol"`
	From     string    `json:"from,omitempty"`
	Channel  string    `json:"channel,omitempty"`
	Kind     string    `json:"kind"`
	Text     string    `json:"text,omitempty"`
	RSSI     int       `json:"rssi"`
	SNR      float64   `json:"snr"`
}

// NewEnvelope flattens a decoded packet for output. t is the time the
// packet was handed to the output layer, not the time it was received over
// the air (the gateway doesn't timestamp at decode time).
func NewEnvelope(t time.Time, pkt gateway.DecodedPacket) Envelope {
	env := Envelope{Time: t, Protocol: string(pkt.Protocol)}

	switch pkt.Protocol {
	case gateway.ProtocolMeshtastic:
		if pkt.Meshtastic == nil {
			break
		}
		m := pkt.Meshtastic
		env.RSSI = m.RSSI
		env.SNR = m.SNR
		env.From = fmt.Sprintf("!%08x", m.Raw.Sender)
		if m.Channel != nil {
			env.Channel = m.Channel.Name
		}
		if m.Raw.Payload != nil {
			env.Kind = m.Raw.Payload.PortNum.String()
			if m.Raw.Payload.PortNum == meshtastic.PortNumTextMessageApp {
				env.Text = string(m.Raw.Payload.Payload)
			}
		} else {
			env.Kind = "ENCRYPTED"
		}

	case gateway.ProtocolMeshCore:
		if pkt.MeshCore == nil {
			break
		}
		c := pkt.MeshCore
		env.RSSI = c.RSSI
		env.SNR = c.SNR
		env.Kind = fmt.Sprintf("0x%x", uint8(c.Raw.PayloadType))
		switch p := c.Raw.Payload.(type) {
		case *meshcore.PayloadGroupText:
			env.Kind = "GRP_TXT"
			env.Channel = p.ChannelName
			env.From = p.SenderName
			env.Text = p.Message
		case *meshcore.PayloadAdvert:
			env.Kind = "ADVERT"
			env.From = p.Name
		}
	}

	return env
}

// Line renders the envelope as the one-line text format used by the
// non-JSON formats (stdout --format text, file --format text).
func (e Envelope) Line() string {
	from := e.From
	if from == "" {
		from = "?"
	}
	channel := ""
	if e.Channel != "" {
		channel = " #" + e.Channel
	}
	text := e.Text
	if text == "" {
		text = fmt.Sprintf("<%s>", e.Kind)
	}
	return fmt.Sprintf("[%s] %s/%s%s (RSSI:%d SNR:%.1f): %s",
		e.Time.Format(time.RFC3339), e.Protocol, from, channel, e.RSSI, e.SNR, text)
}
