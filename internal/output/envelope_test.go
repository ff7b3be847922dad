package output

import (
	"strings"
	"testing"
	"time"

	"github.com/loragateway/gatewayd/internal/gateway"
	"github.com/loragateway/gatewayd/pkg/meshcore"
	"github.com/loragateway/gatewayd/pkg/meshtastic"
)

func TestNewEnvelopeMeshtasticTextMessage(t *testing.T) {
	pkt := gateway.DecodedPacket{
		Protocol: gateway.ProtocolMeshtastic,
		Meshtastic: &meshtastic.DecodedPacket{
			Raw: &meshtastic.Packet{
				Sender: 0x12345678,
				Payload: &meshtastic.Data{
					PortNum: meshtastic.PortNumTextMessageApp,
					Payload: []byte("hello mesh"),
				},
			},
			Channel: &meshtastic.Channel{Name: "LongFast"},
			RSSI:    -72,
			SNR:     6.5,
		},
	}

	env := NewEnvelope(time.Unix(0, 0), pkt)

	if env.Protocol != "meshtastic" {
		t.Errorf("expected protocol meshtastic, got %q", env.Protocol)
	}
	if env.From != "!12345678" {
		t.Errorf("expected from !12345678, got %q", env.From)
	}
	if env.Channel != "LongFast" {
		t.Errorf("expected channel LongFast, got %q", env.Channel)
	}
	if env.Kind != "TEXT_MESSAGE_APP" {
		t.Errorf("expected kind TEXT_MESSAGE_APP, got %q", env.Kind)
	}
	if env.Text != "hello mesh" {
		t.Errorf("expected text 'hello mesh', got %q", env.Text)
	}
	if env.RSSI != -72 || env.SNR != 6.5 {
		t.Errorf("expected rssi/snr -72/6.5, got %d/%v", env.RSSI, env.SNR)
	}
}

func TestNewEnvelopeMeshtasticEncrypted(t *testing.T) {
	pkt := gateway.DecodedPacket{
		Protocol: gateway.ProtocolMeshtastic,
		Meshtastic: &meshtastic.DecodedPacket{
			Raw: &meshtastic.Packet{Sender: 1},
		},
	}
	env := NewEnvelope(time.Now(), pkt)
	if env.Kind != "ENCRYPTED" {
		t.Errorf("expected kind ENCRYPTED for an unresolved channel, got %q", env.Kind)
	}
}

func TestNewEnvelopeMeshCoreGroupText(t *testing.T) {
	pkt := gateway.DecodedPacket{
		Protocol: gateway.ProtocolMeshCore,
		MeshCore: &meshcore.DecodedPacket{
			Raw: &meshcore.Packet{
				PayloadType: meshcore.PayloadTypeGrpTxt,
				Payload: &meshcore.PayloadGroupText{
					ChannelName: "Public",
					SenderName:  "alice",
					Message:     "hi",
				},
			},
			RSSI: -50,
			SNR:  9.1,
		},
	}

	env := NewEnvelope(time.Now(), pkt)
	if env.Kind != "GRP_TXT" {
		t.Errorf("expected kind GRP_TXT, got %q", env.Kind)
	}
	if env.From != "alice" || env.Channel != "Public" || env.Text != "hi" {
		t.Errorf("unexpected envelope fields: %+v", env)
	}
}

func TestEnvelopeLineFallsBackToKindWhenTextEmpty(t *testing.T) {
	env := Envelope{Protocol: "meshtastic", Kind: "NODEINFO_APP"}
	line := env.Line()
	if !strings.HasSuffix(line, ": <NODEINFO_APP>") {
		t.Fatalf("expected line to end with the kind placeholder, got %q", line)
	}
}
