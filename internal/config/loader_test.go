package config

import (
	"testing"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Modem.TCP.Port != 4403 {
		t.Errorf("expected default tcp port 4403, got %d", cfg.Modem.TCP.Port)
	}
	if cfg.Modem.Serial.Baud != 115200 {
		t.Errorf("expected default baud 115200, got %d", cfg.Modem.Serial.Baud)
	}
	if cfg.Protocol != "meshtastic" {
		t.Errorf("expected default protocol meshtastic, got %q", cfg.Protocol)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected default logging: %+v", cfg.Logging)
	}
}

func TestLoadDecodesMeshtasticChannels(t *testing.T) {
	resetViper(t)
	viper.Set("protocol", "meshtastic")
	viper.Set("meshtastic.channels", []map[string]interface{}{
		{"name": "LongFast", "psk": "AQ=="},
	})
	viper.Set("meshtastic.ping_reply_channel", "LongFast")
	viper.Set("meshtastic.node_id", 0x12345678)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Meshtastic.Channels) != 1 || cfg.Meshtastic.Channels[0].Name != "LongFast" {
		t.Fatalf("unexpected channels: %+v", cfg.Meshtastic.Channels)
	}
	if cfg.Meshtastic.NodeID != 0x12345678 {
		t.Errorf("unexpected node id: %#x", cfg.Meshtastic.NodeID)
	}
}

func TestValidateRequiresModemType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Modem.Type = ""
	cfg.Meshtastic.Channels = []MeshtasticChannelConfig{{Name: "a", PSK: "AQ=="}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty modem.type")
	}
}

func TestValidateRequiresAtLeastOneChannel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Protocol = "meshtastic"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing meshtastic channels")
	}
}

func TestValidateRejectsUnknownOutputType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Meshtastic.Channels = []MeshtasticChannelConfig{{Name: "a", PSK: "AQ=="}}
	cfg.Outputs = []OutputConfig{{Type: "carrier-pigeon", Enabled: true}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid output type")
	}
}

func TestValidateRequiresAnEnabledOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Meshtastic.Channels = []MeshtasticChannelConfig{{Name: "a", PSK: "AQ=="}}
	cfg.Outputs = []OutputConfig{{Type: "stdout", Enabled: false}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when no output is enabled")
	}
}
