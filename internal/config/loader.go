package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads the configuration from viper and returns a Config struct.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	cfg.Modem.Type = viper.GetString("modem.type")
	cfg.Modem.Serial.Port = viper.GetString("modem.serial.port")
	cfg.Modem.Serial.Baud = viper.GetInt("modem.serial.baud")
	if cfg.Modem.Serial.Baud == 0 {
		cfg.Modem.Serial.Baud = 115200
	}
	cfg.Modem.TCP.Host = viper.GetString("modem.tcp.host")
	cfg.Modem.TCP.Port = viper.GetInt("modem.tcp.port")
	if cfg.Modem.TCP.Port == 0 {
		cfg.Modem.TCP.Port = 4403
	}

	cfg.Protocol = viper.GetString("protocol")
	if cfg.Protocol == "" {
		cfg.Protocol = "meshtastic"
	}

	if err := viper.UnmarshalKey("meshtastic", &cfg.Meshtastic); err != nil {
		return nil, fmt.Errorf("config: decode meshtastic: %w", err)
	}
	if err := viper.UnmarshalKey("meshcore", &cfg.MeshCore); err != nil {
		return nil, fmt.Errorf("config: decode meshcore: %w", err)
	}

	outputsRaw := viper.Get("outputs")
	if outputsRaw != nil {
		if outputs, ok := outputsRaw.([]interface{}); ok {
			cfg.Outputs = make([]OutputConfig, 0, len(outputs))
			for _, out := range outputs {
				outMap, ok := out.(map[string]interface{})
				if !ok {
					continue
				}
				cfg.Outputs = append(cfg.Outputs, OutputConfig{
					Type:    getString(outMap, "type"),
					Enabled: getBool(outMap, "enabled"),
					Options: outMap,
				})
			}
		}
	}

	cfg.Logging.Level = viper.GetString("logging.level")
	cfg.Logging.Format = viper.GetString("logging.format")
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Modem.Type {
	case "serial", "tcp":
	case "":
		return fmt.Errorf("modem.type is required")
	default:
		return fmt.Errorf("invalid modem.type: %s (must be serial or tcp)", c.Modem.Type)
	}

	switch c.Modem.Type {
	case "serial":
		if c.Modem.Serial.Port == "" {
			return fmt.Errorf("modem.serial.port is required for a serial modem")
		}
	case "tcp":
		if c.Modem.TCP.Host == "" {
			return fmt.Errorf("modem.tcp.host is required for a tcp modem")
		}
	}

	switch c.Protocol {
	case "meshtastic":
		if len(c.Meshtastic.Channels) == 0 {
			return fmt.Errorf("meshtastic.channels must list at least one channel")
		}
	case "meshcore":
		if len(c.MeshCore.Channels) == 0 {
			return fmt.Errorf("meshcore.channels must list at least one channel")
		}
	case "":
		return fmt.Errorf("protocol is required")
	default:
		return fmt.Errorf("invalid protocol: %s (must be meshtastic or meshcore)", c.Protocol)
	}

	if len(c.Outputs) == 0 {
		return fmt.Errorf("at least one output must be configured")
	}

	enabledOutputs := 0
	for i, out := range c.Outputs {
		if out.Enabled {
			enabledOutputs++
		}
		if out.Type == "" {
			return fmt.Errorf("outputs[%d].type is required", i)
		}
		switch out.Type {
		case "stdout", "file", "webhook", "mqtt", "apprise":
		default:
			return fmt.Errorf("outputs[%d].type is invalid: %s", i, out.Type)
		}
	}
	if enabledOutputs == 0 {
		return fmt.Errorf("at least one output must be enabled")
	}

	return nil
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
