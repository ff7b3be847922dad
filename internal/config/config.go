// Package config provides configuration types and loading for the gateway.
package config

// Config represents the complete application configuration.
type Config struct {
	Modem      ModemConfig      `mapstructure:"modem"`
	Protocol   string           `mapstructure:"protocol"` // meshtastic, meshcore
	Meshtastic MeshtasticConfig `mapstructure:"meshtastic"`
	MeshCore   MeshCoreConfig   `mapstructure:"meshcore"`
	Outputs    []OutputConfig   `mapstructure:"outputs"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ModemConfig defines how to reach the external radio modem firmware.
type ModemConfig struct {
	Type   string            `mapstructure:"type"` // tcp, serial
	Serial ModemSerialConfig `mapstructure:"serial"`
	TCP    ModemTCPConfig    `mapstructure:"tcp"`
}

// ModemSerialConfig defines serial port modem settings.
type ModemSerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

// ModemTCPConfig defines TCP modem settings.
type ModemTCPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// RadioConfig is the on-disk shape of a protocol's LoRa radio parameters.
// Zero fields are filled in from the protocol's default preset at startup.
type RadioConfig struct {
	Gain                int  `mapstructure:"gain"`
	FrequencyHz         int  `mapstructure:"frequency_hz"`
	SpreadingFactor     int  `mapstructure:"spreading_factor"`
	BandwidthHz         int  `mapstructure:"bandwidth_hz"`
	CodingRate          int  `mapstructure:"coding_rate"`
	PreambleLength      int  `mapstructure:"preamble_length"`
	Syncword            int  `mapstructure:"syncword"`
	TXPower             int  `mapstructure:"tx_power"`
	CRC                 bool `mapstructure:"crc"`
	InvertIQ            bool `mapstructure:"invert_iq"`
	LowDataRateOptimize bool `mapstructure:"low_data_rate_optimize"`
}

// MeshtasticChannelConfig is one configured Meshtastic channel.
type MeshtasticChannelConfig struct {
	Name   string `mapstructure:"name"`
	PSK    string `mapstructure:"psk"` // base64
}

// MeshtasticConfig configures the Meshtastic engine. Only consulted when
// Protocol is "meshtastic".
type MeshtasticConfig struct {
	Channels         []MeshtasticChannelConfig `mapstructure:"channels"`
	PingReplyChannel string                    `mapstructure:"ping_reply_channel"`
	NodeID           uint32                    `mapstructure:"node_id"`
	DedupCapacity    int                       `mapstructure:"dedup_capacity"`
	Radio            RadioConfig               `mapstructure:"radio"`
}

// MeshCoreChannelConfig is one configured MeshCore group channel. Key is
// base64-encoded 16 bytes.
type MeshCoreChannelConfig struct {
	Name string `mapstructure:"name"`
	Key  string `mapstructure:"key"`
}

// MeshCoreConfig configures the MeshCore engine. Only consulted when
// Protocol is "meshcore".
type MeshCoreConfig struct {
	Channels []MeshCoreChannelConfig `mapstructure:"channels"`
	Radio    RadioConfig             `mapstructure:"radio"`
}

// OutputConfig defines a single output destination.
type OutputConfig struct {
	Type    string                 `mapstructure:"type"` // stdout, file, webhook, apprise, mqtt
	Enabled bool                   `mapstructure:"enabled"`
	Options map[string]interface{} `mapstructure:",remain"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Modem: ModemConfig{
			Type: "tcp",
			Serial: ModemSerialConfig{
				Port: "/dev/ttyUSB0",
				Baud: 115200,
			},
			TCP: ModemTCPConfig{
				Host: "localhost",
				Port: 4403,
			},
		},
		Protocol: "meshtastic",
		Outputs: []OutputConfig{
			{
				Type:    "stdout",
				Enabled: true,
				Options: map[string]interface{}{
					"format": "json",
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
