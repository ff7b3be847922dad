// Package meshcore implements a MeshCore-compatible packet codec and the
// minimal engine logic (RSSI-gated repeat policy) needed to act as a
// well-mannered MeshCore repeater.
package meshcore

import "crypto/sha256"

// ConfigError indicates a configuration value could not be turned into a
// usable channel.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "meshcore: config error: " + e.Msg }

// Channel is a MeshCore group channel: a name and its 16-byte AES key. Group
// text messages are matched to a channel by the first byte of
// SHA-256(key), not by name — see ChannelRegistry.ByHash.
type Channel struct {
	Name string
	Key  []byte
	Hash uint8
}

// NewChannel builds a Channel from a name and a 16-byte key.
func NewChannel(name string, key []byte) (*Channel, error) {
	if len(key) != 16 {
		return nil, &ConfigError{Msg: "channel key must be 16 bytes"}
	}
	sum := sha256.Sum256(key)
	return &Channel{Name: name, Key: key, Hash: sum[0]}, nil
}

// ChannelConfig is the external collaborator's shape for a single configured
// MeshCore channel.
type ChannelConfig struct {
	Name string
	Key  []byte
}

// ChannelRegistry holds the configured set of MeshCore channels, indexed by
// the SHA-256(key)[0] hash a PayloadGroupText carries on the wire.
type ChannelRegistry struct {
	byName map[string]*Channel
	byHash map[uint8]*Channel
}

// NewChannelRegistry builds a registry from a list of channel configs.
func NewChannelRegistry(configs []ChannelConfig) (*ChannelRegistry, error) {
	reg := &ChannelRegistry{
		byName: make(map[string]*Channel, len(configs)),
		byHash: make(map[uint8]*Channel, len(configs)),
	}
	for _, c := range configs {
		ch, err := NewChannel(c.Name, c.Key)
		if err != nil {
			return nil, err
		}
		reg.byName[ch.Name] = ch
		reg.byHash[ch.Hash] = ch
	}
	return reg, nil
}

// ByName looks up a channel by its configured name.
func (r *ChannelRegistry) ByName(name string) (*Channel, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// ByHash looks up a channel by its SHA-256(key)[0] hash, as carried in a
// received PayloadGroupText. Like Meshtastic's channel hash, collisions are
// possible and resolve to whichever channel registered that hash last.
func (r *ChannelRegistry) ByHash(hash uint8) (*Channel, bool) {
	c, ok := r.byHash[hash]
	return c, ok
}

// hashtagKey derives a channel key from a hashtag-style name the way the
// default channel set does: lowercase UTF-8 name, SHA-256, first 16 bytes.
func hashtagKey(name string) []byte {
	sum := sha256.Sum256([]byte(lower(name)))
	return sum[:16]
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// DefaultChannels returns the example channel set a fresh MeshCore node
// ships with, for use by tests and the reference CLI. The engine itself
// never falls back to this — callers must always supply a configured
// channel set.
func DefaultChannels() []ChannelConfig {
	publicKey := []byte{
		0x8b, 0x33, 0x87, 0xe9, 0xc5, 0xcd, 0xea, 0x6a,
		0xc9, 0xe5, 0xed, 0xba, 0xa1, 0x15, 0xcd, 0x72,
	}
	return []ChannelConfig{
		{Name: "Public", Key: publicKey},
		{Name: "#test", Key: hashtagKey("#test")},
		{Name: "#ping", Key: hashtagKey("#ping")},
	}
}
