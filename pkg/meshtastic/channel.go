package meshtastic

import (
	"encoding/base64"
	"fmt"
)

// defaultPSK is the Meshtastic firmware's well-known default channel key,
// used to expand single-byte PSK shorthand values.
// https://github.com/meshtastic/firmware/blob/6f7149e9a2e54fcb85cfe14cfd2d1db1b25a05b0/src/mesh/Channels.h#L141-L143
var defaultPSK = [16]byte{0xd4, 0xf1, 0xbb, 0x3a, 0x20, 0x29, 0x07, 0x59, 0xf0, 0xbc, 0xff, 0xab, 0xcf, 0x4e, 0x69, 0x01}

// ConfigError indicates a configuration value could not be turned into a
// usable channel (bad PSK, etc). The engine refuses to start when it
// encounters one.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "meshtastic: config error: " + e.Msg }

// Channel is a Meshtastic channel as built from configuration: a name, its
// expanded AES key (0, 16, or 32 bytes), and the XOR channel hash computed
// from name and key.
type Channel struct {
	Name  string
	PSKB64 string
	Key   []byte
	Hash  uint8
}

// NewChannel builds a Channel from a name and a base64-encoded PSK,
// expanding the PSK per Meshtastic firmware rules (see PSKToKey) and
// computing the channel hash.
func NewChannel(name, pskB64 string) (*Channel, error) {
	key, err := PSKToKey(pskB64)
	if err != nil {
		return nil, err
	}
	return &Channel{
		Name:   name,
		PSKB64: pskB64,
		Key:    key,
		Hash:   ChannelHash(name, key),
	}, nil
}

// ChannelHash computes the Meshtastic channel hash: the XOR of every byte
// of the channel name (UTF-8) followed by every byte of the expanded key.
// https://github.com/meshtastic/firmware/blob/6f7149e9a2e54fcb85cfe14cfd2d1db1b25a05b0/src/mesh/Channels.cpp#L33-L50
func ChannelHash(name string, key []byte) uint8 {
	var res uint8
	for _, b := range []byte(name) {
		res ^= b
	}
	for _, b := range key {
		res ^= b
	}
	return res
}

// PSKToKey expands a base64-encoded PSK into an AES key following
// Meshtastic firmware semantics:
//
//   - "" (decodes to zero bytes)      -> ConfigError
//   - decodes to [0]                  -> empty key (encryption disabled)
//   - decodes to [k], k>0              -> defaultPSK with last byte += k-1
//   - 1 < len < 16                     -> zero-padded to 16 bytes (AES-128)
//   - len == 16                        -> as-is (AES-128)
//   - 16 < len < 32                     -> zero-padded to 32 bytes (AES-256)
//   - len == 32                         -> as-is (AES-256)
//
// https://github.com/meshtastic/firmware/blob/6f7149e9a2e54fcb85cfe14cfd2d1db1b25a05b0/src/mesh/Channels.cpp#L206-L254
func PSKToKey(pskB64 string) ([]byte, error) {
	psk, err := base64.StdEncoding.DecodeString(pskB64)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("invalid base64 PSK: %v", err)}
	}

	if len(psk) == 0 {
		return nil, &ConfigError{Msg: "PSK not provided"}
	}

	switch {
	case len(psk) == 1:
		if psk[0] == 0 {
			return []byte{}, nil
		}
		key := defaultPSK
		key[15] += psk[0] - 1
		return key[:], nil
	case len(psk) < 16:
		return zeroPad(psk, 16), nil
	case len(psk) == 16:
		return psk, nil
	case len(psk) < 32:
		return zeroPad(psk, 32), nil
	default:
		return psk, nil
	}
}

func zeroPad(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

// ChannelRegistry holds the configured set of Meshtastic channels, indexed
// both by name and by hash for fast lookup during RX.
type ChannelRegistry struct {
	byName map[string]*Channel
	byHash map[uint8]*Channel
}

// NewChannelRegistry builds a registry from a list of channel configs.
// Returns a ConfigError if any channel's PSK cannot be expanded.
func NewChannelRegistry(configs []ChannelConfig) (*ChannelRegistry, error) {
	reg := &ChannelRegistry{
		byName: make(map[string]*Channel, len(configs)),
		byHash: make(map[uint8]*Channel, len(configs)),
	}
	for _, c := range configs {
		ch, err := NewChannel(c.Name, c.PSKB64)
		if err != nil {
			return nil, err
		}
		reg.byName[ch.Name] = ch
		reg.byHash[ch.Hash] = ch
	}
	return reg, nil
}

// ChannelConfig is the external collaborator's shape for a single
// configured Meshtastic channel.
type ChannelConfig struct {
	Name   string
	PSKB64 string
}

// ByName looks up a channel by its configured name.
func (r *ChannelRegistry) ByName(name string) (*Channel, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// ByHash looks up a channel by its XOR hash, as seen in a received packet's
// header. Hash collisions between distinct channels are possible (the hash
// space is one byte) and resolve to whichever channel was registered for
// that hash; this mirrors Meshtastic firmware behavior, which has the same
// limitation.
func (r *ChannelRegistry) ByHash(hash uint8) (*Channel, bool) {
	c, ok := r.byHash[hash]
	return c, ok
}

// Names returns the configured channel names, in no particular order.
func (r *ChannelRegistry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
