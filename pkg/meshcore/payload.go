package meshcore

import (
	"crypto/aes"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// PayloadRaw is any payload type this codec doesn't specifically model, or
// one that failed to parse as its specific type. Its bytes are opaque.
type PayloadRaw struct {
	Data []byte
}

func (p *PayloadRaw) Serialize() []byte { return p.Data }

// PayloadGroupText is a decrypted GRP_TXT payload: a plaintext channel
// message encrypted with AES-ECB and integrity-checked with a truncated
// HMAC-SHA256, as MeshCore's public/hashtag channels use.
type PayloadGroupText struct {
	ChannelName string
	Timestamp   time.Time
	SenderName  string
	Message     string

	channel *Channel // retained so Serialize can re-encrypt with the same key
}

var errGroupTextUndecryptable = &CryptoError{Msg: "could not decrypt group text payload"}

// ParsePayloadGroupText tries every channel in registry looking for one
// whose SHA-256(key)[0] matches the wire channel_hash byte and whose HMAC
// validates, then AES-ECB decrypts and splits "sender: message".
func ParsePayloadGroupText(registry *ChannelRegistry, data []byte) (*PayloadGroupText, error) {
	if len(data) < 3 {
		return nil, &DecodeError{Msg: "group text payload too short"}
	}
	channelHash := data[0]
	cipherMAC := data[1:3]
	ciphertext := data[3:]

	if registry == nil {
		return nil, errGroupTextUndecryptable
	}

	var channel *Channel
	for _, c := range registry.byName {
		if c.Hash != channelHash {
			continue
		}
		mac := hmac.New(sha256.New, c.Key)
		mac.Write(ciphertext)
		if subtle.ConstantTimeCompare(mac.Sum(nil)[:2], cipherMAC) == 1 {
			channel = c
			break
		}
	}
	if channel == nil {
		return nil, errGroupTextUndecryptable
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &DecodeError{Msg: "ciphertext not block-aligned"}
	}
	plaintext, err := aesECBDecrypt(channel.Key, ciphertext)
	if err != nil {
		return nil, err
	}
	if len(plaintext) < 5 {
		return nil, &DecodeError{Msg: "group text plaintext too short"}
	}

	timestamp := binary.LittleEndian.Uint32(plaintext[0:4])
	// attemptNum and txtType are carried on the wire (byte 4, low 2 bits and
	// next 6 bits respectively) but this gateway has no use for either.
	fullMsg := strings.TrimRight(string(plaintext[5:]), "\x00")
	parts := strings.SplitN(fullMsg, ": ", 2)
	if len(parts) != 2 {
		return nil, &DecodeError{Msg: "group text missing sender/message separator"}
	}

	return &PayloadGroupText{
		ChannelName: channel.Name,
		Timestamp:   time.Unix(int64(timestamp), 0).UTC(),
		SenderName:  parts[0],
		Message:     parts[1],
		channel:     channel,
	}, nil
}

// Serialize re-encrypts the payload with its originating channel's key,
// using attempt_num=0 and txt_type=0. Only valid on a PayloadGroupText
// that was produced by ParsePayloadGroupText (it needs the channel key).
func (p *PayloadGroupText) Serialize() []byte {
	if p.channel == nil {
		return nil
	}
	plain := make([]byte, 5)
	binary.LittleEndian.PutUint32(plain[0:4], uint32(p.Timestamp.Unix()))
	plain[4] = 0
	plain = append(plain, []byte(p.SenderName+": "+p.Message)...)
	for len(plain)%aes.BlockSize != 0 {
		plain = append(plain, 0)
	}

	ciphertext, err := aesECBEncrypt(p.channel.Key, plain)
	if err != nil {
		return nil
	}

	mac := hmac.New(sha256.New, p.channel.Key)
	mac.Write(ciphertext)
	cipherMAC := mac.Sum(nil)[:2]

	out := make([]byte, 0, 3+len(ciphertext))
	out = append(out, p.channel.Hash)
	out = append(out, cipherMAC...)
	out = append(out, ciphertext...)
	return out
}

// PayloadAdvert is a decoded node advertisement: a public key, signed
// timestamp, optional location, node type, and optional name.
type PayloadAdvert struct {
	PubKey    ed25519.PublicKey
	Timestamp time.Time
	HasLatLon bool
	Lat       float64
	Lon       float64
	NodeType  AdvertNodeType
	Name      string
}

const (
	advertFlagLatLon = 0x10
	advertFlagFeat1  = 0x20
	advertFlagFeat2  = 0x40
	advertFlagName   = 0x80
)

// ParsePayloadAdvert decodes and Ed25519-verifies an ADVERT payload. The
// signature covers the whole message with the 64 signature bytes excised,
// per MeshCore firmware's Mesh.cpp signing convention.
func ParsePayloadAdvert(data []byte) (*PayloadAdvert, error) {
	const pubkeyLen, tsLen, sigLen = 32, 4, 64
	if len(data) < pubkeyLen+tsLen+sigLen+1 {
		return nil, &DecodeError{Msg: "advert payload too short"}
	}

	idx := 0
	pubkey := append([]byte{}, data[idx:idx+pubkeyLen]...)
	idx += pubkeyLen

	timestamp := binary.LittleEndian.Uint32(data[idx : idx+tsLen])
	idx += tsLen

	signature := append([]byte{}, data[idx:idx+sigLen]...)
	idx += sigLen

	if idx >= len(data) {
		return nil, &DecodeError{Msg: "advert payload missing flags byte"}
	}
	flags := data[idx]
	idx++

	a := &PayloadAdvert{
		PubKey:    pubkey,
		Timestamp: time.Unix(int64(timestamp), 0).UTC(),
		NodeType:  AdvertNodeType(flags & 0xF),
	}

	if flags&advertFlagLatLon != 0 {
		if idx+8 > len(data) {
			return nil, &DecodeError{Msg: "advert payload truncated lat/lon"}
		}
		lat := int32(binary.LittleEndian.Uint32(data[idx : idx+4]))
		idx += 4
		lon := int32(binary.LittleEndian.Uint32(data[idx : idx+4]))
		idx += 4
		a.HasLatLon = true
		a.Lat = float64(lat) / 1000000
		a.Lon = float64(lon) / 1000000
	}
	if flags&advertFlagFeat1 != 0 {
		idx += 2
	}
	if flags&advertFlagFeat2 != 0 {
		idx += 2
	}
	if flags&advertFlagName != 0 {
		if idx > len(data) {
			return nil, &DecodeError{Msg: "advert payload truncated name"}
		}
		a.Name = string(data[idx:])
	}

	signedMessage := buildAdvertSignedMessage(data, pubkeyLen, tsLen, sigLen)
	if !ed25519.Verify(ed25519.PublicKey(pubkey), signedMessage, signature) {
		return nil, &CryptoError{Msg: "advert signature verification failed"}
	}

	return a, nil
}

// buildAdvertSignedMessage reproduces the original message with the
// signature bytes (offset pubkeyLen+tsLen, length sigLen) removed, matching
// how MeshCore firmware computes what it signs.
func buildAdvertSignedMessage(data []byte, pubkeyLen, tsLen, sigLen int) []byte {
	sigStart := pubkeyLen + tsLen
	sigEnd := sigStart + sigLen
	out := make([]byte, 0, len(data)-sigLen)
	out = append(out, data[:sigStart]...)
	out = append(out, data[sigEnd:]...)
	return out
}

// Serialize is unsupported for PayloadAdvert — this gateway never
// originates adverts, only relays the raw packets carrying them untouched.
func (p *PayloadAdvert) Serialize() []byte { return nil }

func aesECBDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Msg: "aes cipher setup failed", Err: err}
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}
	return out, nil
}

func aesECBEncrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Msg: "aes cipher setup failed", Err: err}
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}
	return out, nil
}
