package meshcore

import "testing"

func TestNewChannelRejectsWrongKeyLength(t *testing.T) {
	_, err := NewChannel("bad", []byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for non-16-byte key")
	}
}

func TestDefaultChannelsRegisterCleanly(t *testing.T) {
	reg, err := NewChannelRegistry(DefaultChannels())
	if err != nil {
		t.Fatalf("NewChannelRegistry: %v", err)
	}
	for _, name := range []string{"Public", "#test", "#ping"} {
		ch, ok := reg.ByName(name)
		if !ok {
			t.Fatalf("expected default channel %q to be registered", name)
		}
		if _, ok := reg.ByHash(ch.Hash); !ok {
			t.Errorf("expected to find %q by hash", name)
		}
	}
}

func TestHashtagKeyIsDeterministicAndCaseInsensitive(t *testing.T) {
	a := hashtagKey("#test")
	b := hashtagKey("#TEST")
	if string(a) != string(b) {
		t.Error("expected hashtag key derivation to be case-insensitive")
	}
	if len(a) != 16 {
		t.Errorf("expected 16-byte derived key, got %d", len(a))
	}
}
