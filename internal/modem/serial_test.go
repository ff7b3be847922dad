//go:build unix

package modem

import (
	"bufio"
	"context"
	"testing"
	"time"

	"github.com/loragateway/gatewayd/internal/ptytest"
)

// openTestPTY opens a pseudo-terminal pair for exercising the Serial
// transport without a real modem attached.
func openTestPTY(t *testing.T) (*ptytest.PTY, *bufio.Scanner) {
	t.Helper()
	pty, err := ptytest.OpenPTY()
	if err != nil {
		t.Skipf("pty unavailable in this environment: %v", err)
	}
	t.Cleanup(func() { _ = pty.Close() })
	return pty, bufio.NewScanner(pty.Master)
}

func TestSerialConnectAndReceiveLine(t *testing.T) {
	pty, scanner := openTestPTY(t)

	s := NewSerial(SerialConfig{Port: pty.SlavePath}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	time.Sleep(100 * time.Millisecond)
	if !s.IsConnected() {
		t.Fatal("expected serial transport to be connected")
	}

	if _, err := pty.Master.Write([]byte(`{"type":"packetRx","data":[104,101,108,108,111],"rssi":-40,"snr":3}` + "\n")); err != nil {
		t.Fatalf("write to master: %v", err)
	}

	select {
	case line := <-s.Lines():
		if len(line) == 0 {
			t.Error("expected non-empty line")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for line")
	}

	if err := s.Send([]byte(`{"type":"packetTx"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !scanner.Scan() {
		t.Fatalf("expected echoed send on master side: %v", scanner.Err())
	}
	if got := scanner.Text(); got != `{"type":"packetTx"}` {
		t.Errorf("unexpected line from slave: %q", got)
	}
}

func TestSerialName(t *testing.T) {
	s := NewSerial(SerialConfig{Port: "/dev/ttyFAKE0"}, nil)
	if s.Name() != "serial:/dev/ttyFAKE0" {
		t.Errorf("unexpected name %q", s.Name())
	}
}
