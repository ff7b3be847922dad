package modem

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/loragateway/gatewayd/internal/logging"
)

func init() {
	_ = logging.Initialize(logging.Config{Level: "error", Format: "text"})
}

// fakeModemServer accepts a single TCP connection and hands the caller a
// bufio.Scanner over it plus the net.Conn, so tests can exchange NDJSON
// lines like the real modem firmware would.
func fakeModemServer(t *testing.T) (host string, port int, accept func() (net.Conn, *bufio.Scanner)) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	return host, port, func() (net.Conn, *bufio.Scanner) {
		conn, err := ln.Accept()
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		return conn, bufio.NewScanner(conn)
	}
}

func TestTCPConnectAndReceiveLine(t *testing.T) {
	host, port, accept := fakeModemServer(t)

	tcp := NewTCP(TCPConfig{Host: host, Port: port}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tcp.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tcp.Close()

	conn, _ := accept()
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"type":"packetRx","data":[104,101,108,108,111],"rssi":-42,"snr":5.5}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case line := <-tcp.Lines():
		if len(line) == 0 {
			t.Fatal("expected non-empty line")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for line")
	}

	if !tcp.IsConnected() {
		t.Error("expected transport to report connected")
	}
	if want := "tcp:" + host + ":" + strconv.Itoa(port); tcp.Name() != want {
		t.Errorf("unexpected name %q, want %q", tcp.Name(), want)
	}
}

func TestTCPSendBeforeConnectFails(t *testing.T) {
	tcp := NewTCP(TCPConfig{Host: "127.0.0.1", Port: 1}, nil)
	err := tcp.Send([]byte(`{}`))
	if err == nil {
		t.Fatal("expected error sending before connect")
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("expected a *TransportError, got %T", err)
	}
}

func TestTCPResendsConnectPayloadOnConnect(t *testing.T) {
	host, port, accept := fakeModemServer(t)

	tcp := NewTCP(TCPConfig{Host: host, Port: port}, nil)
	tcp.SetConnectPayload([]byte(`{"type":"settings"}`))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tcp.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tcp.Close()

	conn, scanner := accept()
	defer conn.Close()

	if !scanner.Scan() {
		t.Fatalf("expected connect payload line, scan error: %v", scanner.Err())
	}
	if got := scanner.Text(); got != `{"type":"settings"}` {
		t.Errorf("unexpected connect payload: %q", got)
	}
}

func TestTCPCloseClosesLines(t *testing.T) {
	tcp := NewTCP(TCPConfig{Host: "127.0.0.1", Port: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tcp.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := tcp.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-tcp.Lines(); ok {
		t.Error("expected Lines() channel to be closed")
	}
}
