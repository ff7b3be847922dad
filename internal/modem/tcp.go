package modem

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// reconnectDelay is the pause between failed connection attempts, matching
// the original modem client's "don't immediately attempt to reconnect"
// comment.
const reconnectDelay = 1 * time.Second

// tcpDialTimeout bounds how long a single connection attempt may take.
const tcpDialTimeout = 15 * time.Second

// TCPConfig configures a TCP modem transport.
type TCPConfig struct {
	Host string
	Port int
}

// TCP implements Transport over a plain TCP socket.
type TCP struct {
	config TCPConfig
	lines  chan []byte
	logger *zap.Logger

	mu             sync.RWMutex
	conn           net.Conn
	connected      bool
	connectPayload []byte
	stopCh         chan struct{}
	wg             sync.WaitGroup
}

// NewTCP creates a new TCP modem transport.
func NewTCP(cfg TCPConfig, logger *zap.Logger) *TCP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TCP{
		config: cfg,
		lines:  make(chan []byte, 100),
		logger: logger.With(zap.String("transport", "tcp")),
	}
}

// Connect starts the background connect-read-reconnect loop.
func (t *TCP) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.stopCh != nil {
		t.mu.Unlock()
		return nil
	}
	t.stopCh = make(chan struct{})
	t.mu.Unlock()

	t.wg.Add(1)
	go t.connectionLoop(ctx)
	return nil
}

func (t *TCP) connectionLoop(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		default:
		}

		if err := t.runOneConnection(ctx); err != nil {
			t.logger.Debug("connection attempt failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (t *TCP) runOneConnection(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", t.config.Host, t.config.Port)
	t.logger.Info("connecting to modem", zap.String("address", addr))

	dialer := net.Dialer{Timeout: tcpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &TransportError{Op: fmt.Sprintf("dial %s", addr), Err: err}
	}
	defer conn.Close()

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	payload := t.connectPayload
	t.mu.Unlock()
	t.logger.Info("connected to modem")

	if len(payload) > 0 {
		if _, err := conn.Write(append(append([]byte{}, payload...), '\n')); err != nil {
			return &TransportError{Op: "send connect payload", Err: err}
		}
	}

	defer func() {
		t.mu.Lock()
		t.conn = nil
		t.connected = false
		t.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(tcpDialTimeout)); err != nil {
			return &TransportError{Op: "set read deadline", Err: err}
		}
		if !scanner.Scan() {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.stopCh:
			return nil
		default:
		}
		line := append([]byte{}, scanner.Bytes()...)
		select {
		case t.lines <- line:
		default:
			t.logger.Warn("line channel full, dropping modem line")
		}
	}
	if err := scanner.Err(); err != nil {
		return &TransportError{Op: "read", Err: err}
	}
	return nil
}

// Lines returns the channel of raw NDJSON lines received from the modem.
func (t *TCP) Lines() <-chan []byte {
	return t.lines
}

// Send writes a line followed by a newline to the modem connection.
func (t *TCP) Send(line []byte) error {
	t.mu.RLock()
	conn := t.conn
	connected := t.connected
	t.mu.RUnlock()

	if !connected || conn == nil {
		return &TransportError{Op: "send", Err: errNotConnected}
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close stops the connection loop and closes Lines().
func (t *TCP) Close() error {
	t.mu.Lock()
	stopCh := t.stopCh
	conn := t.conn
	t.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if conn != nil {
		_ = conn.Close()
	}
	t.wg.Wait()
	close(t.lines)
	return nil
}

// SetConnectPayload sets the line sent immediately after a successful
// (re)connection.
func (t *TCP) SetConnectPayload(line []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectPayload = append([]byte{}, line...)
}

// Name returns a human-readable identifier for logs.
func (t *TCP) Name() string {
	return fmt.Sprintf("tcp:%s:%d", t.config.Host, t.config.Port)
}

// IsConnected reports whether the transport currently has a live connection.
func (t *TCP) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}
