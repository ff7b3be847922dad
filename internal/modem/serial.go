package modem

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// serialBaud and serialReadTimeout match the reference modem firmware's
// expected port settings.
const (
	serialBaud        = 115200
	serialReadTimeout = 10 * time.Second
)

// SerialConfig configures a serial modem transport.
type SerialConfig struct {
	Port string
}

// Serial implements Transport over a serial port.
type Serial struct {
	config SerialConfig
	lines  chan []byte
	logger *zap.Logger

	mu             sync.RWMutex
	port           serial.Port
	connected      bool
	connectPayload []byte
	stopCh         chan struct{}
	wg             sync.WaitGroup
}

// NewSerial creates a new serial modem transport.
func NewSerial(cfg SerialConfig, logger *zap.Logger) *Serial {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Serial{
		config: cfg,
		lines:  make(chan []byte, 100),
		logger: logger.With(zap.String("transport", "serial")),
	}
}

// Connect starts the background connect-read-reconnect loop.
func (s *Serial) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return nil
	}
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.connectionLoop(ctx)
	return nil
}

func (s *Serial) connectionLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if err := s.runOneConnection(ctx); err != nil {
			s.logger.Debug("connection attempt failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Serial) runOneConnection(ctx context.Context) error {
	s.logger.Info("opening serial port", zap.String("port", s.config.Port))

	mode := &serial.Mode{
		BaudRate: serialBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.config.Port, mode)
	if err != nil {
		return &TransportError{Op: fmt.Sprintf("open %s", s.config.Port), Err: err}
	}
	defer port.Close()

	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		return &TransportError{Op: "set read timeout", Err: err}
	}

	s.mu.Lock()
	s.port = port
	s.connected = true
	payload := s.connectPayload
	s.mu.Unlock()
	s.logger.Info("serial port open")

	if len(payload) > 0 {
		if _, err := port.Write(append(append([]byte{}, payload...), '\n')); err != nil {
			return &TransportError{Op: "send connect payload", Err: err}
		}
	}

	defer func() {
		s.mu.Lock()
		s.port = nil
		s.connected = false
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(port)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		default:
		}
		line := append([]byte{}, scanner.Bytes()...)
		select {
		case s.lines <- line:
		default:
			s.logger.Warn("line channel full, dropping modem line")
		}
	}
	if err := scanner.Err(); err != nil {
		return &TransportError{Op: "read", Err: err}
	}
	return nil
}

// Lines returns the channel of raw NDJSON lines received from the modem.
func (s *Serial) Lines() <-chan []byte {
	return s.lines
}

// Send writes a line followed by a newline to the serial port.
func (s *Serial) Send(line []byte) error {
	s.mu.RLock()
	port := s.port
	connected := s.connected
	s.mu.RUnlock()

	if !connected || port == nil {
		return &TransportError{Op: "send", Err: errNotConnected}
	}
	if _, err := port.Write(append(line, '\n')); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close stops the connection loop and closes Lines().
func (s *Serial) Close() error {
	s.mu.Lock()
	stopCh := s.stopCh
	port := s.port
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if port != nil {
		_ = port.Close()
	}
	s.wg.Wait()
	close(s.lines)
	return nil
}

// SetConnectPayload sets the line sent immediately after a successful
// (re)connection.
func (s *Serial) SetConnectPayload(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectPayload = append([]byte{}, line...)
}

// Name returns a human-readable identifier for logs.
func (s *Serial) Name() string {
	return fmt.Sprintf("serial:%s", s.config.Port)
}

// IsConnected reports whether the transport currently has a live connection.
func (s *Serial) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}
