package modem

import "context"

// Transport is a line-delimited-JSON connection to an external LoRa modem,
// reached over TCP or serial. Implementations own their own reconnect loop;
// Connect blocks only long enough to kick that loop off.
type Transport interface {
	// Connect starts the connection (and its background reconnect loop).
	Connect(ctx context.Context) error

	// Lines returns the channel of raw NDJSON lines received from the
	// modem. Closed once Close is called.
	Lines() <-chan []byte

	// Send writes one NDJSON line (without its own implementations adding
	// further framing) to the modem. Returns an error if not connected.
	Send(line []byte) error

	// Close cleanly shuts the transport down and closes Lines().
	Close() error

	// SetConnectPayload sets the line sent immediately after a successful
	// (re)connection, before any other traffic — this is how modem
	// settings get (re)pushed whenever the underlying connection drops and
	// reconnects.
	SetConnectPayload(line []byte)

	// Name returns a human-readable identifier for logs.
	Name() string

	// IsConnected reports whether the transport currently has a live
	// connection to the modem.
	IsConnected() bool
}
