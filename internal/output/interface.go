// Package output provides decoded-packet sinks: stdout, file, webhook,
// Apprise, and MQTT destinations a gateway can fan a decoded packet out to.
package output

import (
	"context"

	"github.com/loragateway/gatewayd/internal/gateway"
)

// Output defines the interface for decoded-packet output destinations.
type Output interface {
	// Send forwards a decoded packet to the output destination.
	Send(ctx context.Context, pkt gateway.DecodedPacket) error

	// Close cleanly shuts down the output and releases any resources.
	Close() error

	// Name returns a unique identifier for this output.
	Name() string

	// Enabled returns true if this output is enabled and should receive packets.
	Enabled() bool
}
