package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/loragateway/gatewayd/internal/config"
	"github.com/loragateway/gatewayd/internal/gateway"
)

// Stdout writes decoded packets to standard output.
type Stdout struct {
	format  string
	enabled bool
}

// NewStdout creates a new stdout output.
func NewStdout(cfg config.OutputConfig) (*Stdout, error) {
	format := "json"
	if f, ok := cfg.Options["format"].(string); ok {
		format = f
	}

	return &Stdout{
		format:  format,
		enabled: cfg.Enabled,
	}, nil
}

// Send writes a decoded packet to stdout.
func (s *Stdout) Send(_ context.Context, pkt gateway.DecodedPacket) error {
	env := NewEnvelope(time.Now(), pkt)
	if s.format == "json" {
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("failed to marshal packet: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	}
	fmt.Fprintln(os.Stdout, env.Line())
	return nil
}

// Close closes the stdout output (no-op).
func (s *Stdout) Close() error {
	return nil
}

// Name returns the output identifier.
func (s *Stdout) Name() string {
	return "stdout"
}

// Enabled returns whether this output is enabled.
func (s *Stdout) Enabled() bool {
	return s.enabled
}
