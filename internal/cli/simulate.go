package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loragateway/gatewayd/internal/logging"
	"github.com/loragateway/gatewayd/internal/simulator"
)

var (
	simNodeID  uint32
	simChannel string
	simPSK     string
	simInterval time.Duration
	simVerbose  bool
	simSymlink  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated LoRa modem",
	Long: `Run a simulated LoRa modem for testing, without any radio hardware.

This creates a virtual serial port that speaks the same NDJSON wire
protocol a real modem would: it logs the settings the gateway sends and
any outbound packetTx requests, and periodically emits a synthetic,
correctly-encrypted Meshtastic text message as if it had arrived over the
air.

Example:
  # Start the simulator
  gatewayd simulate --verbose

  # In another terminal, point the gateway at the printed device path
  gatewayd run --config config.yaml
`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().Uint32Var(&simNodeID, "node-id", 0x12345678, "simulated remote node number")
	simulateCmd.Flags().StringVar(&simChannel, "channel", "LongFast", "simulated channel name")
	simulateCmd.Flags().StringVar(&simPSK, "psk", "AQ==", "simulated channel PSK (base64)")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", 30*time.Second, "message send interval (0 to disable)")
	simulateCmd.Flags().BoolVarP(&simVerbose, "verbose", "v", false, "verbose output")
	simulateCmd.Flags().StringVar(&simSymlink, "symlink", "", "create symlink to PTY at this path")
}

func runSimulate(_ *cobra.Command, _ []string) error {
	cfg := simulator.DefaultConfig()
	cfg.NodeID = simNodeID
	cfg.Channel.Name = simChannel
	cfg.Channel.PSKB64 = simPSK
	cfg.Interval = simInterval
	cfg.Verbose = simVerbose

	if err := logging.Initialize(logging.Config{Level: logLevel, Format: logFormat}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	device := simulator.New(cfg, logging.With(zap.String("command", "simulate")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path, err := device.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}
	defer device.Stop()

	if simSymlink != "" {
		if err := os.Symlink(path, simSymlink); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create symlink: %v\n", err)
		} else {
			fmt.Printf("Created symlink: %s -> %s\n", simSymlink, path)
			defer os.Remove(simSymlink)
		}
	}

	fmt.Printf("Simulated LoRa modem started\n")
	fmt.Printf("  Device path: %s\n", path)
	fmt.Printf("  Node ID:     !%08x\n", cfg.NodeID)
	fmt.Printf("  Channel:     %s\n", cfg.Channel.Name)
	if cfg.Interval > 0 {
		fmt.Printf("  Message interval: %v\n", cfg.Interval)
	} else {
		fmt.Printf("  Auto messages: disabled\n")
	}
	fmt.Println()
	fmt.Println("Connect with: gatewayd run, with modem.type: serial and modem.serial.port:", path, "in the config file")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	return nil
}
