// Package tui provides the terminal user interface.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/loragateway/gatewayd/internal/gateway"
	"github.com/loragateway/gatewayd/internal/relay"
)

// MaxMessages is the maximum number of decoded packets to display.
const MaxMessages = 100

// Model represents the TUI state.
type Model struct {
	// Service reference
	service *relay.Service
	feed    <-chan gateway.DecodedPacket

	// UI state
	width    int
	height   int
	ready    bool
	quitting bool

	// Components
	spinner  spinner.Model
	viewport viewport.Model

	// Data
	messages     []PacketDisplay
	stats        relay.Stats
	startTime    time.Time
	lastUpdate   time.Time
	errorMessage string
}

// PacketDisplay holds one decoded packet for display.
type PacketDisplay struct {
	Time     time.Time
	Protocol string
	From     string
	Channel  string
	Kind     string
	Content  string
	SNR      float64
	RSSI     int
}

// New creates a new TUI model bound to a running relay service.
func New(service *relay.Service) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	var feed <-chan gateway.DecodedPacket
	if service != nil {
		feed = service.Tap(32)
	}

	return Model{
		service:   service,
		feed:      feed,
		spinner:   s,
		messages:  make([]PacketDisplay, 0),
		startTime: time.Now(),
	}
}

// Init initializes the model.
//
//nolint:gocritic // hugeParam: Model must be value receiver to implement tea.Model interface
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tickCmd(),
		waitForPacket(m.feed),
	)
}

// tickMsg is sent periodically to update the UI.
type tickMsg time.Time

// packetMsg is sent when a new decoded packet arrives.
type packetMsg struct {
	pkt gateway.DecodedPacket
	ok  bool
}

// errMsg is sent when an error occurs.
type errMsg error

// tickCmd returns a command that sends a tick every second.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForPacket waits for the next decoded packet from the tap channel.
func waitForPacket(feed <-chan gateway.DecodedPacket) tea.Cmd {
	return func() tea.Msg {
		if feed == nil {
			return nil
		}
		pkt, ok := <-feed
		return packetMsg{pkt: pkt, ok: ok}
	}
}
