package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/loragateway/gatewayd/internal/gateway"
	"github.com/loragateway/gatewayd/internal/output"
)

// Update handles messages and updates the model.
//
//nolint:gocritic // hugeParam: Model must be value receiver to implement tea.Model interface
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.messages = make([]PacketDisplay, 0)
			m.viewport.SetContent(m.renderMessages())
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 8 // Title + status + stats
		footerHeight := 3 // Help text
		verticalMargins := headerHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-verticalMargins)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - verticalMargins
		}
		m.viewport.SetContent(m.renderMessages())

	case tickMsg:
		m.lastUpdate = time.Time(msg)
		if m.service != nil {
			m.stats = m.service.GetStats()
		}
		cmds = append(cmds, tickCmd())

	case packetMsg:
		if msg.ok {
			m.addPacket(msg.pkt)
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()
			cmds = append(cmds, waitForPacket(m.feed))
		}

	case errMsg:
		m.errorMessage = msg.Error()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) addPacket(pkt gateway.DecodedPacket) {
	env := output.NewEnvelope(time.Now(), pkt)

	content := env.Text
	if content == "" {
		content = "<" + env.Kind + ">"
	}

	display := PacketDisplay{
		Time:     env.Time,
		Protocol: env.Protocol,
		From:     env.From,
		Channel:  env.Channel,
		Kind:     env.Kind,
		Content:  content,
		SNR:      env.SNR,
		RSSI:     env.RSSI,
	}

	m.messages = append(m.messages, display)

	if len(m.messages) > MaxMessages {
		m.messages = m.messages[len(m.messages)-MaxMessages:]
	}
}
