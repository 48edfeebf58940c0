// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/obscura/pkg/snaplink"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// Last received frame
type frameInfo struct {
	id         string
	address    uint64
	resolution string
	size       int
	latency    time.Duration
	saved      string
}

// monitorModel is the Bubble Tea model for the receive TUI
type monitorModel struct {
	connInfo       string
	showAll        bool
	stats          *snaplink.Statistics
	eventLog       []logEntry
	maxLogEntries  int
	synchronized   bool
	invalidBytes   int
	connectionLost bool
	lastFrame      *frameInfo
	spinner        spinner.Model
	width          int
	height         int
	quitting       bool
}

// Messages
type tickMsg time.Time
type linkEventMsg linkEvent
type syncMsg struct {
	invalidBytes int
}
type connectionLostMsg struct{}

// formatElapsed formats a duration as a human-friendly string
func formatElapsed(d time.Duration) string {
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialMonitorModel(connInfo string, showAll bool) monitorModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	return monitorModel{
		connInfo:      connInfo,
		showAll:       showAll,
		stats:         snaplink.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		spinner:       sp,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spinner.Tick)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case spinner.TickMsg:
		if m.synchronized {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection closed", true)

	case linkEventMsg:
		m.processEvent(linkEvent(msg))
	}

	return m, nil
}

func (m *monitorModel) processEvent(ev linkEvent) {
	if ev.decodeErr != nil {
		m.stats.Update(nil, ev.decodeErr)
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", ev.decodeErr), true)
		return
	}

	m.stats.Update(ev.packet, nil)
	msgType := snaplink.FormatMessageType(ev.packet.Type())

	switch {
	case ev.frame != nil:
		m.stats.RecordFrame(ev.frame)
		m.lastFrame = &frameInfo{
			id:         ev.frame.ID.String(),
			address:    ev.frame.Address,
			resolution: orUnknown(ev.frame.Resolution),
			size:       len(ev.frame.Data),
			latency:    ev.frame.Received.Sub(ev.frame.Captured),
			saved:      ev.saved,
		}
		if ev.frameErr != nil {
			m.addLogEntry(fmt.Sprintf("Frame %s not saved: %v", ev.frame.ID, ev.frameErr), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Frame %s (%d bytes)", ev.frame.ID, len(ev.frame.Data)), false)
		}

	case ev.frameErr != nil:
		m.stats.RecordFrameError(ev.frameErr)
		m.addLogEntry(fmt.Sprintf("%s: %v", msgType, ev.frameErr), true)

	case m.showAll:
		m.addLogEntry(fmt.Sprintf("%s len=%d", msgType, ev.packet.Length()), false)
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("OBSCURA - RECEIVE"))
	s.WriteString("\n")
	mode := "Frames and errors"
	if m.showAll {
		mode = "All packets"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Up %s | 'r' reset, 'q' quit",
		m.connInfo, mode, formatElapsed(time.Since(m.stats.StartTime)))))
	s.WriteString("\n\n")

	switch {
	case m.connectionLost:
		s.WriteString(errorStyle.Render("✗ Connection closed"))
	case !m.synchronized:
		s.WriteString(m.spinner.View() + warningStyle.Render(" Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.renderStatistics()))
	s.WriteString("\n\n")

	if m.lastFrame != nil {
		s.WriteString(statsLabelStyle.Render("Latest Frame:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.renderLastFrame()))
		s.WriteString("\n\n")
	}

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.renderEventLog()))

	return s.String()
}

func (m monitorModel) renderStatistics() string {
	st := m.stats
	var validPercent, errorPercent float64
	packetErrors := st.CRCErrors + st.DecodeErrors
	if st.TotalPackets > 0 {
		validPercent = float64(st.ValidPackets) * 100.0 / float64(st.TotalPackets)
		errorPercent = float64(packetErrors) * 100.0 / float64(st.TotalPackets)
	}

	var c strings.Builder
	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Packets:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalPackets)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidPackets, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", packetErrors, errorPercent)),
	))
	if packetErrors > 0 {
		c.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("CRC Errors:"), errorStyle.Render(fmt.Sprintf("%d", st.CRCErrors)),
			statsLabelStyle.Render("Decode Errors:"), errorStyle.Render(fmt.Sprintf("%d", st.DecodeErrors)),
		))
	}

	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.FramesReceived)),
		statsLabelStyle.Render("Dropped:"), m.countStyle(st.FramesDropped).Render(fmt.Sprintf("%d", st.FramesDropped)),
		statsLabelStyle.Render("Camera Aborts:"), m.countStyle(st.CapturesAborted).Render(fmt.Sprintf("%d", st.CapturesAborted)),
	))
	if st.FramesReceived > 0 {
		mean, stddev := st.FrameSize()
		c.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Frame Size:"), statsValueStyle.Render(fmt.Sprintf("%.0f bytes (sd %.0f)", mean, stddev)),
		))
	}

	errRate := statsValueStyle
	if st.ErrorRate > 0 {
		errRate = errorStyle
	}
	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", st.PacketRate)),
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.2f fps", st.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errRate.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate)),
	))
	return c.String()
}

func (m monitorModel) countStyle(n uint64) lipgloss.Style {
	if n > 0 {
		return warningStyle
	}
	return statsValueStyle
}

func (m monitorModel) renderLastFrame() string {
	f := m.lastFrame
	var c strings.Builder
	c.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("ID:"), statsValueStyle.Render(f.id)))
	c.WriteString(fmt.Sprintf("%s %016X   %s %s   %s %s\n",
		statsLabelStyle.Render("Camera:"), f.address,
		statsLabelStyle.Render("Mode:"), statsValueStyle.Render(f.resolution),
		statsLabelStyle.Render("Size:"), statsValueStyle.Render(fmt.Sprintf("%d bytes", f.size)),
	))
	c.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Latency:"), statsValueStyle.Render(f.latency.Round(time.Millisecond).String())))
	if f.saved != "" {
		c.WriteString(fmt.Sprintf("   %s %s", statsLabelStyle.Render("Saved:"), headerStyle.Render(f.saved)))
	}
	return c.String()
}

func (m monitorModel) renderEventLog() string {
	// Reserve space for header, statistics and frame panels
	logHeight := m.height - 20
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	var c strings.Builder
	for _, entry := range m.eventLog[startIdx:] {
		timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
		if entry.isError {
			c.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			c.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
		}
	}
	return c.String()
}
