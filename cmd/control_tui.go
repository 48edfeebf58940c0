// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/obscura/pkg/capture"
	"github.com/Thermoquad/obscura/pkg/ov2640"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	minLevel = -2
	maxLevel = 2
)

var (
	effectCycle = []ov2640.SpecialEffect{
		ov2640.EffectNormal, ov2640.EffectAntique, ov2640.EffectBluish, ov2640.EffectGreenish,
		ov2640.EffectReddish, ov2640.EffectBlackWhite, ov2640.EffectNegative, ov2640.EffectBlackWhiteNegative,
	}
	lightCycle = []ov2640.LightMode{
		ov2640.LightAuto, ov2640.LightSunny, ov2640.LightCloudy, ov2640.LightOffice, ov2640.LightHome,
	}
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// modeItem is a selectable output mode
type modeItem struct {
	res ov2640.Resolution
}

// Implement list.Item interface
func (i modeItem) Title() string       { return i.res.String() }
func (i modeItem) Description() string { return fmt.Sprintf("code %d", i.res.Code()) }
func (i modeItem) FilterValue() string { return i.res.String() }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	rigMgr  *rigManager
	rigInfo string
	trigger string

	// Sensor settings as last applied
	mode       ov2640.Resolution
	brightness int
	contrast   int
	saturation int
	effect     int // index into effectCycle
	light      int // index into lightCycle

	modeList list.Model
	spinner  spinner.Model

	// Capture
	state       capture.State
	lastSession *capture.Session
	stats       capture.Stats
	busy        bool

	eventLog      []logEntry
	maxLogEntries int

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type stateMsg struct {
	from, to capture.State
}

type sessionMsg struct {
	session   *capture.Session
	err       error
	stats     capture.Stats
	triggered bool
}

type appliedMsg struct {
	label  string
	report ov2640.ApplyReport
	mode   *ov2640.Resolution
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(rm *rigManager, r *rig, res ov2640.Resolution, reports []ov2640.ApplyReport) controlModel {
	items := make([]list.Item, 0, len(ov2640.Resolutions()))
	for _, mode := range ov2640.Resolutions() {
		items = append(items, modeItem{res: mode})
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	modeList := list.New(items, delegate, 24, 18)
	modeList.Title = "Output Mode"
	modeList.SetShowStatusBar(false)
	modeList.SetShowHelp(false)
	modeList.SetFilteringEnabled(false)
	modeList.Select(int(res))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	m := controlModel{
		rigMgr:        rm,
		rigInfo:       r.info,
		trigger:       triggerPin,
		mode:          res,
		modeList:      modeList,
		spinner:       sp,
		state:         capture.Idle,
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	if rigCfg.Brightness != nil {
		m.brightness = *rigCfg.Brightness
	}
	if rigCfg.Contrast != nil {
		m.contrast = *rigCfg.Contrast
	}
	if rigCfg.Saturation != nil {
		m.saturation = *rigCfg.Saturation
	}
	if e, ok := rigCfg.GetSpecialEffect(); ok {
		m.effect = indexOf(effectCycle, e)
	}
	if l, ok := rigCfg.GetLightMode(); ok {
		m.light = indexOf(lightCycle, l)
	}

	for _, rep := range reports {
		m.logReport("startup", rep)
	}
	return m
}

func indexOf[T comparable](s []T, v T) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return 0
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.modeList, cmd = m.modeList.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.modeList.SetHeight(max(msg.Height-14, 6))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.state = msg.to

	case sessionMsg:
		m.busy = false
		m.stats = msg.stats
		switch {
		case msg.err != nil:
			m.addLogEntry(fmt.Sprintf("Capture refused: %v", msg.err), true)
		case msg.session != nil:
			m.lastSession = msg.session
			m.logSession(msg.session, msg.triggered)
		}

	case appliedMsg:
		m.busy = false
		if msg.mode != nil {
			m.mode = *msg.mode
		}
		m.logReport(msg.label, msg.report)
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		if item, ok := m.modeList.SelectedItem().(modeItem); ok {
			res := item.res
			m.request(rigRequest{label: "mode " + res.String(), mode: &res})
		}
		return m, nil

	case " ", "c":
		m.request(rigRequest{label: "capture", capture: true})
		return m, nil

	case "b", "B":
		m.brightness = stepLevel(m.brightness, msg.String() == "B")
		level := m.brightness
		m.request(rigRequest{label: fmt.Sprintf("brightness %+d", level), apply: func(ctx context.Context) ov2640.ApplyReport {
			return m.rigMgr.rig.sensor.SetBrightness(ctx, level)
		}})
		return m, nil

	case "o", "O":
		m.contrast = stepLevel(m.contrast, msg.String() == "O")
		level := m.contrast
		m.request(rigRequest{label: fmt.Sprintf("contrast %+d", level), apply: func(ctx context.Context) ov2640.ApplyReport {
			return m.rigMgr.rig.sensor.SetContrast(ctx, level)
		}})
		return m, nil

	case "s", "S":
		m.saturation = stepLevel(m.saturation, msg.String() == "S")
		level := m.saturation
		m.request(rigRequest{label: fmt.Sprintf("saturation %+d", level), apply: func(ctx context.Context) ov2640.ApplyReport {
			return m.rigMgr.rig.sensor.SetSaturation(ctx, level)
		}})
		return m, nil

	case "e":
		m.effect = (m.effect + 1) % len(effectCycle)
		effect := effectCycle[m.effect]
		m.request(rigRequest{label: "effect " + effect.String(), apply: func(ctx context.Context) ov2640.ApplyReport {
			return m.rigMgr.rig.sensor.SetSpecialEffect(ctx, effect)
		}})
		return m, nil

	case "w":
		m.light = (m.light + 1) % len(lightCycle)
		mode := lightCycle[m.light]
		m.request(rigRequest{label: "light " + mode.String(), apply: func(ctx context.Context) ov2640.ApplyReport {
			return m.rigMgr.rig.sensor.SetLightMode(ctx, mode)
		}})
		return m, nil
	}

	var cmd tea.Cmd
	m.modeList, cmd = m.modeList.Update(msg)
	return m, cmd
}

func stepLevel(level int, up bool) int {
	if up {
		return min(level+1, maxLevel)
	}
	return max(level-1, minLevel)
}

func (m *controlModel) request(req rigRequest) {
	if !m.rigMgr.submit(req) {
		m.addLogEntry("Rig busy, request dropped: "+req.label, true)
		return
	}
	m.busy = true
}

//////////////////////////////////////////////////////////////
// Event Log
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) logReport(label string, r ov2640.ApplyReport) {
	failed := len(r.TransportErrors) > 0 || r.Err != nil
	m.addLogEntry(fmt.Sprintf("%s: %s", label, r), failed)
}

func (m *controlModel) logSession(s *capture.Session, triggered bool) {
	source := "manual"
	if triggered {
		source = "trigger"
	}
	took := s.Finished.Sub(s.Started).Round(time.Millisecond)
	if s.Outcome == capture.Delivered {
		m.addLogEntry(fmt.Sprintf("Capture (%s): %d bytes in %s", source, s.Length, took), false)
	} else {
		m.addLogEntry(fmt.Sprintf("Capture (%s) aborted: %v", source, s.Err), true)
	}
	if s.HardwareErr != nil {
		m.addLogEntry(fmt.Sprintf("Hardware: %v", s.HardwareErr), true)
	}
	for _, err := range s.DeliveryErrs {
		m.addLogEntry(fmt.Sprintf("Delivery: %v", err), true)
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	focusedBoxStyle := boxStyle.BorderForeground(lipgloss.Color("12"))

	var s strings.Builder
	s.WriteString(titleStyle.Render("OBSCURA CONTROL"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Enter=mode Space=capture", m.rigInfo)))
	s.WriteString("\n\n")

	leftWidth := 26
	rightWidth := max(m.width-leftWidth-6, 40)
	modePanel := focusedBoxStyle.Width(leftWidth).Render(m.modeList.View())
	statusPanel := boxStyle.Width(rightWidth).Render(m.renderStatusPanel())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, modePanel, " ", statusPanel))
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.renderStatisticsBar()))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.renderEventLog()))
	return s.String()
}

func (m controlModel) renderStatusPanel() string {
	var s strings.Builder

	state := statsValueStyle.Render(m.state.String())
	if m.state != capture.Idle || m.busy {
		state = m.spinner.View() + " " + warningStyle.Render(m.state.String())
	}
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("State:"), state))
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Mode:"), statsValueStyle.Render(m.mode.String())))
	if m.trigger != "" {
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Trigger:"), statsValueStyle.Render(m.trigger)))
	}
	s.WriteString("\n")

	s.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s\n",
		statsLabelStyle.Render("Brightness:"), statsValueStyle.Render(fmt.Sprintf("%+d", m.brightness)),
		statsLabelStyle.Render("Contrast:"), statsValueStyle.Render(fmt.Sprintf("%+d", m.contrast)),
		statsLabelStyle.Render("Saturation:"), statsValueStyle.Render(fmt.Sprintf("%+d", m.saturation)),
	))
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		statsLabelStyle.Render("Effect:"), statsValueStyle.Render(effectCycle[m.effect].String()),
		statsLabelStyle.Render("Light:"), statsValueStyle.Render(lightCycle[m.light].String()),
	))
	s.WriteString(headerStyle.Render("b/B brightness  o/O contrast  s/S saturation  e effect  w light"))
	s.WriteString("\n\n")

	if ls := m.lastSession; ls != nil {
		s.WriteString(statsLabelStyle.Render("Last capture:"))
		s.WriteString("\n")
		if ls.Outcome == capture.Delivered {
			s.WriteString(statsValueStyle.Render(fmt.Sprintf("  delivered %d bytes", ls.Length)))
		} else {
			s.WriteString(errorStyle.Render(fmt.Sprintf("  aborted: %v", ls.Err)))
		}
		s.WriteString("\n")
		s.WriteString(headerStyle.Render(fmt.Sprintf("  %s  %s", ls.ID, ls.Finished.Format("15:04:05.000"))))
	} else {
		s.WriteString(headerStyle.Render("No captures yet"))
	}
	return s.String()
}

func (m controlModel) renderStatisticsBar() string {
	st := m.stats
	aborted := statsValueStyle
	if st.Aborted > 0 {
		aborted = errorStyle
	}
	return fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		statsLabelStyle.Render("Captures:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Captures)),
		statsLabelStyle.Render("Delivered:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Delivered)),
		statsLabelStyle.Render("Aborted:"), aborted.Render(fmt.Sprintf("%d (%d overruns)", st.Aborted, st.Overruns)),
		statsLabelStyle.Render("Bytes:"), statsValueStyle.Render(fmt.Sprintf("%d", st.BytesDelivered)),
	)
}

func (m controlModel) renderEventLog() string {
	logHeight := max(m.height-26, 5)
	startIdx := max(len(m.eventLog)-logHeight, 0)

	if len(m.eventLog) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	var c strings.Builder
	for _, entry := range m.eventLog[startIdx:] {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			c.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			c.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
		}
	}
	return c.String()
}
