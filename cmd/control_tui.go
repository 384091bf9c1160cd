// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const maxLogEntries = 100

// Focus states
const (
	focusOutputList = iota
	focusInput
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// outputItem is one row of the output list
type outputItem struct {
	state router.OutputState
}

// Implement list.Item interface
func (o outputItem) Title() string { return fmt.Sprintf("%3d %s", o.state.Index, o.state.Name) }
func (o outputItem) Description() string {
	return fmt.Sprintf("V: %s  A: %s",
		routeLabel(o.state.CurrentVideo, o.state.CurrentVideoName),
		routeLabel(o.state.CurrentAudio, o.state.CurrentAudioName))
}
func (o outputItem) FilterValue() string { return o.state.Name }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	dev      *router.Device
	connInfo string

	// Outputs
	outputList list.Model

	// Control
	inputField   textinput.Model
	signal       purelink.SignalType
	focusedField int

	// Device state
	connected bool
	monitor   string
	afv       bool

	eventLog []logEntry

	// UI state
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type eventBatchMsg struct {
	events  []router.Event
	dropped int64
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(dev *router.Device, connInfo string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "input"
	ti.CharLimit = 3
	ti.Width = 6
	ti.Validate = func(s string) error {
		if _, err := strconv.Atoi(s); s != "" && err != nil {
			return err
		}
		return nil
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	outputList := list.New([]list.Item{}, delegate, 40, 10)
	outputList.Title = "Outputs"
	outputList.SetShowStatusBar(false)
	outputList.SetShowHelp(false)
	outputList.SetFilteringEnabled(false)

	status := dev.Status()
	m := controlModel{
		dev:          dev,
		connInfo:     connInfo,
		outputList:   outputList,
		inputField:   ti,
		signal:       purelink.SignalAudioVideo,
		focusedField: focusOutputList,
		connected:    status.Connected,
		monitor:      status.Monitor,
		afv:          status.AudioFollowsVideo,
		width:        80,
		height:       24,
	}
	m.refreshOutputs()
	m.addLogEntry(fmt.Sprintf("Connecting to %s", connInfo), false)
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.outputList, _ = m.outputList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.monitor = m.dev.Status().Monitor
		return m, controlTickCmd()

	case eventBatchMsg:
		for _, e := range msg.events {
			m.applyEvent(e)
		}
		if msg.dropped > 0 {
			m.addLogEntry(fmt.Sprintf("Display fell behind, %d events skipped", msg.dropped), true)
			m.refreshOutputs()
		}
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusInput {
		m.inputField, cmd = m.inputField.Update(msg)
		cmds = append(cmds, cmd)
	} else {
		m.outputList, cmd = m.outputList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		m.toggleFocus()
		return m, nil

	case "enter":
		return m.handleEnter()

	case "esc":
		if m.focusedField == focusInput {
			m.inputField.SetValue("")
			m.toggleFocus()
		}
		return m, nil
	}

	if m.focusedField == focusInput {
		var cmd tea.Cmd
		m.inputField, cmd = m.inputField.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "s":
		m.cycleSignal()
		return m, nil

	case "a":
		m.dev.SetAudioFollowsVideo(!m.dev.AudioFollowsVideo())
		return m, nil

	case "p":
		m.dev.Poll()
		m.addLogEntry("Polling all outputs", false)
		return m, nil

	case "x":
		return m.routeSelected(purelink.NoSource)
	}

	var cmd tea.Cmd
	m.outputList, cmd = m.outputList.Update(msg)
	return m, cmd
}

func (m *controlModel) toggleFocus() {
	if m.focusedField == focusOutputList {
		m.focusedField = focusInput
		m.inputField.Focus()
		return
	}
	m.focusedField = focusOutputList
	m.inputField.Blur()
}

func (m *controlModel) cycleSignal() {
	switch m.signal {
	case purelink.SignalAudioVideo:
		m.signal = purelink.SignalVideo
	case purelink.SignalVideo:
		m.signal = purelink.SignalAudio
	default:
		m.signal = purelink.SignalAudioVideo
	}
}

func (m *controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.focusedField == focusOutputList {
		m.toggleFocus()
		return m, nil
	}

	value := strings.TrimSpace(m.inputField.Value())
	if value == "" {
		return m, nil
	}
	input, err := strconv.Atoi(value)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid input %q", value), true)
		return m, nil
	}
	m.inputField.SetValue("")
	return m.routeSelected(input)
}

// routeSelected requests a route for the selected output and pulses the
// gate so it is sent at once.
func (m *controlModel) routeSelected(input int) (tea.Model, tea.Cmd) {
	if !m.connected {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	selected := m.getSelectedOutput()
	if selected == nil {
		return m, nil
	}

	if err := m.dev.RequestRoute(selected.Index, input, m.signal); err != nil {
		m.addLogEntry(fmt.Sprintf("Route rejected: %v", err), true)
		return m, nil
	}
	m.dev.SetGateOpen(m.signal, true)
	m.dev.SetGateOpen(m.signal, false)

	m.addLogEntry(fmt.Sprintf("Sent %s to output %d (%s)", purelink.FormatInput(input), selected.Index, m.signal), false)
	return m, nil
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("MATRIXCTL CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if !m.connected {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch s=level a=afv p=poll x=clear", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (outputs) | right panel (control)
	leftWidth := 40
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	controlStyle := boxStyle.Width(rightWidth)
	if m.focusedField == focusOutputList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	} else {
		controlStyle = focusedBoxStyle.Width(rightWidth)
	}
	outputPanel := listStyle.Render(m.outputList.View())
	controlPanel := controlStyle.Render(m.renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, errorStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, outputPanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, errorStyle lipgloss.Style) string {
	var s strings.Builder

	monitor := statsValueStyle.Render(m.monitor)
	if m.monitor != router.StatusOK.String() {
		monitor = errorStyle.Render(m.monitor)
	}
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Link:"), monitor))

	afv := "off (breakaway)"
	if m.afv {
		afv = "on"
	}
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Audio follows video:"), statsValueStyle.Render(afv)))
	s.WriteString(fmt.Sprintf("%s %s\n\n", statsLabelStyle.Render("Level:"), statsValueStyle.Render(m.signal.String())))

	selected := m.getSelectedOutput()
	if selected == nil {
		s.WriteString(headerStyle.Render("No outputs configured"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %d %s\n", statsLabelStyle.Render("Output:"), selected.Index, selected.Name))
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Video:"), routeLabel(selected.CurrentVideo, selected.CurrentVideoName)))
	s.WriteString(fmt.Sprintf("%s %s\n\n", statsLabelStyle.Render("Audio:"), routeLabel(selected.CurrentAudio, selected.CurrentAudioName)))

	s.WriteString(statsLabelStyle.Render("Input: "))
	if m.focusedField == focusInput {
		s.WriteString(m.inputField.View())
	} else {
		s.WriteString(headerStyle.Render("[Tab to enter]"))
	}

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	c := m.dev.Statistics().Snapshot()
	errors := c.SwitcherErrors + c.MalformedLines + c.SendFailures

	errorText := statsValueStyle.Render("0")
	if errors > 0 {
		errorText = errorStyle.Render(fmt.Sprintf("%d", errors))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Lines:"), statsValueStyle.Render(fmt.Sprintf("%d", c.TotalLines)),
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", c.CommandsSent)),
		statsLabelStyle.Render("Errors:"), errorText,
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f lines/s", c.LineRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := min(8, len(m.eventLog))
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Event Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) applyEvent(e router.Event) {
	switch e.Kind {
	case router.EventConnected:
		m.connected = e.On
		if e.On {
			m.addLogEntry(fmt.Sprintf("Connected: %s", m.connInfo), false)
		} else {
			m.addLogEntry("Connection lost - reconnecting...", true)
		}

	case router.EventOnline:
		m.monitor = e.Status
		m.addLogEntry(fmt.Sprintf("Switcher %s", e.Status), !e.On)

	case router.EventAudioFollowsVideo:
		m.afv = e.On
		m.addLogEntry(fmt.Sprintf("Audio follows video: %v", e.On), false)

	case router.EventVideoRoute, router.EventAudioRoute:
		level := purelink.SignalVideo
		if e.Kind == router.EventAudioRoute {
			level = purelink.SignalAudio
		}
		m.addLogEntry(fmt.Sprintf("Output %d %s <- %s", e.Index, level, routeLabel(e.Value, e.Name)), false)
		m.refreshOutputs()
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func routeLabel(input int, name string) string {
	if input == 0 {
		return purelink.NoSourceName
	}
	return fmt.Sprintf("%d %s", input, name)
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

func (m *controlModel) getSelectedOutput() *router.OutputState {
	item, ok := m.outputList.SelectedItem().(outputItem)
	if !ok {
		return nil
	}
	return &item.state
}

func (m *controlModel) refreshOutputs() {
	outputs := m.dev.Outputs()
	items := make([]list.Item, len(outputs))
	for i, o := range outputs {
		items[i] = outputItem{state: o}
	}
	m.outputList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	listHeight := max(m.height/2, 5)
	m.outputList.SetSize(38, listHeight)
}
