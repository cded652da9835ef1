// Package tui is the terminal rendition of the dashboard. It only renders
// state snapshots and forwards key presses as operator actions.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ilievs/rigdash/core"
	"github.com/ilievs/rigdash/dashboard"
)

const (
	actionTimeout = 10 * time.Second
	logLines      = 12
)

// Actions are the operator requests the terminal can issue.
type Actions interface {
	LoadConfig(ctx context.Context) (core.DeviceConfig, error)
	Dispatch(ctx context.Context, cmd core.Command) core.CommandResult
}

type Stream interface {
	State() core.ConnState
	Start(ctx context.Context) (<-chan error, error)
}

type stateMsg dashboard.State

// actionDoneMsg marks a finished request; its outcome reaches the view
// through the next state snapshot.
type actionDoneMsg struct{}

var keyCommands = map[string]core.Command{
	"s": core.CommandStart,
	"p": core.CommandPause,
	"r": core.CommandResume,
	"x": core.CommandStop,
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(12)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	connStyles = map[core.ConnState]lipgloss.Style{
		core.Connecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		core.Connected:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		core.Disconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

type Model struct {
	ctx     context.Context
	actions Actions
	stream  Stream
	updates <-chan dashboard.State

	state    dashboard.State
	width    int
	quitting bool
}

func New(ctx context.Context, actions Actions, st Stream, updates <-chan dashboard.State) Model {
	return Model{
		ctx:     ctx,
		actions: actions,
		stream:  st,
		updates: updates,
		state:   dashboard.InitialState(),
	}
}

func (m Model) Init() tea.Cmd {
	return waitForState(m.updates)
}

func waitForState(updates <-chan dashboard.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-updates
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.state = dashboard.State(msg)
		return m, waitForState(m.updates)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "l":
		return m, m.reload()
	case "c":
		return m, m.reconnect()
	}
	if cmd, ok := keyCommands[key]; ok {
		return m, m.dispatch(cmd)
	}
	return m, nil
}

func (m Model) reload() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, actionTimeout)
		defer cancel()
		_, _ = m.actions.LoadConfig(ctx)
		return actionDoneMsg{}
	}
}

func (m Model) dispatch(cmd core.Command) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, actionTimeout)
		defer cancel()
		m.actions.Dispatch(ctx, cmd)
		return actionDoneMsg{}
	}
}

// reconnect starts a new session; it lives until the stream drops again or
// the program exits.
func (m Model) reconnect() tea.Cmd {
	if m.stream.State() != core.Disconnected {
		return nil
	}
	return func() tea.Msg {
		_, _ = m.stream.Start(m.ctx)
		return actionDoneMsg{}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	st := m.state

	var b strings.Builder
	b.WriteString(titleStyle.Render("rigdash"))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	row("Stream", connStyles[st.Connection].Render(st.Connection.String()))
	row("Status", orDash(st.DisplayStatus))
	if st.Config != nil {
		c := st.Config
		row("Config", fmt.Sprintf("sides=%d rolls=%d settle=%dms frame=%s quality=%d",
			c.Sides, c.Rolls, c.SettleMs, c.FrameSize, c.JPEGQuality))
	} else {
		row("Config", "-")
	}
	if lc := st.LastCommand; lc != nil {
		if lc.OK() {
			row("Command", fmt.Sprintf("/%s → %s", lc.Command, lc.Ack))
		} else {
			row("Command", errStyle.Render(fmt.Sprintf("/%s: %v", lc.Command, lc.Err)))
		}
	}
	row("Preview", orDash(st.PreviewURL))

	b.WriteString("\n")
	b.WriteString(m.renderLog())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("s start • p pause • r resume • x stop • l reload config • c reconnect • q quit"))
	return b.String()
}

func (m Model) renderLog() string {
	entries := m.state.Log
	if len(entries) > logLines {
		entries = entries[len(entries)-logLines:]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := e.At.Format("15:04:05") + " " + e.Message
		if e.Error {
			line = errStyle.Render(line)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, helpStyle.Render("no activity yet"))
	}

	box := boxStyle
	if m.width > 4 {
		box = box.Width(m.width - 2)
	}
	return box.Render(strings.Join(lines, "\n"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Run drives the terminal UI until the operator quits or ctx is done.
func Run(ctx context.Context, ctrl *dashboard.Controller, st Stream) error {
	updates, unsubscribe := ctrl.Store().Subscribe()
	defer unsubscribe()

	p := tea.NewProgram(New(ctx, ctrl, st, updates), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
