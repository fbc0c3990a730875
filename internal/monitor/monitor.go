// Package monitor is a terminal status panel for a running synth.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/glidesynth"
)

// Synth is the part of glidesynth.Synth the panel reads and adjusts.
type Synth interface {
	Stats() glidesynth.Stats
	MasterVolume() float64
	SetMasterVolume(float64)
}

const pollInterval = 100 * time.Millisecond

// Model implements tea.Model
type Model struct {
	synth  Synth
	title  string
	stats  glidesynth.Stats
	volume float64
	quit   bool
	Width  int
}

func NewModel(synth Synth, title string) Model {
	return Model{
		synth:  synth,
		title:  title,
		stats:  synth.Stats(),
		volume: synth.MasterVolume(),
		Width:  80,
	}
}

// Quitting reports whether the user asked to leave.
func (m Model) Quitting() bool { return m.quit }

type tickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(_ time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		return m, nil

	case tickMsg:
		m.stats = m.synth.Stats()
		m.volume = m.synth.MasterVolume()
		return m, tickCmd()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quit = true
			return m, tea.Quit
		case "+", "=":
			m.synth.SetMasterVolume(m.volume + 0.05)
			m.volume = m.synth.MasterVolume()
		case "-", "_":
			m.synth.SetMasterVolume(m.volume - 0.05)
			m.volume = m.synth.MasterVolume()
		}
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	glideStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("6")).Padding(0, 1)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func (m Model) View() string {
	st := m.stats
	var b strings.Builder

	b.WriteString(titleStyle.Render(strings.ToUpper(m.title)))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("backend", valueStyle.Render(fmt.Sprintf("%s @ %d Hz", orDash(st.Backend), st.SampleRate)))
	row("frame", valueStyle.Render(fmt.Sprintf("%d (%s)", st.FrameClock, st.Elapsed.Truncate(10*time.Millisecond))))
	row("notes", valueStyle.Render(fmt.Sprintf("%d", st.ActiveNotes)))

	glide := valueStyle.Render(fmt.Sprintf("%+d", st.GlideOffset))
	if st.GlideAdjust != 0 {
		glide += glideStyle.Render(fmt.Sprintf(" -> %+d", st.GlideOffset+st.GlideAdjust))
	}
	row("glide", glide)
	row("volume", valueStyle.Render(fmt.Sprintf("%3.0f%%", m.volume*100)))

	status := valueStyle.Render("ok")
	if st.Statuses > 0 {
		status = warnStyle.Render(fmt.Sprintf("%d (%v)", st.Statuses, st.LastStatus))
	}
	row("sink status", status)
	row("dropped offs", valueStyle.Render(fmt.Sprintf("%d", st.UnknownNoteOffs)))
	if st.Stopped {
		row("state", warnStyle.Render("stopped"))
	}

	return panelStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n" +
		helpStyle.Render("+/- volume  q quit") + "\n"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Run shows the panel until the user quits or ctx is done. It returns
// true if the user quit.
func Run(ctx context.Context, synth Synth, title string) (bool, error) {
	p := tea.NewProgram(NewModel(synth, title), tea.WithContext(ctx))
	final, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m, ok := final.(Model)
	return ok && m.Quitting(), nil
}
