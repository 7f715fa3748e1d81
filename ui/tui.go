package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/franksops/tagsync/engine"
)

// TUIModel implements the tea.Model interface
type TUIModel struct {
	state    BoardState
	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	onWorkers func(delta int)
	onQuit    func()

	width  int
	height int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	streamStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// TUIUpdateMsg is sent periodically to update the UI state
type TUIUpdateMsg struct {
	State BoardState
}

// WorkerCountMsg is sent when modifying the worker count
type WorkerCountMsg int

// NewTUIModel creates the board view. onWorkers is called with +1/-1 when
// the user resizes the worker pool and onQuit when they leave; either may be nil.
func NewTUIModel(initial BoardState, onWorkers func(delta int), onQuit func()) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())

	return TUIModel{
		state:        initial,
		spinner:      s,
		progress:     prog,
		onWorkers:    onWorkers,
		onQuit:       onQuit,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		streamStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (m TUIModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case "+", "=":
			return m, func() tea.Msg { return WorkerCountMsg(1) }
		case "-":
			return m, func() tea.Msg { return WorkerCountMsg(-1) }
		}

	case WorkerCountMsg:
		if m.onWorkers != nil {
			m.onWorkers(int(msg))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(msg.Width/3, 10)

		headerHeight := 5
		footerHeight := 2
		m.viewport = viewport.New(msg.Width, max(msg.Height-headerHeight-footerHeight, 1))

	case TUIUpdateMsg:
		m.state = msg.State

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder

	header := fmt.Sprintf("%s tagsync %s", m.spinner.View(), m.titleStyle.Render("Backup Transfers"))
	sb.WriteString(header + "\n")

	var overall float64
	if total := m.state.Total(); total > 0 {
		overall = float64(m.state.Finished()) / float64(total)
	}
	info := fmt.Sprintf("Done: %d/%d | Failed: %d | Queued: %d | Workers: %d",
		m.state.Finished(), m.state.Total(), m.state.Failed, m.state.Queued, m.state.Workers)
	sb.WriteString(m.infoStyle.Render(info) + "\n")
	sb.WriteString(m.progress.ViewAs(overall) + "\n\n")

	sb.WriteString("Transfers:\n")
	var rows strings.Builder
	if len(m.state.Rows) == 0 {
		rows.WriteString(m.infoStyle.Render("Waiting for the first transfer..."))
	}
	for _, r := range m.state.Rows {
		rows.WriteString(m.renderRow(r) + "\n")
	}

	m.viewport.SetContent(rows.String())
	sb.WriteString(m.viewport.View())

	help := m.helpStyle.Render("q/ctrl+c: quit • +/-: adjust workers")
	if m.state.Done {
		help = m.successStyle.Render("All transfers finished!") + " Press 'q' to exit."
	}
	sb.WriteString("\n" + help)

	return sb.String()
}

// Format: [===       ] 30% | 12.4MB/s | ETA 0:00:42 | celeste | last line
func (m TUIModel) renderRow(r TransferRow) string {
	s := r.Stats
	bar := m.progress.ViewAs(float64(s.Percent) / 100)
	tag := truncate(r.Tag, 24)

	if r.Finished {
		style := m.successStyle
		if s.Status != engine.StatusCompleted {
			style = m.errorStyle
		}
		return fmt.Sprintf("%s | %-9s | %s | %s", bar, style.Render(string(s.Status)), tag, truncate(r.Summary, 60))
	}

	return fmt.Sprintf("%s | %-10s | ETA %s | %s | %s",
		bar, m.streamStyle.Render(formatSpeed(s)), formatETA(s), tag,
		m.infoStyle.Render(truncate(s.LastLine(), 40)))
}

func formatSpeed(s engine.TransferStats) string {
	if s.Speed == "" {
		return "-"
	}
	return s.Speed
}

func formatETA(s engine.TransferStats) string {
	switch {
	case s.Status == engine.StatusCompleted:
		return "0:00:00"
	case s.Status.Terminal():
		return "-"
	case s.ETA == "":
		return "Calculating..."
	}
	return s.ETA
}

func truncate(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return "..." + string(r[len(r)-(n-3):])
}
