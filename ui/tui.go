// Package ui renders the progress of a transfer batch in the terminal.
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"

	"github.com/franksops/filexfer/engine"
)

// maxRecent is the number of finished files kept on screen.
const maxRecent = 200

// BatchState is the aggregated state of the batch on screen.
type BatchState struct {
	BatchID        string
	Mode           engine.TransferMode
	TotalFiles     int
	CompletedFiles int
	FailedFiles    int
	Mismatches     int
	CompletedBytes int64
	StartedAt      time.Time
	Active         map[string]*ActiveFile
	Recent         []engine.TransferOutcome
	Done           bool
}

// ActiveFile is a file currently being transferred.
type ActiveFile struct {
	Name      string
	Size      int64
	StartedAt time.Time
}

// TUIModel implements the tea.Model interface
type TUIModel struct {
	state    *BatchState
	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model
	now      func() time.Time

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

// BatchStartedMsg announces a batch and its file count.
type BatchStartedMsg struct {
	BatchID string
	Mode    engine.TransferMode
	Total   int
}

// FileStartedMsg is sent when a file transfer begins.
type FileStartedMsg struct {
	Name string
	Size int64
}

// FileFinishedMsg carries the outcome of one file.
type FileFinishedMsg struct {
	Outcome engine.TransferOutcome
}

// BatchFinishedMsg carries the result of the batch.
type BatchFinishedMsg struct {
	Result *engine.BatchResult
}

func NewTUIModel() TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())

	return TUIModel{
		state:        &BatchState{Active: make(map[string]*ActiveFile)},
		spinner:      s,
		progress:     prog,
		now:          time.Now,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		streamStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

// State returns the batch state as last updated.
func (m TUIModel) State() *BatchState {
	return m.state
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
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 14

		headerHeight := 5
		footerHeight := 2
		m.viewport = viewport.New(msg.Width, max(msg.Height-headerHeight-footerHeight, 1))

	case BatchStartedMsg:
		m.state.BatchID = msg.BatchID
		m.state.Mode = msg.Mode
		m.state.TotalFiles = msg.Total
		m.state.StartedAt = m.now()

	case FileStartedMsg:
		m.state.Active[msg.Name] = &ActiveFile{Name: msg.Name, Size: msg.Size, StartedAt: m.now()}

	case FileFinishedMsg:
		o := msg.Outcome
		delete(m.state.Active, o.FileName)
		m.state.CompletedFiles++
		m.state.CompletedBytes += o.Bytes
		if !o.Succeeded() {
			m.state.FailedFiles++
		}
		if o.Checksum == engine.ChecksumMismatched {
			m.state.Mismatches++
		}
		m.state.Recent = append(m.state.Recent, o)
		if len(m.state.Recent) > maxRecent {
			m.state.Recent = m.state.Recent[len(m.state.Recent)-maxRecent:]
		}

	case BatchFinishedMsg:
		m.state.Done = true
		return m, tea.Quit

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

	st := m.state
	var sb strings.Builder

	// Header
	title := "File Transfer"
	if st.Mode != "" {
		title = fmt.Sprintf("File Transfer (%s)", st.Mode)
	}
	sb.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), m.titleStyle.Render(title)))

	// Batch progress
	var percent float64
	if st.TotalFiles > 0 {
		percent = float64(st.CompletedFiles) / float64(st.TotalFiles)
	}
	elapsed := time.Duration(0)
	if !st.StartedAt.IsZero() {
		elapsed = m.now().Sub(st.StartedAt)
	}
	var speed float64
	if elapsed > 0 {
		speed = float64(st.CompletedBytes) / elapsed.Seconds()
	}

	info := fmt.Sprintf("ETA: %s | Files: %d/%d | Failed: %d | %s | %s",
		formatETA(st.CompletedFiles, st.TotalFiles, elapsed),
		st.CompletedFiles, st.TotalFiles, st.FailedFiles,
		units.BytesSize(float64(st.CompletedBytes)),
		formatSpeed(speed))
	sb.WriteString(m.infoStyle.Render(info) + "\n")
	sb.WriteString(m.progress.ViewAs(percent) + "\n\n")

	// Files
	var content strings.Builder
	for _, a := range m.activeFiles() {
		content.WriteString(fmt.Sprintf("%s %-10s %s\n",
			m.streamStyle.Render("→"), units.BytesSize(float64(a.Size)), truncatePath(a.Name)))
	}
	for i := len(st.Recent) - 1; i >= 0; i-- {
		content.WriteString(m.outcomeLine(st.Recent[i]) + "\n")
	}
	if content.Len() == 0 {
		content.WriteString(m.infoStyle.Render("Waiting for files..."))
	}

	m.viewport.SetContent(content.String())
	sb.WriteString(m.viewport.View())

	// Footer
	help := m.helpStyle.Render("q/ctrl+c: quit")
	if st.Done {
		help = m.successStyle.Render("Transfer Complete!")
		if st.FailedFiles > 0 {
			help = m.errorStyle.Render(fmt.Sprintf("Transfer Complete, %d of %d files failed", st.FailedFiles, st.TotalFiles))
		}
	}
	sb.WriteString("\n" + help)

	return sb.String()
}

func (m TUIModel) activeFiles() []*ActiveFile {
	files := make([]*ActiveFile, 0, len(m.state.Active))
	for _, a := range m.state.Active {
		files = append(files, a)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].StartedAt.Before(files[j].StartedAt) })
	return files
}

func (m TUIModel) outcomeLine(o engine.TransferOutcome) string {
	if !o.Succeeded() {
		reason := o.ErrorMessage
		if reason == "" {
			reason = "checksum " + string(o.Checksum)
		}
		return m.errorStyle.Render("✗") + " " + truncatePath(o.FileName) + " " + m.infoStyle.Render(reason)
	}
	return m.successStyle.Render("✓") + " " + truncatePath(o.FileName) + " " +
		m.infoStyle.Render(fmt.Sprintf("%s, checksum %s", units.BytesSize(float64(o.Bytes)), o.Checksum))
}

func truncatePath(p string) string {
	if len(p) > 40 {
		return "..." + p[len(p)-37:]
	}
	return p
}

func formatSpeed(bytesPerSec float64) string {
	return units.BytesSize(bytesPerSec) + "/s"
}

// formatETA extrapolates the remaining time from the average time per
// finished file.
func formatETA(done, total int, elapsed time.Duration) string {
	if done == 0 || elapsed <= 0 || total == 0 {
		return "Calculating..."
	}

	remaining := total - done
	if remaining <= 0 {
		return "0s"
	}

	d := elapsed / time.Duration(done) * time.Duration(remaining)
	if d.Hours() > 24 {
		return "> 1d"
	}

	return d.Round(time.Second).String()
}
