package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gmsas95/devocr/internal/document"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type (
	docStartedMsg struct {
		name         string
		index, total int
	}
	fractionMsg    float64
	statusMsg      string
	docFinishedMsg struct {
		name    string
		pages   int
		errors  int
		elapsed time.Duration
		err     error
	}
	runFinishedMsg struct {
		res *conversionResult
		err error
	}
)

// progressModel is the full-screen view of a terminal conversion.
type progressModel struct {
	bar     progress.Model
	spinner spinner.Model
	cancel  context.CancelFunc

	doc          string
	index, total int
	status       string
	finished     []string
	canceling    bool
	done         bool
	result       *conversionResult
	err          error
}

func newProgressModel(cancel context.CancelFunc) progressModel {
	return progressModel{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(48)),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		cancel:  cancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.canceling && m.cancel != nil {
				m.cancel()
			}
			m.canceling = true
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd

	case docStartedMsg:
		m.doc, m.index, m.total = msg.name, msg.index, msg.total
		m.status = ""
		return m, m.bar.SetPercent(0)

	case fractionMsg:
		return m, m.bar.SetPercent(float64(msg))

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case docFinishedMsg:
		m.finished = append(m.finished, finishedLine(msg))
		return m, nil

	case runFinishedMsg:
		m.done = true
		m.result, m.err = msg.res, msg.err
		return m, tea.Quit
	}
	return m, nil
}

func finishedLine(msg docFinishedMsg) string {
	if msg.err != nil {
		return errStyle.Render("✗ "+msg.name) + dimStyle.Render(": "+msg.err.Error())
	}
	line := okStyle.Render("✓ "+msg.name) +
		dimStyle.Render(fmt.Sprintf("  %d pages, %.2f seconds", msg.pages, msg.elapsed.Seconds()))
	if msg.errors > 0 {
		line += errStyle.Render(fmt.Sprintf("  %d page errors", msg.errors))
	}
	return line
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("देवनागरी PDF to Unicode"))
	b.WriteString("\n\n")

	for _, line := range m.finished {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.done {
		return b.String()
	}

	if m.doc != "" {
		fmt.Fprintf(&b, "\n%s %s %s\n", m.spinner.View(), m.doc,
			dimStyle.Render(fmt.Sprintf("(%d/%d)", m.index+1, m.total)))
		b.WriteString(m.bar.View())
		b.WriteString("\n")
		if m.status != "" {
			b.WriteString(dimStyle.Render(m.status))
			b.WriteString("\n")
		}
	}

	if m.canceling {
		b.WriteString(errStyle.Render("\nCanceling..."))
	} else {
		b.WriteString(dimStyle.Render("\nPress q to cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

// teaReporter forwards pipeline progress to a running program.
type teaReporter struct {
	send func(tea.Msg)
}

func (r teaReporter) DocumentStarted(name string, index, total int) {
	r.send(docStartedMsg{name: name, index: index, total: total})
}

func (r teaReporter) OnProgress(fraction float64) { r.send(fractionMsg(fraction)) }

func (r teaReporter) OnStatus(status string) { r.send(statusMsg(status)) }

func (r teaReporter) DocumentFinished(name string, t *document.Transcript, elapsed time.Duration, err error) {
	msg := docFinishedMsg{name: name, elapsed: elapsed, err: err}
	if t != nil {
		msg.pages = t.PageCount
		msg.errors = t.PageErrors
	}
	r.send(msg)
}
