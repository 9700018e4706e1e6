// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/upkit/upkit/internal/archive"
	"github.com/upkit/upkit/internal/orchestrator"
	"github.com/upkit/upkit/internal/transfer"
)

const (
	keyCtrlC    = "ctrl+c"
	maxBarWidth = 60
	barPadding  = 4
)

type (
	// eventMsg carries one flow event into the program.
	eventMsg orchestrator.Event

	// flowDoneMsg is sent once the flow has finished without handing off.
	flowDoneMsg struct{ err error }

	// handoffMsg asks the program to restore the terminal and quit because
	// the process is about to exit.
	handoffMsg struct{}

	progressModel struct {
		title string
		state orchestrator.State
		bar   progress.Model

		transfer   *transfer.Progress
		extraction *archive.Progress

		cancel     func()
		cancelling bool
		done       bool
		handedOff  bool
		err        error
	}

	// ProgressView draws a running update flow until it finishes or hands off
	// to the restart helper.
	ProgressView struct {
		cfg   Config
		title string

		mu      sync.Mutex
		program *tea.Program
		exited  chan struct{}
	}
)

// NewProgressView creates a view whose header reads title.
func NewProgressView(title string, cfg Config) *ProgressView {
	return &ProgressView{title: title, cfg: cfg}
}

// Run draws flow until it finishes. Pressing ctrl+c or esc while downloading
// cancels the flow. After Release the terminal is restored and Run waits for
// the flow without drawing, so it only returns if the restart hand-off failed.
func (v *ProgressView) Run(ctx context.Context, flow *orchestrator.Flow) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(v.cfg.output())}
	if v.cfg.Input != nil {
		opts = append(opts, tea.WithInput(v.cfg.Input))
	}
	p := tea.NewProgram(newProgressModel(v.title, v.cfg.width(), flow.Cancel), opts...)
	exited := make(chan struct{})

	v.mu.Lock()
	v.program, v.exited = p, exited
	v.mu.Unlock()

	go func() {
		for ev := range flow.Events() {
			p.Send(eventMsg(ev))
		}
		p.Send(flowDoneMsg{err: flow.Wait()})
	}()

	final, err := p.Run()
	close(exited)
	if err != nil {
		flow.Cancel()
		<-flow.Done()
		return fmt.Errorf("progress view: %w", err)
	}

	m, ok := final.(progressModel)
	if !ok || m.handedOff {
		<-flow.Done()
	}
	return flow.Wait()
}

// Release stops drawing and blocks until the terminal has been restored.
// It is safe to call before Run or after Run has returned.
func (v *ProgressView) Release() {
	v.mu.Lock()
	p, exited := v.program, v.exited
	v.mu.Unlock()
	if p == nil {
		return
	}
	p.Send(handoffMsg{})
	<-exited
}

func newProgressModel(title string, width int, cancel func()) progressModel {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = min(width-barPadding, maxBarWidth)
	return progressModel{
		title:  title,
		state:  orchestrator.StateUpdateAvailable,
		bar:    bar,
		cancel: cancel,
	}
}

// Init implements tea.Model.
func (m progressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case keyCtrlC, "esc":
			if m.cancellable() && !m.cancelling {
				m.cancelling = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(min(msg.Width-barPadding, maxBarWidth), 10)
	case eventMsg:
		ev := orchestrator.Event(msg)
		switch {
		case ev.Transfer != nil:
			m.transfer = ev.Transfer
		case ev.Extraction != nil:
			m.extraction = ev.Extraction
		default:
			m.state = ev.State
			if ev.Err != nil {
				m.err = ev.Err
			}
		}
	case flowDoneMsg:
		m.done = true
		if msg.err != nil {
			m.err = msg.err
		}
		return m, tea.Quit
	case handoffMsg:
		m.handedOff = true
		return m, tea.Quit
	}
	return m, nil
}

// cancellable reports whether a key press can still stop the flow.
func (m progressModel) cancellable() bool {
	return !m.done && (m.state == orchestrator.StateUpdateAvailable || m.state == orchestrator.StateDownloading)
}

// View implements tea.Model.
func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	switch {
	case m.handedOff:
		b.WriteString(successStyle.Render("Restarting..."))
	case m.done && m.state == orchestrator.StateCancelled:
		b.WriteString(warningStyle.Render("Update cancelled."))
	case m.done && m.err != nil:
		b.WriteString(errorStyle.Render("Update failed: ") + m.err.Error())
	default:
		b.WriteString(m.stateLine())
		b.WriteString("\n")
		b.WriteString(m.bar.ViewAs(m.fraction()))
		if detail := m.detail(); detail != "" {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render(detail))
		}
		if m.cancellable() {
			b.WriteString("\n\n")
			if m.cancelling {
				b.WriteString(mutedStyle.Render("cancelling..."))
			} else {
				b.WriteString(mutedStyle.Render("esc to cancel"))
			}
		}
	}
	b.WriteString("\n")
	return b.String()
}

func (m progressModel) stateLine() string {
	switch m.state {
	case orchestrator.StateExtracting:
		return "Extracting update package"
	case orchestrator.StateStaging:
		return "Preparing restart"
	case orchestrator.StateRestarting:
		return "Restarting"
	default:
		return "Downloading update package"
	}
}

func (m progressModel) fraction() float64 {
	switch m.state {
	case orchestrator.StateExtracting:
		if m.extraction != nil {
			return m.extraction.Fraction()
		}
		return 0
	case orchestrator.StateStaging, orchestrator.StateRestarting:
		return 1
	default:
		if m.transfer != nil {
			return m.transfer.Fraction()
		}
		return 0
	}
}

func (m progressModel) detail() string {
	switch m.state {
	case orchestrator.StateExtracting:
		if m.extraction == nil {
			return ""
		}
		return fmt.Sprintf("%d/%d entries", m.extraction.Processed, m.extraction.Total)
	case orchestrator.StateStaging, orchestrator.StateRestarting:
		return ""
	default:
		if m.transfer == nil {
			return ""
		}
		return TransferDetail(*m.transfer)
	}
}

// TransferDetail renders received bytes, total and rate, e.g.
// "1.5MiB / 3MiB  (512 KB/s)".
func TransferDetail(p transfer.Progress) string {
	total := "?"
	if p.TotalBytes >= 0 {
		total = transfer.FormatBytes(p.TotalBytes)
	}
	return fmt.Sprintf("%s / %s  (%s)", transfer.FormatBytes(p.BytesReceived), total, transfer.FormatRate(p.RateBytesPerSec))
}
