package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/linuxmatters/avscope/internal/cache"
)

// Spinner frames for indeterminate progress
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// WaveformModel shows a waveform being loaded for one asset, filling in as
// partial results arrive.
type WaveformModel struct {
	ID string

	Peaks     []float64
	Loading   bool
	Err       error
	Done      bool
	StartTime time.Time
	Elapsed   time.Duration

	spinnerIndex int

	states *Mailbox[cache.State]
	load   func()

	// Terminal dimensions
	Width  int
	Height int
}

// tickMsg is sent for spinner/timer animation
type tickMsg time.Time

// NewWaveformModel returns a model for asset id. load starts (or restarts)
// the computation; its updates must be posted to states.
func NewWaveformModel(id string, states *Mailbox[cache.State], load func()) WaveformModel {
	return WaveformModel{
		ID:        id,
		Loading:   true,
		StartTime: time.Now(),
		states:    states,
		load:      load,
	}
}

// Init starts the load and the spinner.
func (m WaveformModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), run(m.load), waitForState(m.states))
}

// tickCmd returns a command that sends a tick message every 100ms
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and updates the model
func (m WaveformModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if m.Err == nil {
				return m, nil
			}
			m.Err = nil
			m.Peaks = nil
			m.Loading = true
			m.StartTime = time.Now()
			return m, tea.Batch(tickCmd(), run(m.load))
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tickMsg:
		if m.Loading {
			m.spinnerIndex = (m.spinnerIndex + 1) % len(spinnerFrames)
			m.Elapsed = time.Since(m.StartTime)
			return m, tickCmd()
		}
		return m, nil

	case WaveformStateMsg:
		st := msg.State
		if st.ID != m.ID {
			// A cleared or foreign selection; keep waiting for ours.
			return m, waitForState(m.states)
		}
		m.Loading = st.Loading
		m.Err = st.Err
		if st.Peaks != nil || !st.Loading {
			m.Peaks = st.Peaks
		}
		if !m.Loading {
			m.Elapsed = time.Since(m.StartTime)
		}
		if !m.Loading && m.Err == nil {
			m.Done = true
			return m, tea.Quit
		}
		return m, waitForState(m.states)
	}

	return m, nil
}

// filled estimates load progress from how far into the bucket array the
// partial peaks reach.
func filled(peaks []float64) float64 {
	for i := len(peaks) - 1; i >= 0; i-- {
		if peaks[i] > 0 {
			return float64(i+1) / float64(len(peaks))
		}
	}
	return 0
}

// View renders the UI
func (m WaveformModel) View() string {
	var b strings.Builder

	b.WriteString(renderHeader("Waveform"))
	b.WriteString("\n\n")
	b.WriteString("Asset: ")
	b.WriteString(labelStyle.Render(m.ID))
	b.WriteString("\n\n")

	spinner := lipgloss.NewStyle().Foreground(colorAccent).Render(spinnerFrames[m.spinnerIndex])

	switch {
	case m.Err != nil:
		b.WriteString(errorStyle.Render("✗ "))
		b.WriteString(fmt.Sprintf("Error: %v\n\n", m.Err))
		b.WriteString(mutedStyle.Render("Press r to retry or q to quit"))

	case m.Loading && m.Peaks == nil:
		b.WriteString(spinner)
		b.WriteString(" Loading...")
		b.WriteString(fmt.Sprintf(" [%s]", formatElapsed(m.Elapsed)))

	case m.Loading:
		b.WriteString(spinner)
		b.WriteString(" ")
		b.WriteString(renderProgressBar(filled(m.Peaks), 40, m.Elapsed))
		b.WriteString("\n\n")
		b.WriteString(panel("Peaks", renderPeakStrip(m.Peaks, innerWidth, -1), colorAccent))

	default:
		b.WriteString(lipgloss.NewStyle().Foreground(colorGood).Render("✓"))
		b.WriteString(fmt.Sprintf(" %d buckets [%s]\n\n", len(m.Peaks), formatElapsed(m.Elapsed)))
		b.WriteString(panel("Peaks", renderPeakStrip(m.Peaks, innerWidth, -1), colorMuted))
	}

	b.WriteString("\n")
	return b.String()
}
