// Package ui provides the Bubbletea terminal user interface for avscope
package ui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/linuxmatters/avscope/internal/analysis"
	"github.com/linuxmatters/avscope/internal/cache"
	"github.com/linuxmatters/avscope/internal/logging"
	"github.com/linuxmatters/avscope/internal/scope"
)

// SeekStep is how far the arrow keys move the playhead.
const SeekStep = 5 * time.Second

const (
	spectrumHeight  = 10
	histogramHeight = 6
)

// Transport is the playback control the watch view drives.
type Transport interface {
	TogglePause() error
	Seek(pos time.Duration) error
	CurrentTime() time.Duration
	Duration() time.Duration
	Paused() bool
}

// WatchOptions configures a WatchModel.
type WatchOptions struct {
	Title     string
	AssetID   string
	Transport Transport
	Snapshots *Mailbox[analysis.Snapshot]
	States    *Mailbox[cache.State] // waveform for the timeline; nil disables
	HumBin    int                   // spectrum bin of the mains frequency, -1 for none
	MainsHz   int
	Logger    *slog.Logger
}

// WatchModel is the live review view: scopes for the current frame, audio
// meter and spectrogram, and the asset timeline.
type WatchModel struct {
	opts WatchOptions
	log  *slog.Logger

	Meter *scope.VUMeter
	Stats *logging.ReviewStats

	luma    *scope.Histogram
	parade  [3]*scope.Histogram
	columns [][]float64
	bins    int
	lastSeq uint64
	hasHum  bool

	Peaks     []float64
	peaksErr  error
	peaksBusy bool

	position time.Duration
	duration time.Duration
	paused   bool
	Err      error

	// Terminal dimensions
	Width  int
	Height int
}

// NewWatchModel creates the live review model.
func NewWatchModel(opts WatchOptions) WatchModel {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return WatchModel{
		opts:      opts,
		log:       log.With("component", "ui"),
		Meter:     scope.NewVUMeter(),
		Stats:     &logging.ReviewStats{},
		paused:    true,
		peaksBusy: opts.States != nil,
	}
}

// Init starts the refresh tick and the update feeds.
func (m WatchModel) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(), waitForSnapshot(m.opts.Snapshots)}
	if m.opts.States != nil {
		cmds = append(cmds, waitForState(m.opts.States))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tickMsg:
		m.syncTransport()
		return m, tickCmd()

	case SnapshotMsg:
		m.observe(msg.Snapshot)
		return m, waitForSnapshot(m.opts.Snapshots)

	case WaveformStateMsg:
		st := msg.State
		if st.ID == m.opts.AssetID {
			m.peaksBusy = st.Loading
			m.peaksErr = st.Err
			if st.Peaks != nil || !st.Loading {
				m.Peaks = st.Peaks
			}
			if !st.Loading && st.Err == nil {
				m.Stats.Peaks = st.Peaks
			}
		}
		return m, waitForState(m.opts.States)
	}

	return m, nil
}

func (m WatchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	t := m.opts.Transport
	var err error
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ", "space":
		err = t.TogglePause()
	case "left":
		err = t.Seek(max(0, t.CurrentTime()-SeekStep))
	case "right":
		pos := t.CurrentTime() + SeekStep
		if d := t.Duration(); d > 0 {
			pos = min(pos, d)
		}
		err = t.Seek(pos)
	default:
		return m, nil
	}
	if err != nil {
		m.log.Warn("transport failed", "key", msg.String(), "error", err)
	}
	m.Err = err
	m.syncTransport()
	return m, nil
}

func (m *WatchModel) syncTransport() {
	t := m.opts.Transport
	m.position = t.CurrentTime()
	m.duration = t.Duration()
	m.paused = t.Paused()
}

// observe folds one snapshot into the displays. Audio fields only count
// while playing; a paused element republishes its last readings.
func (m *WatchModel) observe(snap analysis.Snapshot) {
	if snap.Seq <= m.lastSeq {
		return
	}
	m.lastSeq = snap.Seq

	if snap.Video != nil {
		m.luma = scope.LumaWaveform(snap.Video, innerWidth)
		r, g, b := scope.RGBParade(snap.Video, innerWidth/3)
		m.parade = [3]*scope.Histogram{r, g, b}
	}

	if m.opts.Transport.Paused() {
		return
	}
	audio := snap.Frequency != nil
	if !audio {
		if m.Meter.Ready() {
			m.Meter.Reset()
		}
		m.hasHum = false
		m.Stats.Observe(0, false, false)
		return
	}

	m.Meter.Update(snap.Volume, snap.At)
	m.bins = len(snap.Frequency)
	m.columns = append(m.columns, scope.SpectrumColumn(snap.Frequency, spectrumHeight))
	if over := len(m.columns) - innerWidth; over > 0 {
		m.columns = m.columns[over:]
	}
	m.hasHum = scope.HumProminent(snap.Frequency, m.opts.HumBin)
	m.Stats.Observe(snap.Volume, true, m.hasHum)
}

// playhead returns the playback position as a fraction of the duration, or
// -1 when the duration is unknown.
func (m WatchModel) playhead() float64 {
	if m.duration <= 0 {
		return -1
	}
	return float64(m.position) / float64(m.duration)
}

// View renders the UI
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(renderHeader("Watch"))
	if m.opts.Title != "" {
		b.WriteString(" ")
		b.WriteString(labelStyle.Render(m.opts.Title))
	}
	b.WriteString("\n\n")

	state := lipgloss.NewStyle().Foreground(colorGood).Render("▶")
	if m.paused {
		state = mutedStyle.Render("⏸")
	}
	b.WriteString(fmt.Sprintf("%s %s / %s", state, formatElapsed(m.position), formatElapsed(m.duration)))
	if m.Err != nil {
		b.WriteString("  ")
		b.WriteString(errorStyle.Render(m.Err.Error()))
	}
	b.WriteString("\n")

	b.WriteString(panel("Audio", renderMeter(m.Meter, innerWidth-9, time.Now()), colorMuted))
	b.WriteString("\n")
	b.WriteString(panel(m.spectrumTitle(), m.renderSpectrum(), colorMuted))
	b.WriteString("\n")
	b.WriteString(panel("Video", m.renderVideo(), colorMuted))
	b.WriteString("\n")
	b.WriteString(panel("Timeline", m.renderTimeline(), colorMuted))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("space play/pause • ←/→ seek 5s • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m WatchModel) spectrumTitle() string {
	if m.opts.MainsHz <= 0 || m.opts.HumBin < 0 {
		return "Spectrum"
	}
	title := fmt.Sprintf("Spectrum (◂ %d Hz mains)", m.opts.MainsHz)
	if m.hasHum {
		title += " hum"
	}
	return title
}

func (m WatchModel) renderSpectrum() string {
	if len(m.columns) == 0 {
		return mutedStyle.Render("audio unavailable")
	}
	humRow := -1
	if m.opts.HumBin >= 0 && m.bins > 0 {
		humRow = scope.SpectrumRow(m.opts.HumBin, m.bins, spectrumHeight)
	}
	return renderSpectrogram(m.columns, innerWidth-1, spectrumHeight, humRow)
}

func (m WatchModel) renderVideo() string {
	if m.luma == nil {
		return mutedStyle.Render("no video")
	}
	var b strings.Builder
	b.WriteString(renderHistogram(m.luma, histogramHeight, colorText))
	b.WriteString("\n")
	colors := [3]lipgloss.Color{"#FF5555", "#55FF55", "#5555FF"}
	for i, h := range m.parade {
		b.WriteString(lipgloss.NewStyle().Foreground(colors[i]).Render(renderTrace(h)))
	}
	return b.String()
}

func (m WatchModel) renderTimeline() string {
	switch {
	case m.peaksErr != nil:
		return errorStyle.Render("waveform unavailable: " + m.peaksErr.Error())
	case m.Peaks == nil && m.peaksBusy:
		return mutedStyle.Render("computing waveform...")
	case m.Peaks == nil:
		return mutedStyle.Render("no waveform")
	}
	return renderPeakStrip(m.Peaks, innerWidth, m.playhead())
}
