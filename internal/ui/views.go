package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/linuxmatters/avscope/internal/scope"
)

const (
	colorAccent = lipgloss.Color("#A40000")
	colorMuted  = lipgloss.Color("#888888")
	colorTrack  = lipgloss.Color("#444444")
	colorGood   = lipgloss.Color("#00AA00")
	colorWarn   = lipgloss.Color("#FFA500")
	colorText   = lipgloss.Color("#FFFFFF")

	panelWidth = 60
	// Content width inside a panel: border plus one cell of padding each side.
	innerWidth = panelWidth - 4
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	subtitleStyle = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	labelStyle    = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(colorAccent)

	levelColors = map[scope.Level]lipgloss.Color{
		scope.LevelClip:    colorAccent,
		scope.LevelHigh:    colorWarn,
		scope.LevelNominal: colorGood,
		scope.LevelLow:     colorMuted,
		scope.LevelFloor:   colorTrack,
	}
)

// renderHeader renders the application title line.
func renderHeader(mode string) string {
	return titleStyle.Render("avscope") + " " + subtitleStyle.Render(mode)
}

// panel renders content in a rounded box with a title above it.
func panel(title, content string, border lipgloss.Color) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(panelWidth - 2)
	return mutedStyle.Render(title) + "\n" + box.Render(content)
}

// renderProgressBar renders a progress bar with percentage and elapsed time.
func renderProgressBar(progress float64, width int, elapsed time.Duration) string {
	progress = math.Max(0, math.Min(1, progress))
	filled := int(progress * float64(width))
	empty := width - filled

	filledStyle := lipgloss.NewStyle().Foreground(colorAccent)
	emptyStyle := lipgloss.NewStyle().Foreground(colorTrack)

	bar := filledStyle.Render(strings.Repeat("━", filled)) +
		emptyStyle.Render(strings.Repeat("━", empty))

	return fmt.Sprintf("%s %3d%% [%s]", bar, int(progress*100), formatElapsed(elapsed))
}

// formatElapsed formats elapsed time as MM:SS or HH:MM:SS.
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

var barBlocks = []rune("▁▂▃▄▅▆▇█")

// downsample reduces peaks to width columns, keeping the loudest bucket in
// each.
func downsample(peaks []float64, width int) []float64 {
	if len(peaks) == 0 || width <= 0 {
		return nil
	}
	width = min(width, len(peaks))
	out := make([]float64, width)
	for col := range out {
		lo := col * len(peaks) / width
		hi := max(lo+1, (col+1)*len(peaks)/width)
		for _, v := range peaks[lo:hi] {
			out[col] = math.Max(out[col], v)
		}
	}
	return out
}

func block(v float64) rune {
	i := int(math.Round(v * float64(len(barBlocks)-1)))
	return barBlocks[max(0, min(i, len(barBlocks)-1))]
}

// renderPeakStrip draws peaks as one line of bars coloured by level class.
// playhead, when in [0, 1], marks that position in the accent colour.
func renderPeakStrip(peaks []float64, width int, playhead float64) string {
	cols := downsample(peaks, width)
	mark := -1
	if playhead >= 0 && playhead <= 1 && len(cols) > 0 {
		mark = min(int(playhead*float64(len(cols))), len(cols)-1)
	}
	var b strings.Builder
	for i, v := range cols {
		style := lipgloss.NewStyle().Foreground(levelColors[scope.PeakLevel(v)])
		if i == mark {
			style = lipgloss.NewStyle().Foreground(colorText).Background(colorAccent)
		}
		b.WriteString(style.Render(string(block(v))))
	}
	return b.String()
}

// renderMeter draws a horizontal VU bar with a held peak marker. An
// unavailable meter renders as an empty neutral track.
func renderMeter(m *scope.VUMeter, width int, now time.Time) string {
	if !m.Ready() {
		return mutedStyle.Render(strings.Repeat("─", width)) + " " + mutedStyle.Render("audio unavailable")
	}
	level := int(scope.Fraction(m.Level()) * float64(width))
	peakDB := m.Peak(now)
	peak := min(int(scope.Fraction(peakDB)*float64(width)), width-1)

	color := colorGood
	switch {
	case peakDB >= -0.1:
		color = colorAccent
	case peakDB >= -6:
		color = colorWarn
	}

	var b strings.Builder
	for i := range width {
		switch {
		case i == peak && !math.IsInf(peakDB, -1):
			b.WriteString(lipgloss.NewStyle().Foreground(color).Render("│"))
		case i < level:
			b.WriteString(lipgloss.NewStyle().Foreground(colorGood).Render("█"))
		default:
			b.WriteString(lipgloss.NewStyle().Foreground(colorTrack).Render("·"))
		}
	}
	return b.String() + " " + fmt.Sprintf("%5.1f dB", math.Max(scope.MinDB, m.Level()))
}

var shades = []rune(" ░▒▓█")

func shade(v float64) rune {
	i := int(math.Ceil(v * float64(len(shades)-1)))
	return shades[max(0, min(i, len(shades)-1))]
}

// renderSpectrogram draws columns oldest first, each one SpectrumColumn
// tall, and marks the hum row on the right edge.
func renderSpectrogram(columns [][]float64, width, height, humRow int) string {
	lines := make([]string, height)
	start := max(0, len(columns)-width)
	for row := range height {
		var b strings.Builder
		pad := width - (len(columns) - start)
		b.WriteString(strings.Repeat(" ", max(0, pad)))
		for _, col := range columns[start:] {
			v := 0.0
			if row < len(col) {
				v = col[row]
			}
			b.WriteRune(shade(v))
		}
		if row == humRow {
			b.WriteString(errorStyle.Render("◂"))
		}
		lines[row] = b.String()
	}
	return strings.Join(lines, "\n")
}

// renderHistogram draws h as height rows of shade characters, brightest
// values at the top.
func renderHistogram(h *scope.Histogram, height int, color lipgloss.Color) string {
	if h == nil || height <= 0 {
		return ""
	}
	style := lipgloss.NewStyle().Foreground(color)
	per := scope.Bins / height
	lines := make([]string, height)
	for row := range height {
		hi := scope.Bins - row*per
		lo := hi - per
		var b strings.Builder
		for col := range h.Columns {
			var v float64
			for bin := lo; bin < hi; bin++ {
				v = math.Max(v, h.Intensity(col, bin))
			}
			b.WriteRune(shade(v))
		}
		lines[row] = style.Render(b.String())
	}
	return strings.Join(lines, "\n")
}

// renderTrace summarises a histogram as its mean value per column.
func renderTrace(h *scope.Histogram) string {
	if h == nil {
		return ""
	}
	var b strings.Builder
	for col := range h.Columns {
		v := h.Trace(col)
		if v < 0 {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(block(v / (scope.Bins - 1)))
	}
	return b.String()
}
