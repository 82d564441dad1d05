package logging

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linuxmatters/avscope/internal/scope"
)

// writeSection writes a section header with a dashed underline matching the
// title length.
func writeSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

var stripBlocks = []rune("▁▂▃▄▅▆▇█")

// WaveformStrip renders peaks as a single line of block characters, width
// columns wide. Each column shows the loudest bucket it covers.
func WaveformStrip(peaks []float64, width int) string {
	if len(peaks) == 0 || width <= 0 {
		return ""
	}
	width = min(width, len(peaks))
	var sb strings.Builder
	for col := range width {
		lo := col * len(peaks) / width
		hi := max(lo+1, (col+1)*len(peaks)/width)
		var p float64
		for _, v := range peaks[lo:hi] {
			p = math.Max(p, v)
		}
		i := int(math.Round(p * float64(len(stripBlocks)-1)))
		sb.WriteRune(stripBlocks[max(0, min(i, len(stripBlocks)-1))])
	}
	return sb.String()
}

// levelTable summarises the level classes of a waveform's buckets.
func levelTable(peaks []float64) *Table {
	counts := make(map[scope.Level]int)
	for _, p := range peaks {
		counts[scope.PeakLevel(p)]++
	}
	t := &Table{LabelHeader: "Level", Headers: []string{"Buckets", "Share"}}
	for _, l := range []scope.Level{scope.LevelClip, scope.LevelHigh, scope.LevelNominal, scope.LevelLow, scope.LevelFloor} {
		n := counts[l]
		t.AddRow(l.String(), []string{fmt.Sprint(n), formatPercent(fraction(n, len(peaks)))}, "", "")
	}
	return t
}

func writeTips(w io.Writer, tips []ReviewTip) {
	writeSection(w, "Review Tips")
	if len(tips) == 0 {
		fmt.Fprintln(w, "No issues found.")
		return
	}
	for _, tip := range tips {
		fmt.Fprintf(w, "- %s\n", wrapText(tip.Message, 74, "  "))
	}
}

// DisplayWaveform prints a computed waveform with its level breakdown and
// tips to the console.
func DisplayWaveform(w io.Writer, id string, peaks []float64, elapsed time.Duration) {
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "WAVEFORM: %s\n", id)
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "Buckets: %d\n", len(peaks))
	if elapsed > 0 {
		fmt.Fprintf(w, "Time:    %s\n", formatDuration(elapsed))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, WaveformStrip(peaks, 70))
	fmt.Fprintln(w)

	writeSection(w, "Levels")
	fmt.Fprint(w, levelTable(peaks).String())
	fmt.Fprintln(w)

	writeTips(w, GenerateReviewTips(&ReviewStats{Peaks: peaks}))
}

// ReportData holds everything a session report shows.
type ReportData struct {
	Source     string
	AssetID    string
	Started    time.Time
	Ended      time.Time
	Duration   time.Duration // media duration
	SampleRate int
	Channels   int
	MainsHz    int
	Stats      *ReviewStats
}

// WriteReport writes a plain-text review report.
func WriteReport(w io.Writer, data ReportData) {
	title := "avscope review report"
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
	fmt.Fprintf(w, "Source:      %s\n", data.Source)
	if data.AssetID != "" {
		fmt.Fprintf(w, "Asset ID:    %s\n", data.AssetID)
	}
	if !data.Started.IsZero() {
		fmt.Fprintf(w, "Reviewed:    %s (%s)\n", data.Started.Format(time.RFC3339), formatDuration(data.Ended.Sub(data.Started)))
	}
	if data.Duration > 0 {
		fmt.Fprintf(w, "Duration:    %s\n", formatDuration(data.Duration))
	}
	if data.SampleRate > 0 {
		fmt.Fprintf(w, "Audio:       %d Hz, %s\n", data.SampleRate, channelName(data.Channels))
	}
	fmt.Fprintln(w)

	s := data.Stats
	if s == nil {
		s = &ReviewStats{}
	}

	writeSection(w, "Live Analysis")
	t := &Table{LabelHeader: "Measurement", Headers: []string{"Value"}}
	t.AddRow("Snapshots", []string{fmt.Sprint(s.Ticks)}, "", "")
	t.AddRow("With audio", []string{formatPercent(fraction(s.AudioTicks, s.Ticks))}, "", "")
	if s.AudioTicks > 0 {
		t.AddRow("Peak level", []string{formatMetricPeak(s.MaxPeak, 1)}, "dBFS", "")
		t.AddRow("Mean level", []string{formatMetricDB(s.MeanLevelDB(), 1)}, "dBFS", "floored at -60")
		t.AddRow("At full scale", []string{formatPercent(fraction(s.ClipTicks, s.AudioTicks))}, "", "")
		note := ""
		if data.MainsHz > 0 {
			note = fmt.Sprintf("%d Hz mains", data.MainsHz)
		}
		t.AddRow("Hum prominent", []string{formatPercent(fraction(s.HumTicks, s.AudioTicks))}, "", note)
	}
	fmt.Fprint(w, t.String())
	fmt.Fprintln(w)

	if len(s.Peaks) > 0 {
		writeSection(w, "Waveform")
		fmt.Fprintln(w, WaveformStrip(s.Peaks, 70))
		fmt.Fprintln(w)
		fmt.Fprint(w, levelTable(s.Peaks).String())
		fmt.Fprintln(w)
	}

	writeTips(w, GenerateReviewTips(s))
}

// GenerateReport writes the report for data to path.
func GenerateReport(path string, data ReportData) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()
	WriteReport(f, data)
	return f.Close()
}

// formatDuration renders d as h:mm:ss.s or m:ss.s.
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	h := int(secs) / 3600
	m := int(secs) % 3600 / 60
	s := math.Mod(secs, 60)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%04.1f", h, m, s)
	}
	return fmt.Sprintf("%d:%04.1f", m, s)
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	case 0:
		return "unknown"
	}
	return fmt.Sprintf("%d channels", channels)
}
