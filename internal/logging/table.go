package logging

import (
	"fmt"
	"math"
	"strings"
)

// Row is a single table row. Values are pre-formatted so columns can mix
// formats.
type Row struct {
	Label  string   // e.g. "Peak level" or an asset ID
	Values []string // one per header
	Unit   string   // appended after the last value, "" for unitless
	Note   string   // optional trailing note
}

// Table formats aligned columns for terminal and report output.
type Table struct {
	LabelHeader string
	Headers     []string
	Rows        []Row
}

// AddRow appends a row of pre-formatted values.
func (t *Table) AddRow(label string, values []string, unit, note string) {
	t.Rows = append(t.Rows, Row{Label: label, Values: values, Unit: unit, Note: note})
}

// String renders the table. Labels are left-aligned, values right-aligned,
// units follow the values and the note column appears only when a row has
// a note.
func (t *Table) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	hasNote := false
	labelWidth := len(t.LabelHeader)
	unitWidth := 0
	for _, row := range t.Rows {
		hasNote = hasNote || row.Note != ""
		labelWidth = max(labelWidth, len(row.Label))
		unitWidth = max(unitWidth, len(row.Unit))
	}

	valueWidths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		valueWidths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, v := range row.Values {
			if i < len(valueWidths) {
				valueWidths[i] = max(valueWidths[i], len(v))
			}
		}
	}

	var sb strings.Builder
	writeLine := func(s string) {
		sb.WriteString(strings.TrimRight(s, " "))
		sb.WriteString("\n")
	}

	var line strings.Builder
	fmt.Fprintf(&line, "%-*s  ", labelWidth, t.LabelHeader)
	for i, h := range t.Headers {
		fmt.Fprintf(&line, "%*s  ", valueWidths[i], h)
	}
	if unitWidth > 0 {
		line.WriteString(strings.Repeat(" ", unitWidth+1))
	}
	if hasNote {
		line.WriteString("Notes")
	}
	writeLine(line.String())

	for _, row := range t.Rows {
		line.Reset()
		fmt.Fprintf(&line, "%-*s  ", labelWidth, row.Label)
		for i := range t.Headers {
			v := MissingValue
			if i < len(row.Values) && row.Values[i] != "" {
				v = row.Values[i]
			}
			fmt.Fprintf(&line, "%*s  ", valueWidths[i], v)
		}
		if unitWidth > 0 {
			fmt.Fprintf(&line, "%-*s ", unitWidth, row.Unit)
		}
		if hasNote {
			line.WriteString(row.Note)
		}
		writeLine(line.String())
	}
	return sb.String()
}

// MissingValue is the placeholder for unavailable measurements.
const MissingValue = "-"

// DigitalSilenceThreshold is the dBFS level at or below which a value reads
// as digital silence.
const DigitalSilenceThreshold = -120.0

func isDigitalSilence(db float64) bool {
	return math.IsInf(db, -1) || db <= DigitalSilenceThreshold
}

// formatMetric formats a value to decimals places, using scientific notation
// for very small non-zero values.
func formatMetric(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}
	if value != 0 && math.Abs(value) < 0.0001 {
		return fmt.Sprintf("%.2e", value)
	}
	return fmt.Sprintf("%.*f", decimals, value)
}

// formatMetricDB formats a dB value, showing "< -120" for digital silence.
func formatMetricDB(db float64, decimals int) string {
	if math.IsNaN(db) || math.IsInf(db, 1) {
		return MissingValue
	}
	if isDigitalSilence(db) {
		return "< -120"
	}
	return fmt.Sprintf("%.*f", decimals, db)
}

// formatMetricPeak formats a linear peak in dBFS.
func formatMetricPeak(peak float64, decimals int) string {
	if math.IsNaN(peak) {
		return MissingValue
	}
	if peak <= 0 {
		return "< -120"
	}
	return formatMetricDB(20*math.Log10(peak), decimals)
}

// formatPercent formats a fraction in [0, 1] as a percentage.
func formatPercent(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return MissingValue
	}
	return fmt.Sprintf("%.0f%%", f*100)
}
