package scope

import (
	"fmt"
	"math"
	"time"
)

// VU meter ballistics.
const (
	MinDB          = -60.0
	MaxDB          = 0.0
	VUSmoothing    = 0.6
	PeakHold       = 1500 * time.Millisecond
	PeakDecayStep  = 1.0
	PeakDecayEvery = 50 * time.Millisecond
)

// VUMeter turns per-tick linear peak volumes into a smoothed dB level with a
// held peak marker.
type VUMeter struct {
	level  float64
	peak   float64
	heldDB float64
	heldAt time.Time
	ready  bool
}

// NewVUMeter returns a meter in the unavailable state.
func NewVUMeter() *VUMeter {
	m := &VUMeter{}
	m.Reset()
	return m
}

// Reset puts the meter in the unavailable state, distinct from silence.
func (m *VUMeter) Reset() {
	m.level = math.Inf(-1)
	m.peak = math.Inf(-1)
	m.heldDB = math.Inf(-1)
	m.heldAt = time.Time{}
	m.ready = false
}

// Ready reports whether the meter has received a reading since Reset.
func (m *VUMeter) Ready() bool { return m.ready }

// Update feeds one volume reading in [0, 1] observed at now.
func (m *VUMeter) Update(volume float64, now time.Time) {
	db := math.Max(MinDB, math.Min(PeakDB(volume), MaxDB))

	if !m.ready || math.IsInf(m.level, -1) {
		m.level = db
	} else {
		m.level = m.level*(1-VUSmoothing) + db*VUSmoothing
	}
	m.ready = true

	m.peak = m.decayedPeak(now)
	if db >= m.peak {
		m.peak = db
		m.heldDB = db
		m.heldAt = now
	}
}

// decayedPeak applies the hold and fall-off to the last held peak.
func (m *VUMeter) decayedPeak(now time.Time) float64 {
	if math.IsInf(m.heldDB, -1) {
		return m.heldDB
	}
	elapsed := now.Sub(m.heldAt)
	if elapsed <= PeakHold {
		return m.heldDB
	}
	steps := math.Floor(float64(elapsed-PeakHold) / float64(PeakDecayEvery))
	p := m.heldDB - steps*PeakDecayStep
	if p < m.level || p < MinDB {
		return math.Max(m.level, MinDB)
	}
	return p
}

// Level returns the smoothed level in dB, -Inf when unavailable.
func (m *VUMeter) Level() float64 { return m.level }

// Peak returns the held peak in dB at now, -Inf when unavailable.
func (m *VUMeter) Peak(now time.Time) float64 {
	if !m.ready {
		return math.Inf(-1)
	}
	return m.decayedPeak(now)
}

// Fraction maps a dB value onto [0, 1] of the meter scale.
func Fraction(db float64) float64 {
	if math.IsInf(db, 0) || math.IsNaN(db) {
		return 0
	}
	return math.Max(0, math.Min(1, (db-MinDB)/(MaxDB-MinDB)))
}

// PeakDB converts a linear peak to dBFS (-Inf for silence).
func PeakDB(peak float64) float64 {
	if peak <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(peak)
}

// FormatDB renders a linear peak as a dB label.
func FormatDB(peak float64) string {
	if peak <= 0 {
		return "-∞ dB"
	}
	return fmt.Sprintf("%.1f dB", PeakDB(peak))
}

// Level classifies a normalized waveform peak.
type Level int

const (
	LevelFloor    Level = iota // below -10 dB, noise floor or silence
	LevelLow                   // -10 to -7 dB
	LevelNominal               // from about -7 dB
	LevelHigh                  // from about -2 dB
	LevelClip                  // at full scale
)

func (l Level) String() string {
	switch l {
	case LevelFloor:
		return "floor"
	case LevelLow:
		return "low"
	case LevelNominal:
		return "nominal"
	case LevelHigh:
		return "high"
	case LevelClip:
		return "clip"
	}
	return "unknown"
}

// PeakLevel returns the level class of a normalized peak.
func PeakLevel(peak float64) Level {
	switch {
	case peak >= 0.99:
		return LevelClip
	case peak >= 0.794:
		return LevelHigh
	case peak >= 0.447:
		return LevelNominal
	case peak < 0.316:
		return LevelFloor
	}
	return LevelLow
}
