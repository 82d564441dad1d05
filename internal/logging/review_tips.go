package logging

import (
	"math"
	"sort"
	"strings"

	"github.com/linuxmatters/avscope/internal/scope"
)

// ReviewStats accumulates what a review session observed: live analysis
// snapshots while playing and, when known, the asset's waveform.
type ReviewStats struct {
	Ticks      int     // snapshots observed while playing
	AudioTicks int     // snapshots that carried audio data
	ClipTicks  int     // audio snapshots at full scale
	HumTicks   int     // audio snapshots with a prominent mains hum bin
	MaxPeak    float64 // loudest linear peak seen
	sumDB      float64

	Peaks []float64 // normalized waveform, nil when not computed
}

// Observe records one playing snapshot. volume is ignored when audio is false.
func (s *ReviewStats) Observe(volume float64, audio, hum bool) {
	s.Ticks++
	if !audio {
		return
	}
	s.AudioTicks++
	s.MaxPeak = math.Max(s.MaxPeak, volume)
	if scope.PeakLevel(volume) == scope.LevelClip {
		s.ClipTicks++
	}
	if hum {
		s.HumTicks++
	}
	s.sumDB += math.Max(scope.MinDB, scope.PeakDB(volume))
}

// MeanLevelDB returns the mean per-snapshot peak level, floored at the meter
// minimum, or NaN without audio.
func (s *ReviewStats) MeanLevelDB() float64 {
	if s.AudioTicks == 0 {
		return math.NaN()
	}
	return s.sumDB / float64(s.AudioTicks)
}

// fraction returns n/d, or 0 when d is 0.
func fraction(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// levelFraction returns the share of waveform buckets in level class l.
func (s *ReviewStats) levelFraction(l scope.Level) float64 {
	n := 0
	for _, p := range s.Peaks {
		if scope.PeakLevel(p) == l {
			n++
		}
	}
	return fraction(n, len(s.Peaks))
}

// silentFraction returns the share of waveform buckets below 5% of the
// loudest bucket.
func (s *ReviewStats) silentFraction() float64 {
	n := 0
	for _, p := range s.Peaks {
		if p < 0.05 {
			n++
		}
	}
	return fraction(n, len(s.Peaks))
}

// ReviewTip is a single reviewer-facing finding derived from ReviewStats.
type ReviewTip struct {
	Priority int    // higher is more important (1-10)
	Message  string // one or two sentences
	RuleID   string // e.g. "level_clipping"
}

// MaxReviewTips caps the number of tips returned.
const MaxReviewTips = 5

// GenerateReviewTips returns prioritised findings for s.
func GenerateReviewTips(s *ReviewStats) []ReviewTip {
	if s == nil {
		return nil
	}

	rules := []func(*ReviewStats) *ReviewTip{
		tipNoAudio,
		tipClipping,
		tipNearClipping,
		tipTooQuiet,
		tipQuiet,
		tipMainsHum,
		tipLongSilence,
		tipUneven,
	}

	var tips []ReviewTip
	fired := make(map[string]bool)
	for _, rule := range rules {
		if tip := rule(s); tip != nil {
			tips = append(tips, *tip)
			fired[tip.RuleID] = true
		}
	}
	tips = applyExclusions(tips, fired)

	sort.SliceStable(tips, func(i, j int) bool {
		return tips[i].Priority > tips[j].Priority
	})
	if len(tips) > MaxReviewTips {
		tips = tips[:MaxReviewTips]
	}
	return tips
}

// applyExclusions drops tips made redundant by a more specific one.
func applyExclusions(tips []ReviewTip, fired map[string]bool) []ReviewTip {
	var out []ReviewTip
	for _, tip := range tips {
		switch tip.RuleID {
		case "level_too_quiet", "level_quiet":
			if fired["level_clipping"] || fired["level_near_clipping"] {
				continue
			}
		case "uneven_levels":
			if fired["long_silence"] {
				continue
			}
		}
		out = append(out, tip)
	}
	return out
}

// wrapText wraps text at word boundaries to fit within maxWidth columns.
// Continuation lines are prefixed with indent.
func wrapText(text string, maxWidth int, indent string) string {
	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= maxWidth:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return strings.Join(lines, "\n"+indent)
}

// tipNoAudio fires when playback produced snapshots but none had audio.
func tipNoAudio(s *ReviewStats) *ReviewTip {
	if s.Ticks == 0 || s.AudioTicks > 0 {
		return nil
	}
	return &ReviewTip{
		Priority: 9,
		RuleID:   "no_audio",
		Message:  "No audio could be analysed during playback. Check that the asset has an audio track the player can decode.",
	}
}

// tipClipping fires when more than 1% of audio snapshots, or at least
// three, reached full scale.
func tipClipping(s *ReviewStats) *ReviewTip {
	if s.ClipTicks < 3 && fraction(s.ClipTicks, s.AudioTicks) <= 0.01 {
		return nil
	}
	return &ReviewTip{
		Priority: 10,
		RuleID:   "level_clipping",
		Message:  "The audio reaches full scale repeatedly and is likely clipped. Flag the affected passages for re-mastering.",
	}
}

// tipNearClipping fires when the loudest peak came within 1 dB of full
// scale without clipping.
func tipNearClipping(s *ReviewStats) *ReviewTip {
	if s.MaxPeak < 0.891 || s.ClipTicks >= 3 || fraction(s.ClipTicks, s.AudioTicks) > 0.01 {
		return nil
	}
	return &ReviewTip{
		Priority: 6,
		RuleID:   "level_near_clipping",
		Message:  "Peaks come within 1 dB of full scale. There is little headroom left for any further processing.",
	}
}

// tipTooQuiet fires when the mean snapshot level is below -40 dBFS.
func tipTooQuiet(s *ReviewStats) *ReviewTip {
	if m := s.MeanLevelDB(); math.IsNaN(m) || m >= -40 {
		return nil
	}
	return &ReviewTip{
		Priority: 8,
		RuleID:   "level_too_quiet",
		Message:  "The programme level is very low, averaging below -40 dBFS. Viewers will need to turn their volume up a long way.",
	}
}

// tipQuiet fires when the mean snapshot level is between -40 and -30 dBFS.
func tipQuiet(s *ReviewStats) *ReviewTip {
	if m := s.MeanLevelDB(); math.IsNaN(m) || m < -40 || m >= -30 {
		return nil
	}
	return &ReviewTip{
		Priority: 5,
		RuleID:   "level_quiet",
		Message:  "The programme level is on the quiet side, averaging below -30 dBFS.",
	}
}

// tipMainsHum fires when the mains hum bin stood out in more than half of
// the audio snapshots.
func tipMainsHum(s *ReviewStats) *ReviewTip {
	if s.AudioTicks == 0 || fraction(s.HumTicks, s.AudioTicks) <= 0.5 {
		return nil
	}
	return &ReviewTip{
		Priority: 7,
		RuleID:   "mains_hum",
		Message:  "There is a constant low-frequency tone at the local mains frequency. Listen for hum from power supplies or ground loops.",
	}
}

// tipLongSilence fires when a quarter or more of the timeline is near silent.
func tipLongSilence(s *ReviewStats) *ReviewTip {
	if len(s.Peaks) == 0 || s.silentFraction() < 0.25 {
		return nil
	}
	return &ReviewTip{
		Priority: 4,
		RuleID:   "long_silence",
		Message:  "A large part of the timeline is close to silent. Check for missing dialogue, music or effects.",
	}
}

// tipUneven fires when most of the timeline sits at the noise floor relative
// to its loudest moment.
func tipUneven(s *ReviewStats) *ReviewTip {
	if len(s.Peaks) == 0 || s.levelFraction(scope.LevelFloor) < 0.5 {
		return nil
	}
	return &ReviewTip{
		Priority: 3,
		RuleID:   "uneven_levels",
		Message:  "Most of the timeline is more than 10 dB below its loudest moment. A few isolated peaks may be dominating the mix.",
	}
}
