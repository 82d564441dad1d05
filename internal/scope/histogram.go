// Package scope reduces analysis snapshots and waveform peaks to the data the
// scope displays draw: luma and RGB parade histograms, VU ballistics,
// spectrum rows and peak level classes.
package scope

import (
	"math"

	"github.com/linuxmatters/avscope/internal/analysis"
)

// Bins is the number of intensity levels per histogram column.
const Bins = 256

// Histogram counts 8-bit values per display column.
type Histogram struct {
	Columns int
	Counts  []uint32 // Columns*Bins, column-major
	Max     uint32   // largest count, at least 1
}

func newHistogram(columns int) *Histogram {
	return &Histogram{
		Columns: columns,
		Counts:  make([]uint32, columns*Bins),
		Max:     1,
	}
}

func (h *Histogram) add(col int, v uint8) {
	i := col*Bins + int(v)
	h.Counts[i]++
	if h.Counts[i] > h.Max {
		h.Max = h.Counts[i]
	}
}

// At returns the count for value bin in column col.
func (h *Histogram) At(col, bin int) uint32 {
	if col < 0 || col >= h.Columns || bin < 0 || bin >= Bins {
		return 0
	}
	return h.Counts[col*Bins+bin]
}

// Intensity returns the log-scaled brightness of a cell in [0, 1].
func (h *Histogram) Intensity(col, bin int) float64 {
	m := h.At(col, bin)
	if m == 0 {
		return 0
	}
	return math.Min(1, math.Log(float64(m)+1)/math.Log(float64(h.Max)+1))
}

// Luma returns the Rec. 601 luma of an RGB pixel.
func Luma(r, g, b uint8) uint8 {
	return uint8(math.Floor(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)))
}

// column maps pixel x of a frame width wide onto one of columns.
func column(x, width, columns int) int {
	return x * columns / width
}

// LumaWaveform builds the per-column luma distribution of frame.
func LumaWaveform(frame *analysis.VideoFrame, columns int) *Histogram {
	if frame == nil || frame.Width == 0 || columns <= 0 {
		return nil
	}
	h := newHistogram(columns)
	for y := range frame.Height {
		row := frame.Pixels[y*frame.Width*4:]
		for x := range frame.Width {
			p := row[x*4 : x*4+3]
			h.add(column(x, frame.Width, columns), Luma(p[0], p[1], p[2]))
		}
	}
	return h
}

// RGBParade builds one per-column distribution for each colour channel.
func RGBParade(frame *analysis.VideoFrame, columns int) (r, g, b *Histogram) {
	if frame == nil || frame.Width == 0 || columns <= 0 {
		return nil, nil, nil
	}
	r, g, b = newHistogram(columns), newHistogram(columns), newHistogram(columns)
	for y := range frame.Height {
		row := frame.Pixels[y*frame.Width*4:]
		for x := range frame.Width {
			col := column(x, frame.Width, columns)
			r.add(col, row[x*4])
			g.add(col, row[x*4+1])
			b.add(col, row[x*4+2])
		}
	}
	return r, g, b
}

// Trace reduces column col to its mean value, or -1 for an empty column.
func (h *Histogram) Trace(col int) float64 {
	var n, sum uint64
	for bin := range Bins {
		c := uint64(h.At(col, bin))
		n += c
		sum += c * uint64(bin)
	}
	if n == 0 {
		return -1
	}
	return float64(sum) / float64(n)
}
