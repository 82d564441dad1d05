// Package analysis samples a playing media element at a fixed cadence and
// publishes merged video and audio snapshots for the scopes.
package analysis

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"golang.org/x/image/draw"

	"github.com/linuxmatters/avscope/internal/media"
)

// DefaultWidth is the analysis raster width in pixels.
const DefaultWidth = 128

// VideoFrame is a downsampled RGBA frame. Pixels is never mutated after the
// frame is published.
type VideoFrame struct {
	Width  int
	Height int
	Pixels []byte // RGBA, row-major, 4 bytes per pixel
}

// FrameSampler draws the current frame of an element onto a reusable
// analysis raster.
type FrameSampler struct {
	Width int
	// MinReady is the readiness an element needs before it is sampled.
	MinReady media.ReadyState

	log     *slog.Logger
	scratch *image.RGBA
}

// NewFrameSampler returns a sampler for rasters width pixels wide
// (DefaultWidth when width <= 0).
func NewFrameSampler(width int, log *slog.Logger) *FrameSampler {
	if width <= 0 {
		width = DefaultWidth
	}
	if log == nil {
		log = slog.Default()
	}
	return &FrameSampler{Width: width, MinReady: media.HaveCurrentData, log: log}
}

// Sample returns the downsampled current frame of el. It returns false when
// the element has no decodable frame yet or its pixels cannot be read back;
// callers keep their previous frame in that case.
func (s *FrameSampler) Sample(el media.Element) (*VideoFrame, bool) {
	if el == nil {
		return nil, false
	}
	vw, vh := el.VideoSize()
	if vw <= 0 || vh <= 0 || el.ReadyState() < s.MinReady {
		return nil, false
	}

	src, err := readFrame(el)
	if err != nil {
		s.log.Warn("frame read-back failed", "err", err)
		return nil, false
	}
	if src == nil || src.Bounds().Empty() {
		return nil, false
	}

	w := s.Width
	h := max(1, int(math.Round(float64(w)*float64(vh)/float64(vw))))
	if s.scratch == nil || s.scratch.Rect.Dx() != w || s.scratch.Rect.Dy() != h {
		s.scratch = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.ApproxBiLinear.Scale(s.scratch, s.scratch.Rect, src, src.Bounds(), draw.Src, nil)

	return &VideoFrame{
		Width:  w,
		Height: h,
		Pixels: append([]byte(nil), s.scratch.Pix...),
	}, true
}

// readFrame converts a panicking frame source into an error.
func readFrame(el media.Element) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("frame source panicked: %v", r)
		}
	}()
	return el.Frame()
}
