package audio

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/madelynnblue/go-dsp/fft"
)

// Analyser defaults, matching the spectral window the scopes are tuned for.
const (
	DefaultFFTSize     = 512
	DefaultSmoothing   = 0.2
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
)

// AnalyserOptions configures NewAnalyser. Zero fields take the defaults above.
type AnalyserOptions struct {
	FFTSize     int     // power of two, at least 32
	Smoothing   float64 // time constant in [0, 1)
	MinDecibels float64
	MaxDecibels float64
}

// Analyser is an audio graph node that passes samples through untouched while
// capturing a mono mix into a ring buffer for spectrum and level readout.
type Analyser struct {
	ctx       *Context
	fftSize   int
	smoothing float64
	minDB     float64
	maxDB     float64

	mu   sync.Mutex
	ring []float64
	pos  int
	peak float64

	window   []float64
	scratch  []float64
	smoothed []float64
}

// NewAnalyser builds an analyser bound to the context.
func (c *Context) NewAnalyser(opts AnalyserOptions) (*Analyser, error) {
	if c.State() == ContextClosed {
		return nil, ErrContextClosed
	}
	if opts.FFTSize == 0 {
		opts.FFTSize = DefaultFFTSize
	}
	if opts.FFTSize < 32 || opts.FFTSize&(opts.FFTSize-1) != 0 {
		return nil, fmt.Errorf("audio: fft size %d is not a power of two >= 32", opts.FFTSize)
	}
	if opts.Smoothing < 0 || opts.Smoothing >= 1 {
		return nil, fmt.Errorf("audio: smoothing %.2f outside [0, 1)", opts.Smoothing)
	}
	if opts.MinDecibels == 0 && opts.MaxDecibels == 0 {
		opts.MinDecibels = DefaultMinDecibels
		opts.MaxDecibels = DefaultMaxDecibels
	}
	if opts.MinDecibels >= opts.MaxDecibels {
		return nil, fmt.Errorf("audio: min decibels %.1f >= max decibels %.1f", opts.MinDecibels, opts.MaxDecibels)
	}

	n := opts.FFTSize
	window := make([]float64, n)
	for i := range n {
		// Blackman window
		x := float64(i) / float64(n)
		window[i] = 0.42 - 0.5*math.Cos(2*math.Pi*x) + 0.08*math.Cos(4*math.Pi*x)
	}

	return &Analyser{
		ctx:       c,
		fftSize:   n,
		smoothing: opts.Smoothing,
		minDB:     opts.MinDecibels,
		maxDB:     opts.MaxDecibels,
		ring:      make([]float64, n),
		window:    window,
		scratch:   make([]float64, n),
		smoothed:  make([]float64, n/2),
	}, nil
}

// FFTSize returns the analysis window length in samples.
func (a *Analyser) FFTSize() int { return a.fftSize }

// FrequencyBinCount returns the number of spectrum bins (FFTSize/2).
func (a *Analyser) FrequencyBinCount() int { return a.fftSize / 2 }

// Process captures samples flowing through the node. It never modifies them.
func (a *Analyser) Process(samples [][2]float64) {
	if !a.ctx.running() {
		return
	}
	a.mu.Lock()
	for i := range samples {
		v := (samples[i][0] + samples[i][1]) / 2
		a.ring[a.pos] = v
		a.pos = (a.pos + 1) % a.fftSize
		if abs := math.Abs(v); abs > a.peak {
			a.peak = abs
		}
	}
	a.mu.Unlock()
}

// Peak returns the largest absolute amplitude captured since the previous
// call, clamped to [0, 1], and resets the running peak.
func (a *Analyser) Peak() float64 {
	a.mu.Lock()
	p := a.peak
	a.peak = 0
	a.mu.Unlock()
	return math.Min(p, 1)
}

// ByteTimeDomainData fills dst with the most recent samples mapped to bytes
// (128 = silence), oldest first.
func (a *Analyser) ByteTimeDomainData(dst []byte) {
	n := min(len(dst), a.fftSize)
	a.mu.Lock()
	start := (a.pos - n + a.fftSize) % a.fftSize
	for i := range n {
		v := 128 * (1 + a.ring[(start+i)%a.fftSize])
		dst[i] = byte(math.Max(0, math.Min(255, math.Floor(v))))
	}
	a.mu.Unlock()
}

// ByteFrequencyData fills dst with the smoothed magnitude spectrum in bytes,
// scaled linearly from MinDecibels (0) to MaxDecibels (255). At most
// FrequencyBinCount bins are written.
func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	for i := range a.fftSize {
		a.scratch[i] = a.ring[(a.pos+i)%a.fftSize] * a.window[i]
	}
	a.mu.Unlock()

	spectrum := fft.FFTReal(a.scratch)

	bins := min(len(dst), len(a.smoothed))
	scale := 255 / (a.maxDB - a.minDB)
	for k := range len(a.smoothed) {
		mag := cmplx.Abs(spectrum[k]) / float64(a.fftSize)
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if k >= bins {
			continue
		}
		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := math.Floor(scale * (db - a.minDB))
		dst[k] = byte(math.Max(0, math.Min(255, v)))
	}
}
