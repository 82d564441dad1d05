package analysis

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/linuxmatters/avscope/internal/audio"
	"github.com/linuxmatters/avscope/internal/media"
)

// AudioTap routes one element's audio through an analyser node and owns the
// processing context behind it. The context is closed on Detach so repeated
// media loads never exhaust the System's context budget.
type AudioTap struct {
	sys  *audio.System
	opts audio.AnalyserOptions
	log  *slog.Logger

	mu         sync.Mutex
	el         media.Element
	ctx        *audio.Context
	analyser   *audio.Analyser
	disconnect func()
}

// NewAudioTap returns a detached tap drawing contexts from sys.
func NewAudioTap(sys *audio.System, opts audio.AnalyserOptions, log *slog.Logger) *AudioTap {
	if opts.FFTSize == 0 {
		opts.FFTSize = audio.DefaultFFTSize
	}
	if opts.Smoothing == 0 {
		opts.Smoothing = audio.DefaultSmoothing
	}
	if log == nil {
		log = slog.Default()
	}
	return &AudioTap{sys: sys, opts: opts, log: log}
}

// Attach routes el's audio through a fresh analyser. It reports whether audio
// analysis is available. Attaching the element the tap is already attached
// to is a no-op; attaching another element detaches the first.
func (t *AudioTap) Attach(el media.Element) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el == nil {
		return false
	}
	if t.analyser != nil {
		if t.el == el {
			return true
		}
		t.detachLocked()
	}

	if t.ctx == nil || t.ctx.State() == audio.ContextClosed {
		ctx, err := t.sys.Open()
		if err != nil {
			t.log.Warn("audio context unavailable", "err", err, "open", t.sys.OpenCount())
			return false
		}
		t.ctx = ctx
	}
	if t.ctx.State() == audio.ContextSuspended {
		if err := t.ctx.Resume(); err != nil {
			t.log.Warn("audio context resume failed", "err", err)
			t.detachLocked()
			return false
		}
	}

	analyser, err := t.ctx.NewAnalyser(t.opts)
	if err != nil {
		t.log.Warn("audio analyser setup failed", "err", err)
		t.detachLocked()
		return false
	}

	disconnect, err := el.RouteAudio(analyser)
	if err != nil {
		if errors.Is(err, media.ErrNoAudioTrack) {
			t.log.Info("audio unavailable, element has no audio track")
		} else {
			t.log.Warn("audio routing failed", "err", err)
		}
		t.detachLocked()
		return false
	}

	t.el = el
	t.analyser = analyser
	t.disconnect = disconnect
	t.log.Debug("audio tap attached", "context", t.ctx.ID())
	return true
}

// Attached reports whether an analyser is currently routed.
func (t *AudioTap) Attached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.analyser != nil
}

// SampleFrequency returns a fresh copy of the current byte spectrum, or nil
// when detached.
func (t *AudioTap) SampleFrequency() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.analyser == nil {
		return nil
	}
	dst := make([]byte, t.analyser.FrequencyBinCount())
	t.analyser.ByteFrequencyData(dst)
	return dst
}

// SamplePeak returns the peak absolute amplitude since the previous call,
// or 0 when detached.
func (t *AudioTap) SamplePeak() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.analyser == nil {
		return 0
	}
	return t.analyser.Peak()
}

// Detach disconnects the analyser and closes the processing context.
func (t *AudioTap) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detachLocked()
}

func (t *AudioTap) detachLocked() {
	if t.disconnect != nil {
		t.disconnect()
		t.disconnect = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.log.Debug("audio context closed", "context", t.ctx.ID())
		t.ctx = nil
	}
	t.analyser = nil
	t.el = nil
}
