// Package media models the playback surface the analysis loop is driven by:
// a media element with readiness, play/pause/seek events, a current video
// frame and an audio output that analysis nodes can be routed into.
package media

import (
	"errors"
	"image"
	"slices"
	"sync"
	"time"
)

// ErrNoAudioTrack is returned by RouteAudio when the element carries no audio.
var ErrNoAudioTrack = errors.New("media: element has no audio track")

// ErrAlreadyRouted is returned by RouteAudio when a node is already attached.
var ErrAlreadyRouted = errors.New("media: audio output already routed")

// ReadyState follows the HTML media readiness levels.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// Event is a playback notification emitted by an Element.
type Event int

const (
	LoadedData Event = iota + 1
	Play
	Pause
	Ended
	Seeked
	Emptied
)

func (e Event) String() string {
	switch e {
	case LoadedData:
		return "loadeddata"
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Ended:
		return "ended"
	case Seeked:
		return "seeked"
	case Emptied:
		return "emptied"
	}
	return "unknown"
}

// AudioNode receives the element's decoded audio as it is played out.
// Process must not modify or retain samples.
type AudioNode interface {
	Process(samples [][2]float64)
}

// Element is a playback surface.
type Element interface {
	// VideoSize returns the intrinsic video dimensions, or zeros for audio-only media.
	VideoSize() (width, height int)
	ReadyState() ReadyState
	Paused() bool
	Ended() bool
	CurrentTime() time.Duration
	Duration() time.Duration
	// Frame returns the currently visible video frame, nil when none is
	// available yet. An error means the frame exists but cannot be read back.
	Frame() (image.Image, error)
	// RouteAudio inserts node into the audio output path. Audio keeps
	// flowing to the output. The returned func disconnects the node.
	RouteAudio(node AudioNode) (disconnect func(), err error)
	// Subscribe registers fn for playback events and returns a cancel func.
	Subscribe(fn func(Event)) (cancel func())
}

// Emitter fans events out to subscribers. The zero value is ready to use.
type Emitter struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

// Subscribe registers fn. Calling the returned func more than once is safe.
func (e *Emitter) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[int]func(Event))
	}
	id := e.next
	e.next++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Emit delivers ev to every subscriber, in registration order, outside the lock.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	ids := make([]int, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Event), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, e.subs[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Subscribers returns the number of registered subscribers.
func (e *Emitter) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
