package analysis

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"
	"time"

	"github.com/linuxmatters/avscope/internal/media"
)

// fakeElement is a scriptable media.Element.
type fakeElement struct {
	media.Emitter

	mu       sync.Mutex
	w, h     int
	ready    media.ReadyState
	paused   bool
	ended    bool
	noAudio  bool
	frame    image.Image
	frameErr error
	panics   bool
	node     media.AudioNode
	routes   int
}

func newFakeElement(w, h int, c color.Color) *fakeElement {
	return &fakeElement{w: w, h: h, paused: true, frame: solidFrame(w, h, c)}
}

func solidFrame(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func (f *fakeElement) VideoSize() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w, f.h
}

func (f *fakeElement) ReadyState() media.ReadyState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeElement) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeElement) Ended() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended
}

func (f *fakeElement) CurrentTime() time.Duration { return 0 }
func (f *fakeElement) Duration() time.Duration    { return time.Minute }

func (f *fakeElement) Frame() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("tainted canvas")
	}
	return f.frame, f.frameErr
}

func (f *fakeElement) RouteAudio(node media.AudioNode) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noAudio {
		return nil, media.ErrNoAudioTrack
	}
	if f.node != nil {
		return nil, media.ErrAlreadyRouted
	}
	f.node = node
	f.routes++
	return func() {
		f.mu.Lock()
		if f.node == node {
			f.node = nil
		}
		f.mu.Unlock()
	}, nil
}

func (f *fakeElement) routed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.node != nil
}

func (f *fakeElement) setFrame(c color.Color) {
	f.mu.Lock()
	f.frame = solidFrame(f.w, f.h, c)
	f.mu.Unlock()
}

// feed pushes a block of constant-amplitude audio through the routed node.
func (f *fakeElement) feed(amp float64) {
	f.mu.Lock()
	node := f.node
	f.mu.Unlock()
	if node == nil {
		return
	}
	block := make([][2]float64, 512)
	for i := range block {
		v := amp
		if i%2 == 1 {
			v = -amp
		}
		block[i] = [2]float64{v, v}
	}
	node.Process(block)
}

func (f *fakeElement) load() {
	f.mu.Lock()
	f.ready = media.HaveEnoughData
	f.paused, f.ended = true, false
	f.mu.Unlock()
	f.Emit(media.LoadedData)
}

func (f *fakeElement) play() {
	f.mu.Lock()
	f.paused, f.ended = false, false
	f.mu.Unlock()
	f.Emit(media.Play)
}

func (f *fakeElement) pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
	f.Emit(media.Pause)
}

func (f *fakeElement) unload() {
	f.mu.Lock()
	f.ready = media.HaveNothing
	f.paused, f.ended = true, false
	f.mu.Unlock()
	f.Emit(media.Emptied)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, within time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v waiting for %s", within, what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
