package analysis

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linuxmatters/avscope/internal/audio"
	"github.com/linuxmatters/avscope/internal/media"
)

// Loop defaults.
const (
	DefaultRate   = 15.0
	DefaultSettle = 50 * time.Millisecond
)

// State is the playback-driven state of a Loop.
type State int

const (
	Idle State = iota
	AttachedPaused
	AttachedPlaying
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AttachedPaused:
		return "attached-paused"
	case AttachedPlaying:
		return "attached-playing"
	}
	return "unknown"
}

// Snapshot is the merged analysis result published once per tick while
// playing and once per seek or frame-ready event while paused.
type Snapshot struct {
	Video     *VideoFrame // last successfully sampled frame, nil if none yet
	Volume    float64     // peak amplitude in [0, 1] since the previous tick
	Frequency []byte      // byte spectrum, nil while audio is unavailable
	Seq       uint64
	At        time.Time
}

// Options configures a Loop.
type Options struct {
	Rate     float64       // ticks per second while playing. Default: 15.
	Width    int           // analysis raster width. Default: 128.
	Settle   time.Duration // delay before sampling a paused frame. Default: 50ms.
	Analyser audio.AnalyserOptions
	Logger   *slog.Logger
	// OnSnapshot is called from the loop goroutine for every published
	// snapshot. It must not call SetSource or Close.
	OnSnapshot func(Snapshot)
}

type sourceEvent struct {
	gen uint64
	ev  media.Event
}

type sourceRequest struct {
	el   media.Element
	done chan struct{}
}

// Loop owns the frame sampler and audio tap for one playback session at a
// time. All transitions run on a single goroutine, so ticks never overlap
// and teardown happens exactly once per session.
type Loop struct {
	opts     Options
	interval time.Duration
	log      *slog.Logger
	sampler  *FrameSampler
	tap      *AudioTap

	requests chan sourceRequest
	events   chan sourceEvent
	quit     chan struct{}
	stopped  chan struct{}
	once     sync.Once

	// Owned by the loop goroutine.
	el          media.Element
	gen         uint64
	unsubscribe func()
	ticker      *time.Ticker
	settle      *time.Timer
	sessionLog  *slog.Logger
	state       State
	current     Snapshot
	seq         uint64

	mu         sync.Mutex
	pubState   State
	pubSnap    Snapshot
	audioReady bool
}

// NewLoop starts an idle loop drawing audio contexts from sys.
func NewLoop(sys *audio.System, opts Options) *Loop {
	if opts.Rate <= 0 {
		opts.Rate = DefaultRate
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "analysis")

	l := &Loop{
		opts:       opts,
		interval:   time.Duration(float64(time.Second) / opts.Rate),
		log:        log,
		sampler:    NewFrameSampler(opts.Width, log),
		tap:        NewAudioTap(sys, opts.Analyser, log),
		requests:   make(chan sourceRequest),
		events:     make(chan sourceEvent, 32),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		sessionLog: log,
	}
	go l.run()
	return l
}

// SetSource switches the loop to el. The previous session's timer and audio
// tap are torn down before it returns. A nil element returns the loop to Idle.
func (l *Loop) SetSource(el media.Element) {
	req := sourceRequest{el: el, done: make(chan struct{})}
	select {
	case l.requests <- req:
		<-req.done
	case <-l.stopped:
	}
}

// Close tears down the current session and stops the loop goroutine.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.quit) })
	<-l.stopped
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pubState
}

// Snapshot returns the most recently published snapshot.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pubSnap
}

// AudioReady reports whether audio analysis is attached for this session.
func (l *Loop) AudioReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.audioReady
}

// Interval returns the tick period.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		var tickC, settleC <-chan time.Time
		if l.ticker != nil {
			tickC = l.ticker.C
		}
		if l.settle != nil {
			settleC = l.settle.C
		}

		select {
		case req := <-l.requests:
			l.attach(req.el)
			close(req.done)
		case se := <-l.events:
			if se.gen == l.gen && l.el != nil {
				l.handle(se.ev)
			}
		case <-tickC:
			l.tick()
		case <-settleC:
			l.settle = nil
			l.sampleStill()
		case <-l.quit:
			l.detach()
			return
		}
	}
}

// attach ends the current session and starts one for el.
func (l *Loop) attach(el media.Element) {
	l.detach()
	if el == nil {
		return
	}

	l.gen++
	gen := l.gen
	l.el = el
	l.sessionLog = l.log.With("session", uuid.NewString())
	l.unsubscribe = el.Subscribe(func(ev media.Event) {
		select {
		case l.events <- sourceEvent{gen: gen, ev: ev}:
		case <-l.stopped:
		}
	})
	l.sessionLog.Debug("source assigned", "ready", el.ReadyState())

	if el.ReadyState() >= media.HaveCurrentData {
		l.dataAvailable()
	}
}

// detach stops the timers, closes the audio context and resets to Idle.
func (l *Loop) detach() {
	if l.el == nil {
		return
	}
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}
	l.reset()
	l.el = nil
	l.gen++
	l.sessionLog.Debug("source released")
	l.sessionLog = l.log
}

// reset tears down the session's timers and tap and publishes an empty snapshot.
func (l *Loop) reset() {
	l.stopTicker()
	if l.settle != nil {
		l.settle.Stop()
		l.settle = nil
	}
	l.tap.Detach()
	l.setAudioReady(false)

	empty := l.current.Video == nil && l.current.Frequency == nil && l.current.Volume == 0
	l.state = Idle
	l.current = Snapshot{}
	if empty {
		l.publishState()
		return
	}
	l.publish()
}

func (l *Loop) handle(ev media.Event) {
	l.sessionLog.Debug("media event", "event", ev, "state", l.state)
	switch ev {
	case media.LoadedData:
		l.dataAvailable()
	case media.Play:
		if l.state == Idle {
			if l.el.ReadyState() < media.HaveCurrentData {
				// Playback starts once LoadedData arrives.
				return
			}
			l.state = AttachedPaused
		}
		l.startPlaying()
	case media.Pause, media.Ended:
		if l.state == AttachedPlaying {
			l.stopPlaying()
		}
	case media.Seeked:
		if l.state == AttachedPaused {
			l.armSettle()
		}
	case media.Emptied:
		l.reset()
	}
}

// dataAvailable moves Idle to AttachedPaused and takes a still sample.
func (l *Loop) dataAvailable() {
	if l.state == Idle {
		l.state = AttachedPaused
		l.publishState()
	}
	if l.el.Paused() {
		l.armSettle()
		return
	}
	if l.state != AttachedPlaying {
		l.startPlaying()
	}
}

func (l *Loop) startPlaying() {
	ready := l.tap.Attach(l.el)
	l.setAudioReady(ready)

	if l.ticker == nil {
		l.ticker = time.NewTicker(l.interval)
	}
	l.state = AttachedPlaying
	l.publishState()
}

func (l *Loop) stopPlaying() {
	l.stopTicker()
	l.state = AttachedPaused
	l.publishState()
}

func (l *Loop) stopTicker() {
	if l.ticker != nil {
		l.ticker.Stop()
		l.ticker = nil
	}
}

func (l *Loop) armSettle() {
	if l.settle != nil {
		l.settle.Stop()
	}
	l.settle = time.NewTimer(l.opts.Settle)
}

// tick samples video and audio once. A tick that finds the element no longer
// playing stops the timer instead.
func (l *Loop) tick() {
	if l.state != AttachedPlaying {
		l.stopTicker()
		return
	}
	if l.el.Paused() || l.el.Ended() {
		l.stopPlaying()
		return
	}

	if frame, ok := l.sampler.Sample(l.el); ok {
		l.current.Video = frame
	}
	if l.tap.Attached() {
		l.current.Volume = l.tap.SamplePeak()
		l.current.Frequency = l.tap.SampleFrequency()
	}
	l.publish()
}

// sampleStill refreshes only the video field.
func (l *Loop) sampleStill() {
	if l.el == nil || l.state == Idle {
		return
	}
	if frame, ok := l.sampler.Sample(l.el); ok {
		l.current.Video = frame
		l.publish()
	}
}

func (l *Loop) publish() {
	l.seq++
	l.current.Seq = l.seq
	l.current.At = time.Now()
	snap := l.current

	l.mu.Lock()
	l.pubSnap = snap
	l.pubState = l.state
	l.mu.Unlock()

	if l.opts.OnSnapshot != nil {
		l.opts.OnSnapshot(snap)
	}
}

func (l *Loop) publishState() {
	l.mu.Lock()
	l.pubState = l.state
	l.mu.Unlock()
}

func (l *Loop) setAudioReady(ready bool) {
	l.mu.Lock()
	l.audioReady = ready
	l.mu.Unlock()
}
