package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/linuxmatters/avscope/internal/audio"
)

// ErrNotLoaded is returned by playback controls when nothing is loaded.
var ErrNotLoaded = errors.New("media: no source loaded")

// PlayerOptions configures a Player.
type PlayerOptions struct {
	Sink       Sink
	FFmpegBin  string // decodes video containers and provides frames; empty disables
	FFprobeBin string // probes video dimensions; empty disables
	FrameWidth int    // width frames are decoded at. Default: 320.
	Logger     *slog.Logger
}

// Player is an Element backed by a beep decode pipeline:
//
//	[Decode] -> [Resample] -> [Route] -> [Ctrl] -> [Sink]
type Player struct {
	Emitter

	sink Sink
	opts PlayerOptions
	log  *slog.Logger

	mu       sync.Mutex
	gen      uint64
	path     string
	reader   *audio.Reader
	stream   beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	queued   bool
	frames   FrameSource
	info     VideoInfo
	ready    ReadyState
	paused   bool
	ended    bool
	duration time.Duration

	// Playback clock for video-only media.
	clockBase  time.Duration
	clockStart time.Time
	endTimer   *time.Timer

	// node is read from the sink's pull loop and guarded by the sink lock.
	node AudioNode
}

// NewPlayer creates an empty Player.
func NewPlayer(opts PlayerOptions) *Player {
	if opts.FrameWidth <= 0 {
		opts.FrameWidth = 320
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Player{
		sink:   opts.Sink,
		opts:   opts,
		log:    log.With("component", "player"),
		paused: true,
	}
}

// Load opens path, replacing any current source, and emits LoadedData.
// Audio is decoded natively where possible and through FFmpeg otherwise;
// a file whose audio cannot be decoded plays as video only.
func (p *Player) Load(ctx context.Context, path string) error {
	p.Unload()

	var info VideoInfo
	if p.opts.FFprobeBin != "" {
		probed, err := ProbeVideo(ctx, p.opts.FFprobeBin, path)
		if err != nil {
			p.log.Debug("probe failed", "path", path, "err", err)
		} else {
			info = probed
		}
	}

	reader, stream, format, err := p.openAudio(ctx, path, info)
	if err != nil {
		return err
	}
	if stream == nil && !info.HasVideo {
		return fmt.Errorf("%s: no playable audio or video stream", path)
	}

	var frames FrameSource
	if info.HasVideo && p.opts.FFmpegBin != "" {
		frames = NewFFmpegFrames(p.opts.FFmpegBin, path, info, p.opts.FrameWidth, p.log)
	}

	p.mu.Lock()
	p.gen++
	p.path = path
	p.reader = reader
	p.stream = stream
	p.format = format
	p.frames = frames
	p.info = info
	p.paused = true
	p.ended = false
	p.clockBase = 0
	p.duration = info.Duration
	if stream != nil {
		p.duration = format.SampleRate.D(stream.Len())
		p.ctrl = &beep.Ctrl{Streamer: p.chain(stream, format), Paused: true}
	}
	p.ready = HaveEnoughData
	p.mu.Unlock()

	p.log.Info("loaded", "path", path, "audio", stream != nil, "video", info.HasVideo,
		"width", info.Width, "height", info.Height, "duration", p.Duration())
	p.Emit(LoadedData)
	return nil
}

// LoadBuffer loads decoded audio as an audio-only source.
func (p *Player) LoadBuffer(name string, buf *audio.Buffer) error {
	p.Unload()
	if buf == nil || buf.Length() == 0 {
		return fmt.Errorf("%s: empty audio buffer", name)
	}
	stream, format := buf.Streamer(), buf.Format()

	p.mu.Lock()
	p.gen++
	p.path = name
	p.stream = stream
	p.format = format
	p.paused = true
	p.ended = false
	p.duration = buf.Duration()
	p.ctrl = &beep.Ctrl{Streamer: p.chain(stream, format), Paused: true}
	p.ready = HaveEnoughData
	p.mu.Unlock()

	p.Emit(LoadedData)
	return nil
}

func (p *Player) openAudio(ctx context.Context, path string, info VideoInfo) (*audio.Reader, beep.StreamSeekCloser, beep.Format, error) {
	reader, _, err := audio.OpenAudioFile(path)
	if err == nil {
		return reader, reader.Streamer(), reader.Format(), nil
	}
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		return nil, nil, beep.Format{}, err
	}
	if p.opts.FFmpegBin == "" || (info.Probed && !info.HasAudio) {
		return nil, nil, beep.Format{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, beep.Format{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	dec := &audio.Decoder{FFmpegBin: p.opts.FFmpegBin}
	if p.sink != nil {
		dec.SampleRate = int(p.sink.SampleRate())
	}
	buf, err := dec.Decode(ctx, data, "")
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, beep.Format{}, ctx.Err()
		}
		p.log.Warn("audio decode failed, playing without sound", "path", path, "err", err)
		return nil, nil, beep.Format{}, nil
	}
	return nil, buf.Streamer(), buf.Format(), nil
}

// chain builds the playout pipeline for stream. Callers hold p.mu.
func (p *Player) chain(stream beep.Streamer, format beep.Format) beep.Streamer {
	var s beep.Streamer = stream
	if p.sink != nil && format.SampleRate != p.sink.SampleRate() {
		s = beep.Resample(4, format.SampleRate, p.sink.SampleRate(), s)
	}
	return &routeStreamer{s: s, p: p}
}

// Play starts or resumes playback. Playing ended media restarts it.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.ready == HaveNothing {
		p.mu.Unlock()
		return ErrNotLoaded
	}
	if !p.paused {
		p.mu.Unlock()
		return nil
	}
	if p.ended {
		p.seekLocked(0)
		p.ended = false
	}
	p.paused = false

	if p.ctrl != nil && p.sink != nil {
		if !p.queued {
			gen := p.gen
			p.queued = true
			p.sink.Play(beep.Seq(p.ctrl, beep.Callback(func() {
				go p.finish(gen)
			})))
		}
		p.sink.Lock()
		p.ctrl.Paused = false
		p.sink.Unlock()
	} else {
		p.startClockLocked()
	}
	p.mu.Unlock()

	p.Emit(Play)
	return nil
}

// Pause halts playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	if p.ready == HaveNothing {
		p.mu.Unlock()
		return ErrNotLoaded
	}
	if p.paused {
		p.mu.Unlock()
		return nil
	}
	p.pauseLocked()
	p.mu.Unlock()

	p.Emit(Pause)
	return nil
}

// TogglePause switches between playing and paused.
func (p *Player) TogglePause() error {
	if p.Paused() {
		return p.Play()
	}
	return p.Pause()
}

func (p *Player) pauseLocked() {
	p.paused = true
	if p.ctrl != nil && p.sink != nil {
		p.sink.Lock()
		p.ctrl.Paused = true
		p.sink.Unlock()
		return
	}
	p.clockBase = p.clockLocked()
	if p.endTimer != nil {
		p.endTimer.Stop()
		p.endTimer = nil
	}
}

// Seek moves the playhead to pos, clamped to the media duration.
func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	if p.ready == HaveNothing {
		p.mu.Unlock()
		return ErrNotLoaded
	}
	err := p.seekLocked(pos)
	p.ended = false
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.Emit(Seeked)
	return nil
}

func (p *Player) seekLocked(pos time.Duration) error {
	pos = max(0, min(pos, p.duration))
	if p.stream != nil {
		n := min(p.format.SampleRate.N(pos), p.stream.Len())
		if p.sink != nil {
			p.sink.Lock()
			defer p.sink.Unlock()
		}
		if err := p.stream.Seek(n); err != nil {
			return fmt.Errorf("seek to %v: %w", pos, err)
		}
		return nil
	}
	p.clockBase = pos
	if !p.paused {
		p.startClockLocked()
	}
	return nil
}

func (p *Player) startClockLocked() {
	p.clockStart = time.Now()
	if p.endTimer != nil {
		p.endTimer.Stop()
	}
	gen := p.gen
	p.endTimer = time.AfterFunc(p.duration-p.clockBase, func() { p.finish(gen) })
}

func (p *Player) clockLocked() time.Duration {
	if p.paused {
		return p.clockBase
	}
	return min(p.duration, p.clockBase+time.Since(p.clockStart))
}

// finish handles end of media for the load generation gen.
func (p *Player) finish(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.ready == HaveNothing || p.ended {
		p.mu.Unlock()
		return
	}
	p.queued = false
	p.clockBase = p.duration
	p.paused = true
	p.ended = true
	if p.ctrl != nil && p.sink != nil {
		p.sink.Lock()
		p.ctrl.Paused = true
		p.sink.Unlock()
	}
	p.mu.Unlock()

	p.Emit(Pause)
	p.Emit(Ended)
}

// Unload releases the current source and emits Emptied if one was loaded.
func (p *Player) Unload() {
	p.mu.Lock()
	if p.ready == HaveNothing {
		p.mu.Unlock()
		return
	}
	p.gen++
	if p.sink != nil {
		p.sink.Clear()
		p.sink.Lock()
		p.node = nil
		p.sink.Unlock()
	}
	if p.endTimer != nil {
		p.endTimer.Stop()
		p.endTimer = nil
	}
	if p.frames != nil {
		p.frames.Close()
		p.frames = nil
	}
	if p.reader != nil {
		p.reader.Close()
		p.reader = nil
	} else if p.stream != nil {
		p.stream.Close()
	}
	p.stream = nil
	p.ctrl = nil
	p.queued = false
	p.node = nil
	p.info = VideoInfo{}
	p.ready = HaveNothing
	p.paused = true
	p.ended = false
	p.duration = 0
	p.clockBase = 0
	p.path = ""
	p.mu.Unlock()

	p.Emit(Emptied)
}

// Close unloads the current source.
func (p *Player) Close() error {
	p.Unload()
	return nil
}

// Path returns the loaded source name.
func (p *Player) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// HasAudio reports whether the loaded source has a decodable audio track.
func (p *Player) HasAudio() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream != nil
}

func (p *Player) VideoSize() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.Width, p.info.Height
}

func (p *Player) ReadyState() ReadyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ended
}

func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *Player) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTimeLocked()
}

func (p *Player) currentTimeLocked() time.Duration {
	if p.stream == nil {
		return p.clockLocked()
	}
	if p.sink != nil {
		p.sink.Lock()
		defer p.sink.Unlock()
	}
	return p.format.SampleRate.D(p.stream.Position())
}

func (p *Player) Frame() (image.Image, error) {
	p.mu.Lock()
	frames := p.frames
	var at time.Duration
	if frames != nil {
		at = p.currentTimeLocked()
	}
	p.mu.Unlock()

	if frames == nil {
		return nil, nil
	}
	return frames.FrameAt(at)
}

func (p *Player) RouteAudio(node AudioNode) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil || p.sink == nil {
		return nil, ErrNoAudioTrack
	}

	p.sink.Lock()
	defer p.sink.Unlock()
	if p.node != nil {
		return nil, ErrAlreadyRouted
	}
	p.node = node

	gen := p.gen
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.gen != gen || p.sink == nil {
				return
			}
			p.sink.Lock()
			if p.node == node {
				p.node = nil
			}
			p.sink.Unlock()
		})
	}, nil
}

// routeStreamer hands every played block to the routed node.
type routeStreamer struct {
	s beep.Streamer
	p *Player
}

func (r *routeStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := r.s.Stream(samples)
	if node := r.p.node; node != nil && n > 0 {
		node.Process(samples[:n])
	}
	return n, ok
}

func (r *routeStreamer) Err() error {
	return r.s.Err()
}
