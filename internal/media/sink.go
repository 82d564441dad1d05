package media

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Sink is the audio output a Player plays into. Lock and Unlock guard the
// streamers while the sink is pulling samples from them.
type Sink interface {
	SampleRate() beep.SampleRate
	Play(s beep.Streamer)
	Clear()
	Lock()
	Unlock()
}

// SpeakerSink plays through the system audio device.
type SpeakerSink struct {
	sr beep.SampleRate
}

// NewSpeakerSink initialises the speaker at sr with a 100ms buffer.
func NewSpeakerSink(sr beep.SampleRate) (*SpeakerSink, error) {
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return nil, err
	}
	return &SpeakerSink{sr: sr}, nil
}

func (s *SpeakerSink) SampleRate() beep.SampleRate { return s.sr }
func (s *SpeakerSink) Play(st beep.Streamer)       { speaker.Play(st) }
func (s *SpeakerSink) Clear()                      { speaker.Clear() }
func (s *SpeakerSink) Lock()                       { speaker.Lock() }
func (s *SpeakerSink) Unlock()                     { speaker.Unlock() }

// Close shuts the speaker down.
func (s *SpeakerSink) Close() {
	speaker.Close()
}

// ClockSink pulls samples in real time and discards them. It stands in for
// an audio device on headless machines and in tests.
type ClockSink struct {
	sr      beep.SampleRate
	quantum time.Duration

	mu    sync.Mutex
	mixer beep.Mixer
	buf   [][2]float64

	start     sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// NewClockSink returns a sink consuming sr samples per second in steps of
// quantum (default 10ms).
func NewClockSink(sr beep.SampleRate, quantum time.Duration) *ClockSink {
	if quantum <= 0 {
		quantum = 10 * time.Millisecond
	}
	return &ClockSink{
		sr:      sr,
		quantum: quantum,
		buf:     make([][2]float64, sr.N(quantum)),
		done:    make(chan struct{}),
	}
}

func (c *ClockSink) SampleRate() beep.SampleRate { return c.sr }

func (c *ClockSink) Play(s beep.Streamer) {
	c.mu.Lock()
	c.mixer.Add(s)
	c.mu.Unlock()
	c.start.Do(func() { go c.run() })
}

func (c *ClockSink) Clear() {
	c.mu.Lock()
	c.mixer.Clear()
	c.mu.Unlock()
}

func (c *ClockSink) Lock()   { c.mu.Lock() }
func (c *ClockSink) Unlock() { c.mu.Unlock() }

// Close stops the pull loop.
func (c *ClockSink) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *ClockSink) run() {
	ticker := time.NewTicker(c.quantum)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.mixer.Stream(c.buf)
			c.mu.Unlock()
		}
	}
}
