package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linuxmatters/avscope/internal/audio"
	"github.com/linuxmatters/avscope/internal/source"
	"github.com/linuxmatters/avscope/internal/waveform"
)

// ErrClosed is returned by Load after Close.
var ErrClosed = errors.New("cache: service closed")

// Fetcher retrieves media bytes for a reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*source.Media, error)
}

// Decoder turns media bytes into PCM.
type Decoder interface {
	Decode(ctx context.Context, data []byte, contentType string) (*audio.Buffer, error)
}

// PeakBuilder computes a waveform from decoded audio.
type PeakBuilder interface {
	BuildBuffer(ctx context.Context, buf *audio.Buffer, bucketCount int, onProgress func([]float64)) ([]float64, error)
}

// Options configures a Service.
type Options struct {
	Local    *LocalTier // required
	Remote   Remote     // nil disables the shared tier
	Registry *Registry  // nil creates one over Local's store
	Fetcher  Fetcher    // Default: source.New with defaults.
	Decoder  Decoder    // Default: audio.DefaultDecoder.
	Builder  PeakBuilder
	Buckets  int           // Default: waveform.DefaultBuckets.
	Timeout  time.Duration // bound on background remote writes. Default: 10s.
	Logger   *slog.Logger
}

// Service is the application-wide waveform cache: local tier, then remote
// tier, then compute from source.
type Service struct {
	local    *LocalTier
	remote   Remote
	registry *Registry
	fetcher  Fetcher
	decoder  Decoder
	builder  PeakBuilder
	buckets  int
	timeout  time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// New creates a Service and initializes its registry.
func New(opts Options) (*Service, error) {
	if opts.Local == nil {
		return nil, errors.New("cache: local tier is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry(opts.Local.Store(), opts.Local.Prefix(), opts.Logger)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = source.New(source.Config{})
	}
	if opts.Decoder == nil {
		opts.Decoder = audio.DefaultDecoder
	}
	if opts.Builder == nil {
		opts.Builder = &waveform.Builder{}
	}
	if opts.Buckets <= 0 {
		opts.Buckets = waveform.DefaultBuckets
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	s := &Service{
		local:    opts.Local,
		remote:   opts.Remote,
		registry: opts.Registry,
		fetcher:  opts.Fetcher,
		decoder:  opts.Decoder,
		builder:  opts.Builder,
		buckets:  opts.Buckets,
		timeout:  opts.Timeout,
		log:      opts.Logger,
	}
	s.registry.Initialize()
	return s, nil
}

// Registry returns the membership registry.
func (s *Service) Registry() *Registry { return s.registry }

// Local returns the local tier.
func (s *Service) Local() *LocalTier { return s.local }

// Get looks id up in the local tier, then the remote tier. A remote hit is
// copied into the local tier.
func (s *Service) Get(ctx context.Context, id string) ([]float64, bool) {
	if peaks, ok := s.local.Get(id); ok {
		s.log.Debug("waveform cache hit", "id", id, "tier", "local")
		return peaks, true
	}
	if s.remote == nil {
		return nil, false
	}
	peaks, ok := s.remote.Get(ctx, id)
	if !ok {
		return nil, false
	}
	s.log.Debug("waveform cache hit", "id", id, "tier", "remote")
	s.local.Put(id, peaks)
	return peaks, true
}

// Put writes peaks to the local tier and, in the background, to the remote
// tier. Neither failure is reported.
func (s *Service) Put(ctx context.Context, id string, peaks []float64) {
	s.local.Put(id, peaks)
	s.registry.Add(id)

	if s.remote == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.remote.Put(rctx, id, peaks); err != nil {
			s.log.Warn("remote cache write failed", "id", id, "error", err)
		}
	}()
}

// Load returns the waveform for id, computing it from ref on a cache miss
// and storing the result in both tiers. onProgress receives partial results
// while computing. Fetch and decode failures are returned as hard errors
// (see waveform.IsHardError) and nothing is cached; cancellation returns
// ctx.Err().
func (s *Service) Load(ctx context.Context, id, ref string, onProgress func([]float64)) ([]float64, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if peaks, ok := s.Get(ctx, id); ok {
		s.registry.Add(id)
		return peaks, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := s.log.With("id", id)
	start := time.Now()

	media, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, s.failed(ctx, log, "fetch", err)
	}
	buf, err := s.decoder.Decode(ctx, media.Data, media.ContentType)
	if err != nil {
		return nil, s.failed(ctx, log, "decode", err)
	}
	peaks, err := s.builder.BuildBuffer(ctx, buf, s.buckets, onProgress)
	if err != nil {
		return nil, s.failed(ctx, log, "build", err)
	}

	log.Info("waveform computed",
		"bytes", media.Size,
		"duration", buf.Duration().Round(time.Millisecond),
		"elapsed", time.Since(start).Round(time.Millisecond))
	s.Put(ctx, id, peaks)
	return peaks, nil
}

func (s *Service) failed(ctx context.Context, log *slog.Logger, stage string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Warn("waveform load failed", "stage", stage, "error", err)
	return fmt.Errorf("%s: %w", stage, err)
}

// Close stops accepting work and waits for background remote writes.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.pending.Wait()
	return nil
}
