// Package waveform reduces decoded audio to a fixed number of normalized peak
// buckets for the timeline strip.
package waveform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/linuxmatters/avscope/internal/audio"
	"github.com/linuxmatters/avscope/internal/source"
)

const (
	// DefaultBuckets is the bucket count of a timeline waveform.
	DefaultBuckets = 150
	// DefaultProgressInterval is the minimum spacing of progress emissions.
	DefaultProgressInterval = 16 * time.Millisecond
	// MaxBuckets bounds the length of a stored waveform.
	MaxBuckets = 10000
)

// ErrInvalidPeaks is returned by Validate.
var ErrInvalidPeaks = errors.New("waveform: invalid peak array")

// Validate checks that peaks is a plausible stored waveform: non-empty, at
// most MaxBuckets long, every value a number in [0, 1].
func Validate(peaks []float64) error {
	if len(peaks) == 0 || len(peaks) > MaxBuckets {
		return fmt.Errorf("%w: length %d", ErrInvalidPeaks, len(peaks))
	}
	for i, v := range peaks {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: value %v at %d", ErrInvalidPeaks, v, i)
		}
	}
	return nil
}

// Builder computes peak waveforms, reporting partial results while it runs.
// The zero value is ready to use.
type Builder struct {
	// ProgressInterval throttles progress callbacks. Zero means
	// DefaultProgressInterval.
	ProgressInterval time.Duration

	// Yield is called after every progress emission so observers can draw
	// the partial result. Nil waits one ProgressInterval.
	Yield func(ctx context.Context) error

	// Now is the clock used for throttling. Nil means time.Now.
	Now func() time.Time
}

func (b *Builder) interval() time.Duration {
	if b.ProgressInterval > 0 {
		return b.ProgressInterval
	}
	return DefaultProgressInterval
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Builder) yield(ctx context.Context) error {
	if b.Yield != nil {
		return b.Yield(ctx)
	}
	t := time.NewTimer(b.interval())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Build splits samples into bucketCount equal buckets of floor(len/bucketCount)
// samples, takes the peak absolute value of each and normalizes by the
// loudest bucket. Trailing samples that do not fill a bucket are ignored and
// inputs shorter than bucketCount produce all zeros, as does silence.
//
// onProgress, when non-nil, receives copies of the partially filled result
// at most once per ProgressInterval, and always once with the final result.
// If ctx is cancelled Build returns ctx.Err() and makes no further callbacks.
func (b *Builder) Build(ctx context.Context, samples []float64, bucketCount int, onProgress func([]float64)) ([]float64, error) {
	if bucketCount <= 0 {
		bucketCount = DefaultBuckets
	}
	size := len(samples) / bucketCount
	peaks := make([]float64, bucketCount)

	var maxPeak float64
	for i := range bucketCount {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var p float64
		for _, v := range samples[i*size : (i+1)*size] {
			if a := math.Abs(v); a > p {
				p = a
			}
		}
		peaks[i] = p
		maxPeak = max(maxPeak, p)
	}

	out := make([]float64, bucketCount)
	var last time.Time
	for i := range bucketCount {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if maxPeak > 0 {
			out[i] = peaks[i] / maxPeak
		}
		if onProgress == nil {
			continue
		}
		if now := b.now(); last.IsZero() || now.Sub(last) > b.interval() {
			last = now
			onProgress(clone(out))
			if err := b.yield(ctx); err != nil {
				return nil, err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(clone(out))
	}
	return out, nil
}

// BuildBuffer builds the waveform of the first channel of buf.
func (b *Builder) BuildBuffer(ctx context.Context, buf *audio.Buffer, bucketCount int, onProgress func([]float64)) ([]float64, error) {
	if buf == nil || buf.NumChannels() == 0 {
		return nil, &audio.DecodeError{Err: errors.New("no audio channels")}
	}
	return b.Build(ctx, buf.Channel(0), bucketCount, onProgress)
}

// IsHardError reports whether err means the source itself could not be
// processed, as opposed to cancellation or a transient fault.
func IsHardError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fe *source.FetchError
	var de *audio.DecodeError
	return errors.As(err, &fe) || errors.As(err, &de)
}

func clone(p []float64) []float64 {
	c := make([]float64, len(p))
	copy(c, p)
	return c
}
