package waveform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/linuxmatters/avscope/internal/audio"
	"github.com/linuxmatters/avscope/internal/source"
)

// noYield returns immediately so tests do not wait on the frame interval.
func noYield(ctx context.Context) error { return ctx.Err() }

// stepClock advances by step on every reading.
type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func sine(n int, amp float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = amp * math.Sin(2*math.Pi*float64(i)/97)
	}
	return s
}

func TestBuild_Normalizes(t *testing.T) {
	samples := make([]float64, 1500)
	for i := range samples {
		// Quiet everywhere except one loud sample in bucket 42.
		samples[i] = 0.1
	}
	samples[425] = -0.8

	b := &Builder{Yield: noYield}
	peaks, err := b.Build(context.Background(), samples, 150, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if peaks[42] != 1 {
		t.Errorf("loudest bucket = %v, want 1", peaks[42])
	}
	for i, p := range peaks {
		if p < 0 || p > 1 {
			t.Fatalf("bucket %d = %v, out of [0, 1]", i, p)
		}
		if i != 42 && math.Abs(p-0.125) > 1e-12 {
			t.Errorf("bucket %d = %v, want 0.125", i, p)
		}
	}
}

func TestBuild_Silence(t *testing.T) {
	b := &Builder{Yield: noYield}
	peaks, err := b.Build(context.Background(), make([]float64, 3000), 150, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i, p := range peaks {
		if p != 0 {
			t.Fatalf("bucket %d = %v, want 0", i, p)
		}
	}
}

func TestBuild_BucketCounts(t *testing.T) {
	samples := sine(10_007, 0.5)
	for _, n := range []int{1, 150, 1000} {
		t.Run(fmt.Sprintf("buckets=%d", n), func(t *testing.T) {
			b := &Builder{Yield: noYield}
			peaks, err := b.Build(context.Background(), samples, n, nil)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if len(peaks) != n {
				t.Fatalf("len = %d, want %d", len(peaks), n)
			}
			var top float64
			for _, p := range peaks {
				top = max(top, p)
			}
			if top != 1 {
				t.Errorf("max = %v, want 1", top)
			}
		})
	}
}

func TestBuild_ShortInput(t *testing.T) {
	b := &Builder{Yield: noYield}
	peaks, err := b.Build(context.Background(), []float64{0.5, 1, 0.25}, 150, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(peaks) != 150 {
		t.Fatalf("len = %d, want 150", len(peaks))
	}
	for i, p := range peaks {
		if p != 0 {
			t.Fatalf("bucket %d = %v, want 0 for input shorter than bucket count", i, p)
		}
	}
}

func TestBuild_DefaultBuckets(t *testing.T) {
	b := &Builder{Yield: noYield}
	peaks, err := b.Build(context.Background(), sine(3000, 1), 0, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(peaks) != DefaultBuckets {
		t.Errorf("len = %d, want %d", len(peaks), DefaultBuckets)
	}
}

func TestBuild_Progress(t *testing.T) {
	// Every bucket sees a clock 10ms later than the last, so emissions land
	// on every other bucket.
	clock := &stepClock{t: time.Unix(0, 0), step: 10 * time.Millisecond}
	yields := 0
	b := &Builder{
		Now: clock.Now,
		Yield: func(ctx context.Context) error {
			yields++
			return nil
		},
	}

	var calls [][]float64
	final, err := b.Build(context.Background(), sine(48000*3, 0.7), 150, func(p []float64) {
		calls = append(calls, p)
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(calls) < 2 {
		t.Fatalf("progress calls = %d, want more than 1", len(calls))
	}
	if yields != len(calls)-1 {
		t.Errorf("yields = %d, want one per throttled emission (%d)", yields, len(calls)-1)
	}

	last := calls[len(calls)-1]
	for i := range final {
		if last[i] != final[i] {
			t.Fatalf("final emission differs from result at %d", i)
		}
	}

	prevFilled := 0
	for n, partial := range calls {
		if len(partial) != len(final) {
			t.Fatalf("call %d: len = %d, want %d", n, len(partial), len(final))
		}
		filled := 0
		for i, v := range partial {
			if v == final[i] && v != 0 {
				filled = i + 1
			}
		}
		for i := filled; i < len(partial); i++ {
			if partial[i] != 0 {
				t.Fatalf("call %d: bucket %d = %v past filled prefix %d", n, i, partial[i], filled)
			}
		}
		if filled < prevFilled {
			t.Fatalf("call %d: prefix shrank from %d to %d", n, prevFilled, filled)
		}
		prevFilled = filled
	}
}

func TestBuild_ProgressCopies(t *testing.T) {
	b := &Builder{Yield: noYield}
	var first []float64
	final, err := b.Build(context.Background(), sine(1500, 1), 150, func(p []float64) {
		if first == nil {
			first = p
		}
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	first[0] = -1
	if final[0] == -1 {
		t.Error("progress callback shares storage with the result")
	}
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	b := &Builder{
		Yield: func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		},
	}

	_, err := b.Build(ctx, sine(15000, 1), 150, func([]float64) { calls++ })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("progress calls = %d, want 1 (none after cancel)", calls)
	}

	_, err = b.Build(ctx, sine(15000, 1), 150, func([]float64) { t.Error("callback after cancel") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("pre-cancelled err = %v, want context.Canceled", err)
	}
}

func TestBuild_DefaultYieldHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Builder{ProgressInterval: time.Hour}

	_, err := b.Build(ctx, sine(15000, 1), 150, func([]float64) { cancel() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBuildBuffer(t *testing.T) {
	left := sine(3000, 0.5)
	right := make([]float64, 3000)
	buf := audio.NewBuffer(44100, left, right)

	b := &Builder{Yield: noYield}
	peaks, err := b.BuildBuffer(context.Background(), buf, 30, nil)
	if err != nil {
		t.Fatalf("BuildBuffer: %v", err)
	}
	if peaks[0] == 0 {
		t.Error("BuildBuffer did not read the first channel")
	}

	_, err = b.BuildBuffer(context.Background(), audio.NewBuffer(44100), 30, nil)
	if !IsHardError(err) {
		t.Errorf("empty buffer err = %v, want a hard error", err)
	}
}

func TestIsHardError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), false},
		{"plain", errors.New("boom"), false},
		{"fetch", &source.FetchError{URL: "http://x", StatusCode: 404, Message: "HTTP Error: 404"}, true},
		{"wrapped fetch", fmt.Errorf("load: %w", &source.FetchError{Message: "nope"}), true},
		{"decode", &audio.DecodeError{Err: errors.New("bad header")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHardError(tt.err); got != tt.want {
				t.Errorf("IsHardError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		peaks []float64
		ok    bool
	}{
		{"valid", []float64{0, 0.5, 1}, true},
		{"empty", nil, false},
		{"too long", make([]float64, MaxBuckets+1), false},
		{"max length", make([]float64, MaxBuckets), true},
		{"negative", []float64{0.5, -0.1}, false},
		{"above one", []float64{1.01}, false},
		{"nan", []float64{math.NaN()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.peaks)
			if (err == nil) != tt.ok {
				t.Errorf("Validate = %v, want ok %v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrInvalidPeaks) {
				t.Errorf("err = %v, want ErrInvalidPeaks", err)
			}
		})
	}
}
