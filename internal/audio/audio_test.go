package audio

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestDecode_WAV(t *testing.T) {
	data := generateTestWAV(t, TestAudioOptions{
		DurationSecs: 1.0,
		SampleRate:   44100,
		ToneFreq:     440,
		ToneLevel:    -6.0,
	})

	dec := &Decoder{} // no FFmpeg fallback
	buf, err := dec.Decode(context.Background(), data, "audio/wav")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if buf.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", buf.SampleRate)
	}
	if buf.NumChannels() != 1 {
		t.Errorf("NumChannels = %d, want 1", buf.NumChannels())
	}
	if buf.Length() != 44100 {
		t.Errorf("Length = %d, want 44100", buf.Length())
	}

	var peak float64
	for _, s := range buf.Channel(0) {
		peak = math.Max(peak, math.Abs(s))
	}
	want := math.Pow(10, -6.0/20)
	if math.Abs(peak-want) > 0.01 {
		t.Errorf("peak = %.4f, want ~%.4f", peak, want)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		contentType string
		wantFormat  bool // error wraps ErrUnsupportedFormat
	}{
		{"empty", nil, "audio/wav", false},
		{"malformed wav", []byte("RIFF\x00\x00\x00\x00WAVEjunkjunk"), "", false},
		{"declared wav, garbage body", []byte("definitely not audio"), "audio/wav", false},
		{"unknown format", []byte("plain text body"), "application/octet-stream", true},
	}

	dec := &Decoder{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dec.Decode(context.Background(), tt.data, tt.contentType)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err = %v, want *DecodeError", err)
			}
			if got := errors.Is(err, ErrUnsupportedFormat); got != tt.wantFormat {
				t.Errorf("errors.Is(ErrUnsupportedFormat) = %v, want %v", got, tt.wantFormat)
			}
		})
	}
}

func TestDecode_Cancelled(t *testing.T) {
	data := generateTestWAV(t, TestAudioOptions{DurationSecs: 0.5, ToneFreq: 440, ToneLevel: -12})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Decoder{}).Decode(ctx, data, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestOpenAudioFile(t *testing.T) {
	path := generateTestAudio(t, TestAudioOptions{DurationSecs: 2.0, SampleRate: 48000, ToneFreq: 1000, ToneLevel: -20})

	r, meta, err := OpenAudioFile(path)
	if err != nil {
		t.Fatalf("OpenAudioFile: %v", err)
	}
	defer r.Close()

	if meta.Codec != CodecWAV {
		t.Errorf("Codec = %q, want %q", meta.Codec, CodecWAV)
	}
	if meta.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", meta.SampleRate)
	}
	if math.Abs(meta.Duration-2.0) > 0.001 {
		t.Errorf("Duration = %.3f, want 2.0", meta.Duration)
	}
	if meta.BitDepth != 16 {
		t.Errorf("BitDepth = %d, want 16", meta.BitDepth)
	}

	total := 0
	for {
		frame, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if frame == nil {
			break
		}
		total += len(frame)
	}
	if total != 96000 {
		t.Errorf("read %d frames, want 96000", total)
	}
}

func TestSniffCodec(t *testing.T) {
	tests := []struct {
		name        string
		head        []byte
		contentType string
		want        string
	}{
		{"wav magic", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), "", CodecWAV},
		{"flac magic", []byte("fLaC\x00\x00\x00\x22"), "", CodecFLAC},
		{"ogg magic", []byte("OggS\x00\x02"), "", CodecVorbis},
		{"id3 tag", []byte("ID3\x04\x00"), "", CodecMP3},
		{"mpeg frame sync", []byte{0xFF, 0xFB, 0x90, 0x64}, "", CodecMP3},
		{"content type with params", []byte("????"), "audio/mpeg; charset=binary", CodecMP3},
		{"magic wins over content type", []byte("fLaC"), "audio/wav", CodecFLAC},
		{"video container", []byte("\x00\x00\x00\x20ftypisom"), "video/mp4", ""},
		{"nothing", nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffCodec(tt.head, tt.contentType); got != tt.want {
				t.Errorf("sniffCodec() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSystem_Limit(t *testing.T) {
	sys := NewSystem(2)

	a, err := sys.Open()
	if err != nil {
		t.Fatalf("Open a: %v", err)
	}
	b, err := sys.Open()
	if err != nil {
		t.Fatalf("Open b: %v", err)
	}
	if _, err := sys.Open(); !errors.Is(err, ErrContextLimit) {
		t.Fatalf("third Open err = %v, want ErrContextLimit", err)
	}

	// A suspended context still holds its slot.
	if err := b.Suspend(); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if _, err := sys.Open(); !errors.Is(err, ErrContextLimit) {
		t.Fatalf("Open with suspended context err = %v, want ErrContextLimit", err)
	}

	a.Close()
	a.Close() // second close must not release another slot
	if got := sys.OpenCount(); got != 1 {
		t.Errorf("OpenCount = %d, want 1", got)
	}

	c, err := sys.Open()
	if err != nil {
		t.Fatalf("Open after Close: %v", err)
	}
	if c.ID() == a.ID() || c.ID() == b.ID() {
		t.Errorf("context ID %d reused", c.ID())
	}
}

func TestContext_States(t *testing.T) {
	sys := NewSystem(0)
	if sys.Limit() != DefaultContextLimit {
		t.Errorf("Limit = %d, want %d", sys.Limit(), DefaultContextLimit)
	}

	c, err := sys.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.State() != ContextRunning {
		t.Errorf("new context state = %v, want running", c.State())
	}
	c.Suspend()
	if c.State() != ContextSuspended {
		t.Errorf("state = %v, want suspended", c.State())
	}
	c.Resume()
	if c.State() != ContextRunning {
		t.Errorf("state = %v, want running", c.State())
	}
	c.Close()
	if err := c.Resume(); !errors.Is(err, ErrContextClosed) {
		t.Errorf("Resume after Close err = %v, want ErrContextClosed", err)
	}
	if _, err := c.NewAnalyser(AnalyserOptions{}); !errors.Is(err, ErrContextClosed) {
		t.Errorf("NewAnalyser after Close err = %v, want ErrContextClosed", err)
	}
}

func newTestAnalyser(t *testing.T, opts AnalyserOptions) (*Analyser, *Context) {
	t.Helper()
	c, err := NewSystem(1).Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	a, err := c.NewAnalyser(opts)
	if err != nil {
		t.Fatalf("NewAnalyser: %v", err)
	}
	return a, c
}

func TestNewAnalyser_Options(t *testing.T) {
	tests := []struct {
		name    string
		opts    AnalyserOptions
		wantErr bool
	}{
		{"defaults", AnalyserOptions{}, false},
		{"explicit", AnalyserOptions{FFTSize: 2048, Smoothing: 0.8}, false},
		{"not power of two", AnalyserOptions{FFTSize: 500}, true},
		{"too small", AnalyserOptions{FFTSize: 16}, true},
		{"smoothing one", AnalyserOptions{Smoothing: 1}, true},
		{"inverted range", AnalyserOptions{MinDecibels: -20, MaxDecibels: -40}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := NewSystem(1).Open()
			defer c.Close()
			_, err := c.NewAnalyser(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAnalyser() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	a, _ := newTestAnalyser(t, AnalyserOptions{})
	if a.FFTSize() != DefaultFFTSize || a.FrequencyBinCount() != DefaultFFTSize/2 {
		t.Errorf("defaults: FFTSize %d, bins %d", a.FFTSize(), a.FrequencyBinCount())
	}
}

func TestAnalyser_Peak(t *testing.T) {
	a, c := newTestAnalyser(t, AnalyserOptions{})

	a.Process([][2]float64{{0.2, 0.2}, {-0.8, -0.8}, {0.4, 0.4}})
	if got := a.Peak(); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("Peak = %v, want 0.8", got)
	}
	if got := a.Peak(); got != 0 {
		t.Errorf("Peak after reset = %v, want 0", got)
	}

	a.Process([][2]float64{{1.5, 1.5}})
	if got := a.Peak(); got != 1 {
		t.Errorf("Peak of overdriven input = %v, want clamp to 1", got)
	}

	c.Suspend()
	a.Process([][2]float64{{0.9, 0.9}})
	if got := a.Peak(); got != 0 {
		t.Errorf("suspended context captured peak %v", got)
	}
}

func TestAnalyser_ByteTimeDomainData(t *testing.T) {
	a, _ := newTestAnalyser(t, AnalyserOptions{FFTSize: 32})

	dst := make([]byte, 32)
	a.ByteTimeDomainData(dst)
	for i, v := range dst {
		if v != 128 {
			t.Fatalf("silence dst[%d] = %d, want 128", i, v)
		}
	}

	a.Process([][2]float64{{1, 1}, {-1, -1}})
	a.ByteTimeDomainData(dst)
	if dst[30] != 255 || dst[31] != 0 {
		t.Errorf("newest samples = %d, %d; want 255, 0", dst[30], dst[31])
	}
}

func TestAnalyser_ByteFrequencyData_Tone(t *testing.T) {
	const (
		n    = 512
		rate = 44100.0
		bin  = 32
	)
	a, _ := newTestAnalyser(t, AnalyserOptions{FFTSize: n, Smoothing: 0})

	// Tone centred exactly on one bin so the window leaks only into its
	// immediate neighbours.
	freq := bin * rate / n
	samples := make([][2]float64, n)
	for i := range samples {
		v := 0.01 * math.Sin(2*math.Pi*freq*float64(i)/rate)
		samples[i] = [2]float64{v, v}
	}
	a.Process(samples)

	dst := make([]byte, a.FrequencyBinCount())
	a.ByteFrequencyData(dst)

	loudest := 0
	for k := range dst {
		if dst[k] > dst[loudest] {
			loudest = k
		}
	}
	if loudest != bin {
		t.Errorf("loudest bin = %d, want %d", loudest, bin)
	}
	if dst[bin] == 0 || dst[bin] == 255 {
		t.Errorf("tone bin byte = %d, want within the decibel range", dst[bin])
	}
	if dst[200] != 0 {
		t.Errorf("far bin byte = %d, want 0", dst[200])
	}
}
