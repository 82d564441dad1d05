package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"time"

	"github.com/gopxl/beep/v2"
)

// DecodeError reports audio bytes that could not be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Buffer holds fully decoded PCM samples, one slice per channel.
type Buffer struct {
	SampleRate int
	channels   [][]float64
}

// NewBuffer builds a Buffer from per-channel sample slices. All channels must
// have the same length.
func NewBuffer(sampleRate int, channels ...[]float64) *Buffer {
	return &Buffer{SampleRate: sampleRate, channels: channels}
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int { return len(b.channels) }

// Length returns the number of sample frames.
func (b *Buffer) Length() int {
	if len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// Duration returns the playback duration.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Length()) / float64(b.SampleRate) * float64(time.Second))
}

// Channel returns the samples of channel i, or nil when out of range.
func (b *Buffer) Channel(i int) []float64 {
	if i < 0 || i >= len(b.channels) {
		return nil
	}
	return b.channels[i]
}

// Streamer plays the buffer back as a seekable beep stream.
func (b *Buffer) Streamer() beep.StreamSeekCloser {
	return &bufferStreamer{buf: b}
}

// Format describes the buffer as a beep format.
func (b *Buffer) Format() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(b.SampleRate),
		NumChannels: max(1, min(2, b.NumChannels())),
		Precision:   4,
	}
}

type bufferStreamer struct {
	buf *Buffer
	pos int
}

func (s *bufferStreamer) Stream(samples [][2]float64) (int, bool) {
	length := s.buf.Length()
	if s.pos >= length {
		return 0, false
	}
	left := s.buf.Channel(0)
	right := left
	if s.buf.NumChannels() > 1 {
		right = s.buf.Channel(1)
	}
	n := min(len(samples), length-s.pos)
	for i := range n {
		samples[i][0] = left[s.pos+i]
		samples[i][1] = right[s.pos+i]
	}
	s.pos += n
	return n, true
}

func (s *bufferStreamer) Err() error    { return nil }
func (s *bufferStreamer) Len() int      { return s.buf.Length() }
func (s *bufferStreamer) Position() int { return s.pos }
func (s *bufferStreamer) Close() error  { return nil }

func (s *bufferStreamer) Seek(p int) error {
	if p < 0 || p > s.buf.Length() {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, s.buf.Length())
	}
	s.pos = p
	return nil
}

// Decoder turns encoded media bytes into a Buffer. Formats the native beep
// decoders cannot read (video containers, AAC) are transcoded through FFmpeg
// when FFmpegBin is set.
type Decoder struct {
	FFmpegBin  string // empty disables the FFmpeg fallback
	SampleRate int    // output rate for the FFmpeg fallback. Default: 44100.
}

// DefaultDecoder uses the ffmpeg binary found on PATH for the fallback.
var DefaultDecoder = &Decoder{FFmpegBin: "ffmpeg"}

// Decode decodes data using DefaultDecoder.
func Decode(ctx context.Context, data []byte, contentType string) (*Buffer, error) {
	return DefaultDecoder.Decode(ctx, data, contentType)
}

// Decode decodes data fully into memory. Malformed or unsupported input
// returns a *DecodeError; cancellation returns ctx.Err().
func (d *Decoder) Decode(ctx context.Context, data []byte, contentType string) (*Buffer, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: errors.New("empty input")}
	}

	head := data[:min(len(data), 16)]
	codec := sniffCodec(head, contentType)
	if codec == "" {
		if d.FFmpegBin == "" {
			return nil, &DecodeError{Err: fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, contentType)}
		}
		return d.transcode(ctx, data)
	}

	stream, format, err := decodeStream(codec, io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	defer stream.Close()

	frames := stream.Len()
	left := make([]float64, 0, max(frames, 0))
	var right []float64
	stereo := format.NumChannels > 1
	if stereo {
		right = make([]float64, 0, max(frames, 0))
	}

	block := make([][2]float64, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, ok := stream.Stream(block)
		for i := range n {
			left = append(left, block[i][0])
			if stereo {
				right = append(right, block[i][1])
			}
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, &DecodeError{Err: err}
	}

	if stereo {
		return NewBuffer(int(format.SampleRate), left, right), nil
	}
	return NewBuffer(int(format.SampleRate), left), nil
}

// transcode pipes data through ffmpeg to interleaved stereo float32 PCM.
func (d *Decoder) transcode(ctx context.Context, data []byte) (*Buffer, error) {
	rate := d.SampleRate
	if rate <= 0 {
		rate = 44100
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-vn", "-ac", "2", "-ar", fmt.Sprint(rate),
		"-f", "f32le", "-acodec", "pcm_f32le",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, d.FFmpegBin, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return nil, &DecodeError{Err: fmt.Errorf("ffmpeg: %v: %s", err, msg)}
		}
		return nil, &DecodeError{Err: fmt.Errorf("ffmpeg: %w", err)}
	}

	pcm := stdout.Bytes()
	frames := len(pcm) / 8
	if frames == 0 {
		return nil, &DecodeError{Err: errors.New("ffmpeg produced no audio samples")}
	}
	left := make([]float64, frames)
	right := make([]float64, frames)
	for i := range frames {
		left[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*8:])))
		right[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*8+4:])))
	}
	return NewBuffer(rate, left, right), nil
}
