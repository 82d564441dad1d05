// Package audio provides audio decoding, processing contexts and the analyser
// node that feeds the audio scopes.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned when no native decoder recognises the input.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// Codec names recognised by the native decoders.
const (
	CodecWAV    = "wav"
	CodecMP3    = "mp3"
	CodecFLAC   = "flac"
	CodecVorbis = "vorbis"
)

// Reader wraps a beep decoder for streaming audio file reading
type Reader struct {
	stream beep.StreamSeekCloser
	format beep.Format
	file   *os.File
	frame  [][2]float64
}

// Metadata contains audio file metadata
type Metadata struct {
	Duration   float64 // seconds
	SampleRate int
	Channels   int
	Codec      string
	BitDepth   int
}

// OpenAudioFile opens an audio file for reading.
// Returns ErrUnsupportedFormat (wrapped) for containers the native decoders cannot read.
func OpenAudioFile(filename string) (*Reader, *Metadata, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}

	head := make([]byte, 16)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to rewind input file: %w", err)
	}

	codec := sniffCodec(head[:n], "")
	if codec == "" {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	stream, format, err := decodeStream(codec, f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}

	metadata := &Metadata{
		Duration:   format.SampleRate.D(stream.Len()).Seconds(),
		SampleRate: int(format.SampleRate),
		Channels:   format.NumChannels,
		Codec:      codec,
		BitDepth:   format.Precision * 8,
	}

	return &Reader{
		stream: stream,
		format: format,
		file:   f,
		frame:  make([][2]float64, 4096),
	}, metadata, nil
}

// ReadFrame reads the next block of decoded stereo samples.
// Returns nil when end of file is reached.
func (r *Reader) ReadFrame() ([][2]float64, error) {
	n, ok := r.stream.Stream(r.frame)
	if !ok || n == 0 {
		if err := r.stream.Err(); err != nil {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}
		return nil, nil // EOF
	}
	return r.frame[:n], nil
}

// Streamer exposes the underlying decoder for playback pipelines.
func (r *Reader) Streamer() beep.StreamSeekCloser {
	return r.stream
}

// Format returns the decoded stream format.
func (r *Reader) Format() beep.Format {
	return r.format
}

// Close releases all resources
func (r *Reader) Close() {
	if r.stream != nil {
		r.stream.Close()
		r.stream = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

// decodeStream dispatches to the beep decoder for codec.
func decodeStream(codec string, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	switch codec {
	case CodecWAV:
		return wav.Decode(rc)
	case CodecMP3:
		return mp3.Decode(rc)
	case CodecFLAC:
		return flac.Decode(rc)
	case CodecVorbis:
		return vorbis.Decode(rc)
	}
	return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, codec)
}

// sniffCodec identifies the codec from magic bytes, falling back to the
// declared content type. Returns "" when neither is conclusive.
func sniffCodec(head []byte, contentType string) string {
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return CodecWAV
	case bytes.HasPrefix(head, []byte("fLaC")):
		return CodecFLAC
	case bytes.HasPrefix(head, []byte("OggS")):
		return CodecVorbis
	case bytes.HasPrefix(head, []byte("ID3")):
		return CodecMP3
	}

	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(ct) {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return CodecWAV
	case "audio/mpeg", "audio/mp3":
		return CodecMP3
	case "audio/flac", "audio/x-flac":
		return CodecFLAC
	case "audio/ogg", "application/ogg", "audio/vorbis":
		return CodecVorbis
	}

	// Bare MPEG audio frame sync (no ID3 tag).
	if len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0 {
		return CodecMP3
	}
	return ""
}
