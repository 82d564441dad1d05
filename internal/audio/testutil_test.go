package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// TestAudioOptions configures the synthetic audio to generate
type TestAudioOptions struct {
	DurationSecs float64 // Total duration in seconds
	SampleRate   int     // Sample rate (default: 44100)
	ToneFreq     float64 // Sine wave frequency in Hz (0 = no tone)
	ToneLevel    float64 // Tone level in dBFS (e.g., -6.0)
}

// generateTestPCM renders the configured tone as mono 16-bit samples.
func generateTestPCM(opts TestAudioOptions) ([]int16, int) {
	if opts.SampleRate == 0 {
		opts.SampleRate = 44100
	}
	if opts.DurationSecs == 0 {
		opts.DurationSecs = 1.0
	}

	totalSamples := int(opts.DurationSecs * float64(opts.SampleRate))
	samples := make([]int16, totalSamples)

	toneAmp := 0.0
	if opts.ToneFreq > 0 && opts.ToneLevel < 0 {
		toneAmp = math.Pow(10.0, opts.ToneLevel/20.0)
	}

	for i := range totalSamples {
		t := float64(i) / float64(opts.SampleRate)
		samples[i] = int16(toneAmp * math.Sin(2.0*math.Pi*opts.ToneFreq*t) * math.MaxInt16)
	}
	return samples, opts.SampleRate
}

// generateTestWAV returns a synthetic mono WAV file as bytes.
func generateTestWAV(t *testing.T, opts TestAudioOptions) []byte {
	t.Helper()
	samples, rate := generateTestPCM(opts)
	var buf bytes.Buffer
	if err := writeWAV(&buf, samples, rate); err != nil {
		t.Fatalf("failed to write WAV data: %v", err)
	}
	return buf.Bytes()
}

// generateTestAudio writes a synthetic WAV file under t.TempDir and returns its path.
func generateTestAudio(t *testing.T, opts TestAudioOptions) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "avscope-test.wav")
	if err := os.WriteFile(path, generateTestWAV(t, opts), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// writeWAV writes a mono 16-bit WAV stream
func writeWAV(w *bytes.Buffer, samples []int16, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)

	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := len(samples) * 2
	fileSize := 36 + dataSize

	w.WriteString("RIFF")
	if err := binary.Write(w, binary.LittleEndian, uint32(fileSize)); err != nil {
		return err
	}
	w.WriteString("WAVE")

	w.WriteString("fmt ")
	header := []any{
		uint32(16), // Subchunk size
		uint16(1),  // Audio format (PCM)
		uint16(numChannels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitsPerSample),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	w.WriteString("data")
	if err := binary.Write(w, binary.LittleEndian, uint32(dataSize)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, samples)
}
