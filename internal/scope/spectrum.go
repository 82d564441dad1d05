package scope

import "math"

// SpectrumRow maps frequency bin i of n onto a display row (0 = top) of a
// column height rows tall. Low bins spread over most of the height.
func SpectrumRow(i, n, height int) int {
	if n <= 0 || height <= 0 {
		return 0
	}
	pos := 1 - float64(i)/float64(n)
	return int(math.Round(pos * pos * float64(height-1)))
}

// SpectrumColumn reduces a byte spectrum to one intensity in [0, 1] per
// display row, keeping the loudest bin that lands on each row. Rows no bin
// maps onto take the value of the row below them.
func SpectrumColumn(freq []byte, height int) []float64 {
	if height <= 0 {
		return nil
	}
	col := make([]float64, height)
	hit := make([]bool, height)
	for i, v := range freq {
		row := SpectrumRow(i, len(freq), height)
		col[row] = math.Max(col[row], float64(v)/255)
		hit[row] = true
	}
	for row := height - 2; row >= 0; row-- {
		if !hit[row] {
			col[row] = col[row+1]
		}
	}
	return col
}

// HumBin returns the spectrum bin holding mainsHz for an analyser of
// fftSize at sampleRate, or -1 when it falls outside the spectrum.
func HumBin(sampleRate, fftSize, mainsHz int) int {
	if sampleRate <= 0 || fftSize <= 0 || mainsHz <= 0 {
		return -1
	}
	bin := int(math.Round(float64(mainsHz) * float64(fftSize) / float64(sampleRate)))
	if bin >= fftSize/2 {
		return -1
	}
	return bin
}

// BinFrequency returns the centre frequency in Hz of spectrum bin i.
func BinFrequency(i, sampleRate, fftSize int) float64 {
	return float64(i) * float64(sampleRate) / float64(fftSize)
}

// HumProminent reports whether bin stands out from the bins just above it:
// loud in its own right and well clear of their mean.
func HumProminent(freq []byte, bin int) bool {
	if bin < 0 || bin >= len(freq) || freq[bin] < 96 {
		return false
	}
	lo, hi := bin+2, min(bin+7, len(freq))
	if lo >= hi {
		return false
	}
	var sum int
	for _, v := range freq[lo:hi] {
		sum += int(v)
	}
	return int(freq[bin])-sum/(hi-lo) >= 32
}
