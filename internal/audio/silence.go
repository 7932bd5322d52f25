package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

const (
	pcmFormat     = 1
	readChunkSize = 8192
)

type SilenceMetrics struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// IsSilentWAV reports whether the signal stays under thresholdDBFS. The
// peak may exceed the threshold by 6 dB to tolerate isolated clicks.
func IsSilentWAV(path string, thresholdDBFS float64) (bool, SilenceMetrics, error) {
	metrics, err := analyzeWAV(path)
	if err != nil {
		return false, SilenceMetrics{}, err
	}

	if metrics.Samples == 0 {
		return true, metrics, nil
	}

	if math.IsInf(metrics.RMSdBFS, -1) && math.IsInf(metrics.PeakdBFS, -1) {
		return true, metrics, nil
	}

	peakGate := thresholdDBFS + 6
	return metrics.RMSdBFS <= thresholdDBFS && metrics.PeakdBFS <= peakGate, metrics, nil
}

// Duration returns the playback length of a WAV file.
func Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, ErrInvalidWAV
	}

	if err := dec.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	bytesPerSecond := int64(dec.SampleRate) * int64(dec.NumChans) * int64(dec.BitDepth) / 8
	if bytesPerSecond == 0 {
		return 0, ErrUnsupportedWAV
	}
	// The data chunk length excludes the RIFF header.
	return time.Duration(dec.PCMLen()) * time.Second / time.Duration(bytesPerSecond), nil
}

func analyzeWAV(path string) (SilenceMetrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return SilenceMetrics{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return SilenceMetrics{}, ErrInvalidWAV
	}
	if dec.WavAudioFormat != pcmFormat {
		return SilenceMetrics{}, ErrUnsupportedWAV
	}

	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return SilenceMetrics{}, ErrUnsupportedWAV
	}

	fullScale := float64(int64(1) << (bitDepth - 1))
	buf := &goaudio.IntBuffer{
		Data:   make([]int, readChunkSize),
		Format: dec.Format(),
	}

	var (
		peak       float64
		sumSquares float64
		samples    int64
	)

	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return SilenceMetrics{}, fmt.Errorf("read wav data: %w", err)
		}
		if n == 0 {
			break
		}

		for _, raw := range buf.Data[:n] {
			value := float64(raw)
			if bitDepth == 8 {
				// 8-bit PCM is unsigned with a 128 midpoint.
				value -= 128
			}
			value /= fullScale

			abs := math.Abs(value)
			if abs > peak {
				peak = abs
			}
			sumSquares += value * value
			samples++
		}
	}

	if samples == 0 {
		return SilenceMetrics{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1), Samples: 0}, nil
	}

	rms := math.Sqrt(sumSquares / float64(samples))
	return SilenceMetrics{
		RMSdBFS:  amplitudeToDBFS(rms),
		PeakdBFS: amplitudeToDBFS(peak),
		Samples:  samples,
	}, nil
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
