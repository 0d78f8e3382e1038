package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// peakHeadroomDB lets isolated clicks above the RMS threshold still count
// as silence.
const peakHeadroomDB = 6

type SilenceMetrics struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// IsSilentWAV reports whether the WAV file at path stays below
// thresholdDBFS.
func IsSilentWAV(path string, thresholdDBFS float64) (bool, SilenceMetrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, SilenceMetrics{}, fmt.Errorf("open wav: %w", err)
	}
	return IsSilent(data, thresholdDBFS)
}

// IsSilent reports whether the WAV audio in data stays below thresholdDBFS.
// Audio without samples is silent.
func IsSilent(data []byte, thresholdDBFS float64) (bool, SilenceMetrics, error) {
	metrics, err := Measure(data)
	if err != nil {
		return false, SilenceMetrics{}, err
	}
	if metrics.Samples == 0 || math.IsInf(metrics.PeakdBFS, -1) {
		return true, metrics, nil
	}
	return metrics.RMSdBFS <= thresholdDBFS && metrics.PeakdBFS <= thresholdDBFS+peakHeadroomDB, metrics, nil
}

// Measure returns the RMS and peak level of the WAV audio in data.
func Measure(data []byte) (SilenceMetrics, error) {
	format, samples, err := parseWAV(data)
	if err != nil {
		return SilenceMetrics{}, err
	}

	width := format.bytesPerSample()
	var (
		peak       float64
		sumSquares float64
		count      int64
	)
	for i := 0; i+width <= len(samples); i += width {
		value := decodeSample(samples[i:i+width], format)
		peak = math.Max(peak, math.Abs(value))
		sumSquares += value * value
		count++
	}

	if count == 0 {
		return SilenceMetrics{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}, nil
	}
	return SilenceMetrics{
		RMSdBFS:  amplitudeToDBFS(math.Sqrt(sumSquares / float64(count))),
		PeakdBFS: amplitudeToDBFS(peak),
		Samples:  count,
	}, nil
}

// decodeSample scales one sample to [-1, 1]. format has been validated.
func decodeSample(sample []byte, format wavFormat) float64 {
	if format.encoding == formatFloat {
		if format.bitsPerSample == 64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(sample))
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(sample)))
	}

	switch format.bitsPerSample {
	case 8:
		return (float64(sample[0]) - 128) / 128
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(sample))) / 32768
	case 24:
		v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608
	default:
		return float64(int32(binary.LittleEndian.Uint32(sample))) / 2147483648
	}
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(amplitude)
}
