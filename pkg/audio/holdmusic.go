package audio

import (
	"fmt"
	"os"
)

// LoadWavAsMulaw reads a WAV file of arbitrary format (8/16/24-bit
// integer or 32-bit float, any channel count, any sample rate),
// downmixes to mono, resamples to 8kHz, scales by volume, and encodes
// to mu-law, ready for wire playback.
func LoadWavAsMulaw(path string, volume float64) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hold music: reading %s: %w", path, err)
	}

	samples, format, err := ReadWav(data)
	if err != nil {
		return nil, fmt.Errorf("hold music: %w", err)
	}

	mono := DownmixToMono(samples, format.Channels)
	resampled := ResampleLinear(mono, format.SampleRate, SampleRate)

	scaled := make([]int16, len(resampled))
	for i, s := range resampled {
		v := float64(s) * volume
		scaled[i] = clampFloatToInt16Wide(v)
	}

	return EncodeMulaw(scaled), nil
}
