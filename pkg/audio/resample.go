package audio

// ResampleLinear resamples PCM samples between rates via integer-
// indexed linear interpolation. No anti-aliasing. Identity when the
// rates match.
func ResampleLinear(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	if len(samples) == 0 {
		return nil
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]int16, 0, outLen)

	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		var sample int16
		if idx+1 < len(samples) {
			a := float64(samples[idx])
			b := float64(samples[idx+1])
			sample = int16(a + (b-a)*frac)
		} else {
			last := idx
			if last >= len(samples) {
				last = len(samples) - 1
			}
			sample = samples[last]
		}
		out = append(out, sample)
	}
	return out
}

// DecimateAverage2x halves the sample rate by averaging adjacent
// pairs, the anti-aliased alternative to ResampleLinear at an exact
// 2:1 ratio (where ResampleLinear's fractional part is always zero
// and it degenerates to picking every other sample). An odd trailing
// sample is kept as-is.
func DecimateAverage2x(samples []int16) []int16 {
	out := make([]int16, 0, (len(samples)+1)/2)
	for i := 0; i+1 < len(samples); i += 2 {
		avg := (int32(samples[i]) + int32(samples[i+1])) / 2
		out = append(out, int16(avg))
	}
	if len(samples)%2 == 1 {
		out = append(out, samples[len(samples)-1])
	}
	return out
}

// DownmixToMono averages interleaved multi-channel samples into mono.
func DownmixToMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	n := len(samples) / channels
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		var sum int32
		frame := samples[i*channels : i*channels+channels]
		for _, s := range frame {
			sum += int32(s)
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}
