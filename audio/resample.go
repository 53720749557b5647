package audio

// Resample converts samples from inRate to outRate using linear
// interpolation. When the rates are equal the input is returned as-is.
//
// This is not an anti-aliasing resampler: downsampling by a large factor
// will alias. The Realtime API consumes 24 kHz mono and typical device rates
// are 44.1/48 kHz, where the artifacts are acceptable for speech.
func Resample(samples []float32, inRate, outRate int) []float32 {
	if inRate == outRate {
		return samples
	}

	ratio := float64(inRate) / float64(outRate)
	outLen := len(samples) * outRate / inRate
	out := make([]float32, outLen)

	for i := range out {
		pos := float64(i) * ratio
		lo := int(pos)
		hi := lo + 1
		if hi >= len(samples) {
			hi = len(samples) - 1
		}
		frac := float32(pos - float64(lo))
		out[i] = samples[lo]*(1-frac) + samples[hi]*frac
	}
	return out
}
