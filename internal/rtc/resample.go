package rtc

// Resample converts PCM from one sample rate to another by linear
// interpolation. Good enough for speech headed into G.711; anything
// fancier belongs in the backend.
func Resample(pcm []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(pcm) == 0 {
		out := make([]int16, len(pcm))
		copy(out, pcm)
		return out
	}

	outLen := len(pcm) * toRate / fromRate
	if outLen == 0 {
		return []int16{}
	}
	out := make([]int16, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(pcm)-1 {
			out[i] = pcm[len(pcm)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(pcm[idx])
		b := float64(pcm[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}
