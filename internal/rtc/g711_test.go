package rtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMURoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 20000, -20000, 32000, -32000}

	encoded := EncodePCMU(samples)
	require.Len(t, encoded, len(samples))
	decoded := DecodePCMU(encoded)
	require.Len(t, decoded, len(samples))

	// G.711 is lossy; quantization error grows with amplitude but stays
	// within one step of the encoded segment.
	for i, want := range samples {
		got := decoded[i]
		diff := int(want) - int(got)
		if diff < 0 {
			diff = -diff
		}
		step := int(want)
		if step < 0 {
			step = -step
		}
		tolerance := step/16 + 64
		assert.LessOrEqualf(t, diff, tolerance, "sample %d: %d decoded to %d", i, want, got)
	}
}

func TestPCMUSilence(t *testing.T) {
	encoded := EncodePCMU(make([]int16, 8))
	decoded := DecodePCMU(encoded)
	for _, s := range decoded {
		assert.LessOrEqual(t, int(s), 8)
		assert.GreaterOrEqual(t, int(s), -8)
	}
}

func TestPCMADecodeRange(t *testing.T) {
	for b := 0; b < 256; b++ {
		s := DecodePCMA([]byte{byte(b)})
		require.Len(t, s, 1)
		// Any byte must decode into a valid sample, extremes included.
		assert.GreaterOrEqual(t, int(s[0]), -32768)
		assert.LessOrEqual(t, int(s[0]), 32767)
	}
}

func TestResample(t *testing.T) {
	pcm := []int16{0, 1000, 2000, 3000, 4000, 5000, 6000, 7000}

	same := Resample(pcm, 8000, 8000)
	assert.Equal(t, pcm, same)

	down := Resample(pcm, 16000, 8000)
	assert.Len(t, down, 4)

	up := Resample(pcm, 8000, 16000)
	assert.Len(t, up, 16)

	// Linear interpolation preserves monotonicity.
	for i := 1; i < len(up); i++ {
		assert.GreaterOrEqual(t, up[i], up[i-1])
	}
}

func TestResampleDegenerate(t *testing.T) {
	assert.Empty(t, Resample(nil, 8000, 16000))
	assert.Empty(t, Resample([]int16{}, 8000, 16000))

	// Invalid rates degrade to a straight copy.
	assert.Equal(t, []int16{1, 2}, Resample([]int16{1, 2}, 0, 8000))

	// A single sample survives any ratio.
	one := Resample([]int16{500}, 8000, 16000)
	require.Len(t, one, 2)
	assert.Equal(t, int16(500), one[0])
}
