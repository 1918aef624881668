package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbridge/voxbridge/internal/errs"
)

func TestNewCaptureDefaults(t *testing.T) {
	c := NewCapture(DefaultSettings(), 0, 0)
	assert.Equal(t, 50, c.frameMs)
	assert.Equal(t, 100, c.chunkMs)

	// A chunk interval shorter than the frame interval is widened.
	c = NewCapture(DefaultSettings(), 50, 10)
	assert.Equal(t, 100, c.chunkMs)
}

func TestUpdateSettingsAdjustsGate(t *testing.T) {
	c := NewCapture(DefaultSettings(), 50, 100)
	require.InDelta(t, 0.2, c.gate.Threshold(), 1e-9)

	c.UpdateSettings(Settings{VADThreshold: 0.5})
	assert.InDelta(t, 0.5, c.gate.Threshold(), 1e-9)
	assert.InDelta(t, 0.5, c.Settings().VADThreshold, 1e-9)

	// Zero-valued numeric fields leave the current values alone.
	c.UpdateSettings(Settings{})
	assert.Equal(t, 24000, c.Settings().SampleRate)
	assert.Equal(t, 1, c.Settings().Channels)
}

func TestEmitChunkGatesSilence(t *testing.T) {
	c := NewCapture(DefaultSettings(), 50, 100)
	var chunks []Chunk
	c.OnChunk(func(ch Chunk) { chunks = append(chunks, ch) })

	silence := make([]int16, 2400)
	c.emitChunk(silence, 24000)
	assert.Empty(t, chunks, "silent chunk must not reach the handler")

	voice := make([]int16, 2400)
	for i := range voice {
		if i%2 == 0 {
			voice[i] = 15000
		} else {
			voice[i] = -15000
		}
	}
	c.emitChunk(voice, 24000)
	require.Len(t, chunks, 1)
	assert.Equal(t, 24000, chunks[0].SampleRate)
	assert.Equal(t, 100, chunks[0].DurationMs)
	assert.Greater(t, chunks[0].RMS, 0.2)
}

func TestStartRecordingRequiresInitialize(t *testing.T) {
	c := NewCapture(DefaultSettings(), 50, 100)
	err := c.StartRecording()
	require.Error(t, err)
	assert.Equal(t, errs.KindRecording, errs.KindOf(err))
	assert.False(t, c.IsRecording())
}

func TestStopRecordingWhenIdle(t *testing.T) {
	c := NewCapture(DefaultSettings(), 50, 100)
	assert.NoError(t, c.StopRecording())
}
