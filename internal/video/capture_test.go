package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu     sync.Mutex
	device string
	reads  int
	closed bool
}

func (f *fakeSource) Read() (image.Image, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, nil, errors.New("source closed")
	}
	f.reads++
	return image.NewRGBA(image.Rect(0, 0, 32, 24)), func() {}, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeFactory hands out fakeSources and remembers each one.
type fakeFactory struct {
	mu      sync.Mutex
	sources []*fakeSource
	fail    bool
}

func (ff *fakeFactory) open(_ Settings, deviceID string) (FrameSource, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.fail {
		return nil, errors.New("no camera")
	}
	s := &fakeSource{device: deviceID}
	ff.sources = append(ff.sources, s)
	return s, nil
}

func TestClampQuality(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-1, 0.1},
		{0, 0.1},
		{0.05, 0.1},
		{0.1, 0.1},
		{0.5, 0.5},
		{1.0, 1.0},
		{3.7, 1.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ClampQuality(tt.in), 1e-9)
	}
}

func TestClampFrameRate(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{30, 30},
		{60, 60},
		{1001, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampFrameRate(tt.in))
	}
}

// A frame rate above 1000 used to truncate the ticker interval to zero
// and panic the capture goroutine on Start.
func TestStartSurvivesExtremeFrameRate(t *testing.T) {
	ff := &fakeFactory{}
	c := NewCapture(ff.open, DefaultSettings())
	c.UpdateSettings(Settings{FrameRate: 1001})
	assert.Equal(t, 60, c.Settings().FrameRate)

	frames := make(chan Frame, 16)
	c.OnFrame(func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	})

	require.NoError(t, c.Start())
	defer c.Stop()

	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered at clamped frame rate")
	}
}

func TestUpdateSettingsClampsQuality(t *testing.T) {
	c := NewCapture(nil, Settings{FrameRate: 5, Quality: 2.5})
	assert.InDelta(t, 1.0, c.Settings().Quality, 1e-9)

	c.UpdateSettings(Settings{Quality: 0.02})
	assert.InDelta(t, 0.1, c.Settings().Quality, 1e-9)

	c.UpdateSettings(Settings{Quality: 0.6})
	assert.InDelta(t, 0.6, c.Settings().Quality, 1e-9)
}

func TestCaptureDeliversFrames(t *testing.T) {
	ff := &fakeFactory{}
	c := NewCapture(ff.open, Settings{FrameRate: 50, Quality: 0.8, Width: 32, Height: 24})

	frames := make(chan Frame, 16)
	c.OnFrame(func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	})

	require.NoError(t, c.Start())
	defer c.Stop()
	assert.True(t, c.IsRunning())

	var got Frame
	select {
	case got = <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}

	assert.Equal(t, 32, got.Width)
	assert.Equal(t, 24, got.Height)
	assert.InDelta(t, 0.8, got.Quality, 1e-9)
	assert.False(t, got.CapturedAt.IsZero())

	img, err := jpeg.Decode(bytes.NewReader(got.JPEG))
	require.NoError(t, err, "frame payload must be valid JPEG")
	assert.Equal(t, 32, img.Bounds().Dx())
}

func TestStartTwiceIsNoop(t *testing.T) {
	ff := &fakeFactory{}
	c := NewCapture(ff.open, DefaultSettings())
	require.NoError(t, c.Start())
	require.NoError(t, c.Start())
	assert.Len(t, ff.sources, 1)
	require.NoError(t, c.Stop())
}

func TestStopClosesSource(t *testing.T) {
	ff := &fakeFactory{}
	c := NewCapture(ff.open, DefaultSettings())
	require.NoError(t, c.Start())
	require.NoError(t, c.Stop())

	assert.False(t, c.IsRunning())
	require.Len(t, ff.sources, 1)
	assert.True(t, ff.sources[0].isClosed())

	// Stopping again is harmless.
	assert.NoError(t, c.Stop())
}

func TestSnapshot(t *testing.T) {
	ff := &fakeFactory{}
	c := NewCapture(ff.open, Settings{FrameRate: 1, Quality: 0.5, Width: 32, Height: 24})

	// Without a source a snapshot has nothing to read.
	_, err := c.Snapshot(context.Background())
	assert.Error(t, err)

	require.NoError(t, c.Start())
	defer c.Stop()

	frame, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, frame.JPEG)
	assert.Equal(t, 32, frame.Width)
}

func TestSwitchDeviceWhileRunning(t *testing.T) {
	ff := &fakeFactory{}
	c := NewCapture(ff.open, Settings{FrameRate: 50, Quality: 0.8})

	frames := make(chan Frame, 16)
	c.OnFrame(func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	})

	require.NoError(t, c.Start())
	defer c.Stop()

	require.NoError(t, c.SwitchDevice("cam2"))
	require.Len(t, ff.sources, 2)
	assert.True(t, ff.sources[0].isClosed(), "old source must be released")
	assert.Equal(t, "cam2", ff.sources[1].device)
	assert.True(t, c.IsRunning())

	// Frames keep flowing from the new source.
	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame after device switch")
	}
}

func TestSwitchDeviceWhileStopped(t *testing.T) {
	ff := &fakeFactory{}
	c := NewCapture(ff.open, DefaultSettings())
	require.NoError(t, c.SwitchDevice("cam3"))
	assert.Empty(t, ff.sources, "no source opened while stopped")

	require.NoError(t, c.Start())
	defer c.Stop()
	require.Len(t, ff.sources, 1)
	assert.Equal(t, "cam3", ff.sources[0].device)
}

func TestSwitchDeviceFailureStopsCapture(t *testing.T) {
	ff := &fakeFactory{}
	c := NewCapture(ff.open, Settings{FrameRate: 50, Quality: 0.8})
	require.NoError(t, c.Start())

	ff.mu.Lock()
	ff.fail = true
	ff.mu.Unlock()

	assert.Error(t, c.SwitchDevice("gone"))
	assert.False(t, c.IsRunning())
}
