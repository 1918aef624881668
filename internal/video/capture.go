package video

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"math"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/internal/errs"
	"github.com/voxbridge/voxbridge/pkg/logger"
)

// Settings is the live-mutable video configuration.
type Settings struct {
	FrameRate int     `json:"frame_rate"`
	Quality   float64 `json:"quality"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

// ClampQuality bounds a JPEG quality factor to [0.1, 1.0].
func ClampQuality(q float64) float64 {
	return math.Max(0.1, math.Min(1.0, q))
}

// ClampFrameRate bounds a frame rate to [1, 60] fps. The capture ticker
// needs a positive interval, and nothing upstream consumes faster video.
func ClampFrameRate(fps int) int {
	if fps < 1 {
		return 1
	}
	if fps > 60 {
		return 60
	}
	return fps
}

func DefaultSettings() Settings {
	return Settings{FrameRate: 5, Quality: 0.8, Width: 640, Height: 480}
}

// Frame is one encoded capture delivered to the frame handler.
type Frame struct {
	JPEG       []byte
	Width      int
	Height     int
	Quality    float64
	CapturedAt time.Time
}

// Capture reads camera frames on a fixed interval (1000/frameRate ms)
// and encodes each as JPEG at the configured quality. Frame reads and
// device switches serialize on one mutex, so a capture can never see a
// half-replaced source.
type Capture struct {
	factory SourceFactory

	settingsMu sync.RWMutex
	settings   Settings

	mu       sync.Mutex
	source   FrameSource
	deviceID string
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	onFrame func(Frame)
}

// NewCapture builds the service; factory opens camera sources (tests
// inject a fake).
func NewCapture(factory SourceFactory, settings Settings) *Capture {
	settings.Quality = ClampQuality(settings.Quality)
	if settings.FrameRate <= 0 {
		settings.FrameRate = 5
	}
	settings.FrameRate = ClampFrameRate(settings.FrameRate)
	return &Capture{factory: factory, settings: settings}
}

// OnFrame registers the per-frame callback.
func (c *Capture) OnFrame(fn func(Frame)) { c.onFrame = fn }

// Settings returns a copy of the current settings.
func (c *Capture) Settings() Settings {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return c.settings
}

// UpdateSettings mutates settings live; quality is clamped on every
// update and applies to the next encode. Frame-rate changes apply on
// the next Start.
func (c *Capture) UpdateSettings(s Settings) {
	c.settingsMu.Lock()
	if s.FrameRate > 0 {
		c.settings.FrameRate = ClampFrameRate(s.FrameRate)
	}
	if s.Quality != 0 {
		c.settings.Quality = ClampQuality(s.Quality)
	}
	if s.Width > 0 {
		c.settings.Width = s.Width
	}
	if s.Height > 0 {
		c.settings.Height = s.Height
	}
	c.settingsMu.Unlock()
}

// Start acquires the camera and runs the capture ticker.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	source, err := c.factory(c.Settings(), c.deviceID)
	if err != nil {
		return err
	}
	c.source = source
	c.stopCh = make(chan struct{})
	c.running = true
	interval := time.Second / time.Duration(ClampFrameRate(c.Settings().FrameRate))
	c.wg.Add(1)
	go c.captureLoop(interval, c.stopCh)
	return nil
}

// Stop halts the ticker and closes the camera tracks.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return nil
	}
	err := c.source.Close()
	c.source = nil
	if err != nil {
		return errs.New(errs.KindVideo, "stop", err)
	}
	return nil
}

// IsRunning reports whether the capture ticker is active.
func (c *Capture) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SwitchDevice tears the source down and reacquires it by device id.
// It holds the same mutex as in-flight captures, so no frame is read
// from a half-replaced source.
func (c *Capture) SwitchDevice(deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = deviceID
	if !c.running {
		return nil
	}
	if err := c.source.Close(); err != nil {
		logger.Log.Warnf("closing video source for switch: %v", err)
	}
	source, err := c.factory(c.Settings(), deviceID)
	if err != nil {
		// Source is gone; stop the loop rather than capture from nothing.
		c.running = false
		close(c.stopCh)
		c.source = nil
		return err
	}
	c.source = source
	return nil
}

// Snapshot performs one read+encode outside the ticker.
func (c *Capture) Snapshot(ctx context.Context) (Frame, error) {
	type result struct {
		frame Frame
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := c.captureOnce()
		ch <- result{f, err}
	}()
	select {
	case <-ctx.Done():
		return Frame{}, errs.New(errs.KindVideo, "snapshot", ctx.Err())
	case r := <-ch:
		return r.frame, r.err
	}
}

func (c *Capture) captureLoop(interval time.Duration, stopCh chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, err := c.captureOnce()
			if err != nil {
				logger.Log.Warnf("frame capture failed: %v", err)
				continue
			}
			if c.onFrame != nil {
				c.onFrame(frame)
			}
		}
	}
}

func (c *Capture) captureOnce() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return Frame{}, errs.New(errs.KindVideo, "capture", errors.New("no video source"))
	}
	img, release, err := c.source.Read()
	if err != nil {
		return Frame{}, err
	}
	if release != nil {
		defer release()
	}

	quality := c.Settings().Quality
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: int(math.Round(quality * 100))}); err != nil {
		return Frame{}, errs.New(errs.KindVideo, "encode jpeg", err)
	}

	bounds := img.Bounds()
	return Frame{
		JPEG:       buf.Bytes(),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Quality:    quality,
		CapturedAt: time.Now(),
	}, nil
}
