package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/voxbridge/voxbridge/internal/errs"
	"github.com/voxbridge/voxbridge/pkg/logger"
)

// Chunk is one gated capture slice delivered to the chunk handler.
type Chunk struct {
	PCM        []int16
	SampleRate int
	Channels   int
	DurationMs int
	RMS        float64
}

// Device identifies a capture device for enumeration and switching.
type Device struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Capture owns the microphone stream. Frames are read blocking from
// PortAudio every frame interval; each frame drives the volume meter,
// and frames coalesce into chunks which reach the chunk handler only
// when the voice-activity gate passes. Handlers run synchronously on
// the capture goroutine; there is no queue.
type Capture struct {
	frameMs int
	chunkMs int

	settingsMu sync.RWMutex
	settings   Settings
	gate       *Gate

	mu          sync.Mutex
	device      *portaudio.DeviceInfo
	stream      *portaudio.Stream
	inBuf       []int16
	initialized bool
	recording   bool
	stopCh      chan struct{}
	wg          sync.WaitGroup

	onChunk  func(Chunk)
	onVolume func(float64)

	tapMu sync.RWMutex
	tap   func([]int16)
}

// NewCapture builds a capture service with the given frame and chunk
// intervals in milliseconds. ChunkMs should be a multiple of frameMs.
func NewCapture(settings Settings, frameMs, chunkMs int) *Capture {
	if frameMs <= 0 {
		frameMs = 50
	}
	if chunkMs < frameMs {
		chunkMs = 2 * frameMs
	}
	return &Capture{
		frameMs:  frameMs,
		chunkMs:  chunkMs,
		settings: settings,
		gate:     NewGate(settings.VADThreshold),
	}
}

// OnChunk registers the per-chunk callback (gated by RMS).
func (c *Capture) OnChunk(fn func(Chunk)) { c.onChunk = fn }

// OnVolume registers the per-frame volume meter callback.
func (c *Capture) OnVolume(fn func(float64)) { c.onVolume = fn }

// SetFrameTap installs an ungated raw-frame consumer (the call path).
func (c *Capture) SetFrameTap(fn func([]int16)) {
	c.tapMu.Lock()
	c.tap = fn
	c.tapMu.Unlock()
}

// Initialize acquires PortAudio and the default input device. Fails
// when no capture device exists or the host denies access.
func (c *Capture) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return errs.New(errs.KindAudio, "initialize", err)
	}
	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return errs.New(errs.KindAudio, "default input device", err)
	}
	if device.MaxInputChannels < 1 {
		_ = portaudio.Terminate()
		return errs.Newf(errs.KindAudio, "default input device", "device %q has no input channels", device.Name)
	}
	c.device = device
	c.initialized = true
	logger.Log.Infof("audio input device: %s", device.Name)
	return nil
}

// Terminate releases PortAudio. The capture must be stopped first.
func (c *Capture) Terminate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil
	}
	c.initialized = false
	if err := portaudio.Terminate(); err != nil {
		return errs.New(errs.KindAudio, "terminate", err)
	}
	return nil
}

// Settings returns a copy of the current settings.
func (c *Capture) Settings() Settings {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return c.settings
}

// UpdateSettings mutates settings live. A sample-rate change does not
// restart the device; it takes effect on the next StartRecording.
func (c *Capture) UpdateSettings(s Settings) {
	c.settingsMu.Lock()
	if s.SampleRate > 0 {
		c.settings.SampleRate = s.SampleRate
	}
	if s.Channels > 0 {
		c.settings.Channels = s.Channels
	}
	if s.VADThreshold > 0 {
		c.settings.VADThreshold = s.VADThreshold
		c.gate.SetThreshold(s.VADThreshold)
	}
	c.settings.EchoCancellation = s.EchoCancellation
	c.settings.NoiseSuppression = s.NoiseSuppression
	c.settingsMu.Unlock()
}

// StartRecording opens the input stream and runs the capture loop.
func (c *Capture) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return errs.New(errs.KindRecording, "start", errors.New("capture not initialized"))
	}
	if c.recording {
		return nil
	}
	if err := c.openStreamLocked(); err != nil {
		return err
	}
	if err := c.stream.Start(); err != nil {
		_ = c.stream.Close()
		c.stream = nil
		return errs.New(errs.KindRecording, "start stream", err)
	}
	c.stopCh = make(chan struct{})
	c.recording = true
	c.wg.Add(1)
	go c.captureLoop(c.stream, c.inBuf, c.stopCh)
	return nil
}

func (c *Capture) openStreamLocked() error {
	settings := c.Settings()
	frameSamples := settings.SampleRate * c.frameMs / 1000

	params := portaudio.HighLatencyParameters(c.device, nil)
	params.SampleRate = float64(settings.SampleRate)
	params.Input.Channels = 1
	params.FramesPerBuffer = frameSamples

	inBuf := make([]int16, frameSamples)
	stream, err := portaudio.OpenStream(params, inBuf)
	if err != nil {
		return errs.New(errs.KindRecording, "open stream", err)
	}
	c.stream = stream
	c.inBuf = inBuf
	return nil
}

// StopRecording halts the capture loop and closes the stream. No chunk
// or volume callback fires after it returns.
func (c *Capture) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRecordingLocked()
}

func (c *Capture) stopRecordingLocked() error {
	if !c.recording {
		return nil
	}
	close(c.stopCh)
	c.wg.Wait()
	c.recording = false

	var stopErr error
	if err := c.stream.Stop(); err != nil {
		stopErr = err
	}
	if err := c.stream.Close(); err != nil && stopErr == nil {
		stopErr = err
	}
	c.stream = nil
	if stopErr != nil {
		return errs.New(errs.KindRecording, "stop", stopErr)
	}
	return nil
}

// IsRecording reports whether the capture loop is running.
func (c *Capture) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *Capture) captureLoop(stream *portaudio.Stream, buf []int16, stopCh chan struct{}) {
	defer c.wg.Done()

	settings := c.Settings()
	chunkSamples := settings.SampleRate * c.chunkMs / 1000
	pending := make([]int16, 0, chunkSamples)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			logger.Log.Warnf("capture read error: %v", err)
			time.Sleep(20 * time.Millisecond)
			continue
		}

		frame := make([]int16, len(buf))
		copy(frame, buf)

		if c.onVolume != nil {
			c.onVolume(Level(frame))
		}

		c.tapMu.RLock()
		tap := c.tap
		c.tapMu.RUnlock()
		if tap != nil {
			tap(frame)
		}

		pending = append(pending, frame...)
		for len(pending) >= chunkSamples {
			chunk := make([]int16, chunkSamples)
			copy(chunk, pending[:chunkSamples])
			pending = pending[chunkSamples:]
			c.emitChunk(chunk, settings.SampleRate)
		}
	}
}

func (c *Capture) emitChunk(pcm []int16, sampleRate int) {
	rms := RMS(pcm)
	if !c.gate.Pass(pcm) {
		return
	}
	if c.onChunk == nil {
		return
	}
	c.onChunk(Chunk{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   1,
		DurationMs: len(pcm) * 1000 / sampleRate,
		RMS:        rms,
	})
}

// Devices enumerates input-capable devices.
func (c *Capture) Devices() ([]Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil, errs.New(errs.KindAudio, "devices", errors.New("capture not initialized"))
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, errs.New(errs.KindAudio, "devices", err)
	}
	out := make([]Device, 0, len(infos))
	for i, d := range infos {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{ID: i, Name: d.Name})
	}
	return out, nil
}

// SwitchDevice closes the current stream and reopens it on the device
// with the given index. While the swap runs no data flows.
func (c *Capture) SwitchDevice(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return errs.New(errs.KindAudio, "switch device", errors.New("capture not initialized"))
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return errs.New(errs.KindAudio, "switch device", err)
	}
	if id < 0 || id >= len(infos) {
		return errs.Newf(errs.KindAudio, "switch device", "no device with id %d", id)
	}
	if infos[id].MaxInputChannels < 1 {
		return errs.Newf(errs.KindAudio, "switch device", "device %q has no input channels", infos[id].Name)
	}

	wasRecording := c.recording
	if wasRecording {
		if err := c.stopRecordingLocked(); err != nil {
			return err
		}
	}
	c.device = infos[id]
	logger.Log.Infof("audio input device switched to: %s", infos[id].Name)
	if !wasRecording {
		return nil
	}
	if err := c.openStreamLocked(); err != nil {
		return err
	}
	if err := c.stream.Start(); err != nil {
		_ = c.stream.Close()
		c.stream = nil
		return errs.New(errs.KindRecording, "restart stream", err)
	}
	c.stopCh = make(chan struct{})
	c.recording = true
	c.wg.Add(1)
	go c.captureLoop(c.stream, c.inBuf, c.stopCh)
	return nil
}
