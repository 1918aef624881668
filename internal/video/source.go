package video

import "image"

// FrameSource yields the current camera frame. Implementations must be
// safe to Close while a Read is pending on another goroutine only if
// the caller serializes access; Capture does that behind its mutex.
type FrameSource interface {
	// Read returns the next frame plus a release func for any pooled
	// backing buffer. Callers must invoke release after encoding.
	Read() (img image.Image, release func(), err error)
	Close() error
}

// SourceFactory opens a FrameSource for the given settings; deviceID
// selects a specific camera, empty means default.
type SourceFactory func(settings Settings, deviceID string) (FrameSource, error)
