package video

import (
	"errors"
	"image"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	mdvideo "github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/voxbridge/voxbridge/internal/errs"
	"github.com/voxbridge/voxbridge/pkg/logger"
)

type cameraSource struct {
	stream mediadevices.MediaStream
	track  *mediadevices.VideoTrack
	reader mdvideo.Reader
}

// OpenCamera acquires a camera at the requested resolution. It is the
// production SourceFactory.
func OpenCamera(settings Settings, deviceID string) (FrameSource, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(settings.Width)
			c.Height = prop.Int(settings.Height)
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
		},
	})
	if err != nil {
		return nil, errs.New(errs.KindVideo, "open camera", err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		for _, t := range stream.GetTracks() {
			_ = t.Close()
		}
		return nil, errs.New(errs.KindVideo, "open camera", errors.New("stream has no video track"))
	}
	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		for _, t := range stream.GetTracks() {
			_ = t.Close()
		}
		return nil, errs.New(errs.KindVideo, "open camera", errors.New("unexpected track type"))
	}

	logger.Log.Infof("camera track acquired: %s", track.ID())
	return &cameraSource{
		stream: stream,
		track:  track,
		reader: track.NewReader(false),
	}, nil
}

func (s *cameraSource) Read() (image.Image, func(), error) {
	img, release, err := s.reader.Read()
	if err != nil {
		return nil, nil, errs.New(errs.KindVideo, "read frame", err)
	}
	return img, release, nil
}

func (s *cameraSource) Close() error {
	var closeErr error
	for _, t := range s.stream.GetTracks() {
		if err := t.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

// CameraDevices lists attached video input devices.
func CameraDevices() []DeviceInfo {
	out := []DeviceInfo{}
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		out = append(out, DeviceInfo{ID: d.DeviceID, Name: d.Label})
	}
	return out
}

// DeviceInfo identifies a camera for enumeration and switching.
type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
