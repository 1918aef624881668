package rtc

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/voxbridge/voxbridge/internal/errs"
	"github.com/voxbridge/voxbridge/pkg/logger"
)

// Peer publishes the microphone as a PCMU/8000 track and hands remote
// audio to an optional sink.
type Peer struct {
	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticRTP

	sendMu    sync.Mutex
	seq       uint16
	timestamp uint32

	sinkMu sync.RWMutex
	sink   func([]int16)
}

// NewPeer builds a peer connection restricted to G.711 audio, the only
// codec pair the call path speaks.
func NewPeer(stunServers []string) (*Peer, error) {
	media := &webrtc.MediaEngine{}
	if err := media.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 1},
		PayloadType:        0,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, errs.New(errs.KindAudio, "register PCMU", err)
	}
	if err := media.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000, Channels: 1},
		PayloadType:        8,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, errs.New(errs.KindAudio, "register PCMA", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(media))

	cfg := webrtc.Configuration{}
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}

	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, errs.New(errs.KindGeneral, "new peer connection", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 1},
		"audio",
		"voxbridge-mic",
	)
	if err != nil {
		_ = pc.Close()
		return nil, errs.New(errs.KindAudio, "new local track", err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		return nil, errs.New(errs.KindAudio, "add track", err)
	}

	peer := &Peer{pc: pc, track: track, seq: 1}

	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, readErr := sender.Read(rtcpBuf); readErr != nil {
				return
			}
		}
	}()

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		_ = pc.Close()
		return nil, errs.New(errs.KindAudio, "add transceiver", err)
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		logger.Log.Infof("remote audio track codec=%s", remote.Codec().RTPCodecCapability.MimeType)
		for {
			pkt, _, readErr := remote.ReadRTP()
			if readErr != nil {
				return
			}
			samples, decodeErr := decodeRemote(remote.Codec().RTPCodecCapability.MimeType, pkt.Payload)
			if decodeErr != nil {
				logger.Log.Warnf("decode remote payload: %v", decodeErr)
				continue
			}
			peer.sinkMu.RLock()
			sink := peer.sink
			peer.sinkMu.RUnlock()
			if sink != nil {
				sink(samples)
			}
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Log.Infof("peer connection state: %s", state.String())
	})

	return peer, nil
}

// SetAudioSink installs the consumer for decoded remote audio.
func (p *Peer) SetAudioSink(sink func([]int16)) {
	p.sinkMu.Lock()
	p.sink = sink
	p.sinkMu.Unlock()
}

// PushMic resamples a mic frame to 8 kHz and ships it as one RTP
// packet. Frames pushed while the connection is not established are
// dropped.
func (p *Peer) PushMic(samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	if p.pc.ConnectionState() != webrtc.PeerConnectionStateConnected {
		return nil
	}

	narrow := Resample(samples, sampleRate, 8000)
	payload := EncodePCMU(narrow)

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	packet := &rtp.Packet{Header: rtp.Header{
		Version:        2,
		PayloadType:    0,
		SequenceNumber: p.seq,
		Timestamp:      p.timestamp,
		SSRC:           1,
	}, Payload: payload}

	if err := p.track.WriteRTP(packet); err != nil {
		return errs.New(errs.KindAudio, "write rtp", err)
	}
	p.seq++
	p.timestamp += uint32(len(narrow))
	return nil
}

// PeerConnection exposes the underlying pion connection for signaling.
func (p *Peer) PeerConnection() *webrtc.PeerConnection { return p.pc }

func (p *Peer) Close() error {
	if p.pc == nil {
		return nil
	}
	return p.pc.Close()
}

func decodeRemote(mimeType string, payload []byte) ([]int16, error) {
	switch mimeType {
	case webrtc.MimeTypePCMU:
		return DecodePCMU(payload), nil
	case webrtc.MimeTypePCMA:
		return DecodePCMA(payload), nil
	default:
		return nil, errors.New("unsupported incoming codec: " + mimeType)
	}
}

// WaitForLocalDescription polls until ICE gathering fills the local
// description or the timeout, whichever first.
func WaitForLocalDescription(pc *webrtc.PeerConnection, timeout time.Duration) (*webrtc.SessionDescription, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if desc := pc.LocalDescription(); desc != nil {
			return desc, nil
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return nil, errors.New("wait local description timeout")
		}
	}
}
