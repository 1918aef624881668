package app

import (
	"errors"

	"github.com/voxbridge/voxbridge/internal/audio"
	"github.com/voxbridge/voxbridge/internal/errs"
	"github.com/voxbridge/voxbridge/internal/rtc"
	"github.com/voxbridge/voxbridge/pkg/logger"
)

// CallConfig locates the signaling endpoint and ICE servers for voice
// calls into a backend room.
type CallConfig struct {
	// SignalBaseURL is the ws base, e.g. "ws://localhost:8000"; the room
	// socket is SignalBaseURL + "/signal/" + room.
	SignalBaseURL string
	STUNServers   []string
	// DefaultRoom is joined when StartCall gets an empty room.
	DefaultRoom string
}

type call struct {
	room     string
	peer     *rtc.Peer
	signaler *rtc.Signaler
	mic      *audio.Ring
	done     chan struct{}
}

var errCallActive = errors.New("a call is already active")

// ConfigureCalls enables StartCall with the given signaling endpoint.
func (a *App) ConfigureCalls(cfg CallConfig) {
	a.callMu.Lock()
	a.callCfg = cfg
	a.callMu.Unlock()
}

// StartCall joins a room as the caller. The microphone frame tap fills
// a ring buffer sized for one second of audio and a pump goroutine
// drains it into the peer's PCMU track; the capture callback never
// blocks on an RTP write. The tap is ungated so the far side hears
// everything.
func (a *App) StartCall(room string) error {
	a.callMu.Lock()
	defer a.callMu.Unlock()
	if a.call != nil {
		return errs.New(errs.KindAudio, "start call", errCallActive).WithContext("room " + room)
	}
	if a.callCfg.SignalBaseURL == "" {
		return errs.New(errs.KindGeneral, "start call", errors.New("calls not configured"))
	}
	if room == "" {
		room = a.callCfg.DefaultRoom
	}
	if room == "" {
		return errs.New(errs.KindGeneral, "start call", errors.New("no room specified"))
	}

	peer, err := rtc.NewPeer(a.callCfg.STUNServers)
	if err != nil {
		a.notifier.Push(errs.KindOf(err).UserMessage(), "error")
		return err
	}

	sampleRate := a.audioCap.Settings().SampleRate
	mic := audio.NewRing(sampleRate)
	a.audioCap.SetFrameTap(mic.Write)
	done := make(chan struct{})
	go pumpMic(mic, peer, sampleRate, done)

	signaler := rtc.NewSignaler(a.callCfg.SignalBaseURL, room, rtc.RoleCaller, peer, nil)
	go func() {
		if err := signaler.Run(); err != nil {
			logger.Log.Warnf("call signaling for room %s ended: %v", room, err)
			a.notifier.Push(errs.KindOf(err).UserMessage(), "error")
			_ = a.StopCall()
		}
	}()

	a.call = &call{room: room, peer: peer, signaler: signaler, mic: mic, done: done}
	a.notifier.Push("Call started in room "+room, "success")
	return nil
}

// StopCall detaches the mic tap and tears the peer down. Safe to call
// when no call is active.
func (a *App) StopCall() error {
	a.callMu.Lock()
	active := a.call
	a.call = nil
	a.callMu.Unlock()
	if active == nil {
		return nil
	}

	a.audioCap.SetFrameTap(nil)
	active.mic.Close()
	<-active.done
	_ = active.signaler.Close()
	if err := active.peer.Close(); err != nil {
		return errs.New(errs.KindAudio, "stop call", err).WithContext("room " + active.room)
	}
	a.notifier.Push("Call ended", "info")
	return nil
}

// pumpMic drains the mic ring into the peer in 20ms chunks until the
// ring closes.
func pumpMic(mic *audio.Ring, peer *rtc.Peer, sampleRate int, done chan struct{}) {
	defer close(done)
	buf := make([]int16, sampleRate/50)
	for {
		n, ok := mic.Read(buf)
		if !ok {
			return
		}
		if err := peer.PushMic(buf[:n], sampleRate); err != nil {
			logger.Log.Debugf("push mic frame: %v", err)
		}
	}
}

// CallActive reports whether a call is in progress and its room.
func (a *App) CallActive() (string, bool) {
	a.callMu.Lock()
	defer a.callMu.Unlock()
	if a.call == nil {
		return "", false
	}
	return a.call.room, true
}
