package app

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/internal/audio"
	"github.com/voxbridge/voxbridge/internal/errs"
	"github.com/voxbridge/voxbridge/internal/model"
	"github.com/voxbridge/voxbridge/internal/repository"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/internal/video"
	"github.com/voxbridge/voxbridge/pkg/logger"
)

// Repos groups the persistence handles the app writes through.
type Repos struct {
	Sessions    *repository.SessionRepository
	Transcripts *repository.TranscriptRepository
	Sentiments  *repository.SentimentRepository
}

// App wires audio and video capture into the session client and keeps
// the client-side UI state: recording/video/connection flags, mute
// state, last sentiment, topic suggestions, notifications.
type App struct {
	audioCap *audio.Capture
	videoCap *video.Capture
	client   *session.Client
	notifier *NotificationCenter
	health   *HealthProber
	repos    Repos

	callMu  sync.Mutex
	callCfg CallConfig
	call    *call

	mu          sync.Mutex
	recording   bool
	videoOn     bool
	muted       bool
	ackedMuted  bool
	volume      float64
	sentiment   *session.Sentiment
	suggestions []string
}

// New builds the app; the session client is constructed here so the
// inbound handlers close over app state.
func New(sessionOpts session.Options, audioCap *audio.Capture, videoCap *video.Capture, health *HealthProber, repos Repos) *App {
	a := &App{
		audioCap: audioCap,
		videoCap: videoCap,
		notifier: NewNotificationCenter(),
		health:   health,
		repos:    repos,
	}

	a.client = session.NewClient(sessionOpts, session.Handlers{
		OnTranscription:    a.onTranscription,
		OnSentiment:        a.onSentiment,
		OnConnection:       a.onConnection,
		OnStatus:           a.onStatus,
		OnControlResponse:  a.onControlResponse,
		OnSettingsUpdated:  a.onSettingsUpdated,
		OnTopicSuggestions: a.onTopicSuggestions,
		OnMuteResponse:     a.onMuteResponse,
		OnUnmuteResponse:   a.onUnmuteResponse,
		OnDisconnect:       a.onDisconnect,
		OnReconnectExhausted: func(attempts int) {
			a.notifier.Push(errs.KindWebSocket.UserMessage(), "error")
			logger.Log.Errorf("reconnect exhausted after %d attempts", attempts)
		},
	})

	audioCap.OnChunk(a.onAudioChunk)
	audioCap.OnVolume(a.onVolume)
	videoCap.OnFrame(a.onVideoFrame)

	if health != nil {
		health.OnChange = func(target string, up bool) {
			state := "unreachable"
			kind := "warning"
			if up {
				state = "reachable"
				kind = "success"
			}
			a.notifier.Push(target+" is "+state, kind)
		}
	}

	return a
}

// Client exposes the session client for the API layer.
func (a *App) Client() *session.Client { return a.client }

// Notifications exposes the notification center.
func (a *App) Notifications() *NotificationCenter { return a.notifier }

// Connect opens the session and records it in the store.
func (a *App) Connect(sessionID string) error {
	if err := a.client.Connect(sessionID); err != nil {
		a.notifier.Push(errs.KindOf(err).UserMessage(), "error")
		return err
	}
	if a.repos.Sessions != nil {
		err := a.repos.Sessions.Create(&model.Session{
			ID:        a.client.SessionID(),
			StartedAt: time.Now(),
			Status:    "active",
		})
		if err != nil {
			logger.Log.Warnf("persist session: %v", err)
		}
	}
	return nil
}

// Shutdown stops capture, ends the stored session, and closes the
// socket.
func (a *App) Shutdown() {
	_ = a.StopCall()
	_ = a.StopRecording()
	_ = a.StopVideo()
	if a.health != nil {
		a.health.Stop()
	}
	if a.repos.Sessions != nil && a.client.SessionID() != "" {
		if err := a.repos.Sessions.MarkEnded(a.client.SessionID(), "completed", ""); err != nil {
			logger.Log.Warnf("close session record: %v", err)
		}
	}
	_ = a.client.Close()
}

// StartRecording starts microphone capture and announces it.
func (a *App) StartRecording() error {
	if err := a.audioCap.StartRecording(); err != nil {
		a.notifier.Push(errs.KindOf(err).UserMessage(), "error")
		return err
	}
	a.mu.Lock()
	a.recording = true
	a.mu.Unlock()
	if err := a.client.StartRecording(); err != nil {
		logger.Log.Warnf("start_recording control not delivered: %v", err)
	}
	a.notifier.Push("Recording started", "success")
	return nil
}

func (a *App) StopRecording() error {
	a.mu.Lock()
	wasRecording := a.recording
	a.recording = false
	a.mu.Unlock()
	if !wasRecording {
		return nil
	}
	if err := a.client.StopRecording(); err != nil {
		logger.Log.Warnf("stop_recording control not delivered: %v", err)
	}
	if err := a.audioCap.StopRecording(); err != nil {
		a.notifier.Push(errs.KindOf(err).UserMessage(), "error")
		return err
	}
	a.notifier.Push("Recording stopped", "info")
	return nil
}

func (a *App) StartVideo() error {
	if err := a.videoCap.Start(); err != nil {
		a.notifier.Push(errs.KindOf(err).UserMessage(), "error")
		return err
	}
	a.mu.Lock()
	a.videoOn = true
	a.mu.Unlock()
	return nil
}

func (a *App) StopVideo() error {
	a.mu.Lock()
	wasOn := a.videoOn
	a.videoOn = false
	a.mu.Unlock()
	if !wasOn {
		return nil
	}
	return a.videoCap.Stop()
}

// ToggleMute flips the mute state optimistically and requests the
// change; the response handler reverts on a non-success status, so the
// displayed state always converges to the server's last ack.
func (a *App) ToggleMute() error {
	return a.SetMuted(!a.Muted())
}

// SetMuted drives the mute state to target, optimistically.
func (a *App) SetMuted(target bool) error {
	a.mu.Lock()
	if a.muted == target {
		a.mu.Unlock()
		return nil
	}
	a.muted = target
	a.mu.Unlock()

	var err error
	if target {
		err = a.client.Mute()
	} else {
		err = a.client.Unmute()
	}
	if err != nil {
		// Never transmitted; roll back to the acknowledged state.
		a.mu.Lock()
		a.muted = a.ackedMuted
		a.mu.Unlock()
		a.notifier.Push(errs.KindOf(err).UserMessage(), "error")
	}
	return err
}

// Muted reports the displayed mute state.
func (a *App) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}

// Status is the snapshot served by the dashboard.
type Status struct {
	SessionID   string             `json:"session_id"`
	Connected   bool               `json:"connected"`
	Recording   bool               `json:"recording"`
	VideoOn     bool               `json:"video_on"`
	Muted       bool               `json:"muted"`
	Volume      float64            `json:"volume"`
	BackendUp   bool               `json:"backend_up"`
	EmbedUp     bool               `json:"embed_up"`
	Sentiment   *session.Sentiment `json:"sentiment,omitempty"`
	Suggestions []string           `json:"suggestions,omitempty"`
}

func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Status{
		SessionID:   a.client.SessionID(),
		Connected:   a.client.IsConnected(),
		Recording:   a.recording,
		VideoOn:     a.videoOn,
		Muted:       a.muted,
		Volume:      a.volume,
		Sentiment:   a.sentiment,
		Suggestions: a.suggestions,
	}
	if a.health != nil {
		s.BackendUp, s.EmbedUp = a.health.Status()
	}
	return s
}

// Capture callbacks.

func (a *App) onAudioChunk(chunk audio.Chunk) {
	a.mu.Lock()
	muted := a.muted
	a.mu.Unlock()
	if muted {
		return
	}
	err := a.client.SendAudio(session.AudioData{
		Audio:      base64.StdEncoding.EncodeToString(pcmBytes(chunk.PCM)),
		SampleRate: chunk.SampleRate,
		Channels:   chunk.Channels,
		DurationMs: chunk.DurationMs,
		RMS:        chunk.RMS,
	})
	if err != nil && !errors.Is(err, session.ErrNotConnected) {
		logger.Log.Warnf("send audio chunk: %v", err)
	}
}

func (a *App) onVolume(level float64) {
	a.mu.Lock()
	a.volume = level
	a.mu.Unlock()
}

func (a *App) onVideoFrame(frame video.Frame) {
	err := a.client.SendVideoFrame(session.VideoFrameData{
		Frame: base64.StdEncoding.EncodeToString(frame.JPEG),
		Metadata: session.FrameMetadata{
			Width:      frame.Width,
			Height:     frame.Height,
			Quality:    frame.Quality,
			SizeBytes:  len(frame.JPEG),
			CapturedAt: frame.CapturedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil && !errors.Is(err, session.ErrNotConnected) {
		logger.Log.Warnf("send video frame: %v", err)
	}
}

// Inbound handlers.

func (a *App) onTranscription(t session.Transcription) {
	if a.repos.Transcripts != nil {
		err := a.repos.Transcripts.Create(&model.Transcript{
			SessionID:  a.client.SessionID(),
			Text:       t.Text,
			Confidence: t.Confidence,
			Timestamp:  parseTimestamp(t.Timestamp),
		})
		if err != nil {
			logger.Log.Warnf("persist transcript: %v", err)
		}
	}
}

func (a *App) onSentiment(s session.Sentiment) {
	a.mu.Lock()
	a.sentiment = &s
	a.mu.Unlock()
	if a.repos.Sentiments != nil {
		err := a.repos.Sentiments.Create(&model.SentimentRecord{
			SessionID:  a.client.SessionID(),
			Label:      s.Label,
			Score:      s.Score,
			Confidence: s.Confidence,
			Timestamp:  parseTimestamp(s.Timestamp),
		})
		if err != nil {
			logger.Log.Warnf("persist sentiment: %v", err)
		}
	}
}

func (a *App) onConnection(ack session.ConnectionAck) {
	logger.Log.Infof("server acknowledged connection: %s", ack.Status)
	a.notifier.Push("Connected to server", "success")
}

func (a *App) onStatus(s session.StatusReport) {
	logger.Log.Debugf("server status: connected=%v session=%s", s.Connected, s.SessionID)
}

func (a *App) onControlResponse(r session.ControlResponse) {
	if r.Status == "success" {
		logger.Log.Infof("control %s: %s", r.Command, r.Message)
		return
	}
	logger.Log.Warnf("control %s failed: %s", r.Command, r.Message)
	a.notifier.Push(errs.KindAPI.UserMessage(), "error")
}

func (a *App) onSettingsUpdated(s session.SettingsUpdated) {
	if s.Status == "success" {
		a.notifier.Push("Audio settings updated", "success")
		return
	}
	a.notifier.Push(errs.KindAPI.UserMessage(), "error")
}

func (a *App) onTopicSuggestions(t session.TopicSuggestions) {
	a.mu.Lock()
	a.suggestions = t.Topics
	a.mu.Unlock()
}

func (a *App) onMuteResponse(r session.AckStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r.Status == "success" {
		a.ackedMuted = true
		a.muted = true
		return
	}
	a.muted = a.ackedMuted
}

func (a *App) onUnmuteResponse(r session.AckStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r.Status == "success" {
		a.ackedMuted = false
		a.muted = false
		return
	}
	a.muted = a.ackedMuted
}

func (a *App) onDisconnect(err error) {
	logger.Log.Warnf("session disconnected: %v", err)
	a.notifier.Push("Connection lost", "warning")
}

func pcmBytes(pcm []int16) []byte {
	out := make([]byte, 2*len(pcm))
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}
