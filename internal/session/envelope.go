package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is the JSON wrapper for all traffic on the session socket.
// Timestamp and SessionID are stamped by the client on send.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"session_id"`
}

// Outbound message types.
const (
	TypeConnection     = "connection"
	TypeAudioData      = "audio_data"
	TypeVideoFrame     = "video_frame"
	TypeTranscription  = "transcription"
	TypeAudioSettings  = "audio_settings"
	TypeControl        = "control"
	TypePing           = "ping"
	TypeGetStatus      = "get_status"
	TypeMute           = "mute"
	TypeUnmute         = "unmute"
	TypeGetSuggestions = "get_chat_suggestions"
)

// Inbound message types.
const (
	TypeSentiment        = "sentiment"
	TypeStatus           = "status"
	TypeControlResponse  = "control_response"
	TypeSettingsUpdated  = "settings_updated"
	TypeTopicSuggestions = "topic_suggestions"
	TypeMuteResponse     = "mute_response"
	TypeUnmuteResponse   = "unmute_response"
	TypePong             = "pong"
)

// Control commands carried in a control envelope.
const (
	CmdStartRecording = "start_recording"
	CmdStopRecording  = "stop_recording"
	CmdStartAISession = "start_ai_session"
	CmdStopAISession  = "stop_ai_session"
)

type ConnectionData struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	Client    string `json:"client,omitempty"`
}

type AudioData struct {
	Audio      string  `json:"audio"` // base64 PCM16LE
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	DurationMs int     `json:"duration_ms"`
	RMS        float64 `json:"rms,omitempty"`
}

type VideoFrameData struct {
	Frame    string        `json:"frame"` // base64 JPEG
	Metadata FrameMetadata `json:"metadata"`
}

type FrameMetadata struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Quality    float64 `json:"quality"`
	SizeBytes  int     `json:"size_bytes"`
	CapturedAt string  `json:"captured_at"`
}

type ControlData struct {
	Command string `json:"command"`
}

// Inbound payloads.

type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
}

type Sentiment struct {
	Label      string  `json:"label"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
}

type ConnectionAck struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

type StatusReport struct {
	Connected bool   `json:"connected"`
	SessionID string `json:"session_id"`
}

type ControlResponse struct {
	Command string `json:"command"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type SettingsUpdated struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type TopicSuggestions struct {
	Topics []string `json:"topics"`
}

type AckStatus struct {
	Status string `json:"status"`
}

// Inbound is the closed union of server messages. Exactly one field is
// non-nil after a successful DecodeInbound.
type Inbound struct {
	Transcription    *Transcription
	Sentiment        *Sentiment
	Connection       *ConnectionAck
	Status           *StatusReport
	ControlResponse  *ControlResponse
	SettingsUpdated  *SettingsUpdated
	TopicSuggestions *TopicSuggestions
	MuteResponse     *AckStatus
	UnmuteResponse   *AckStatus
	Pong             bool
}

// ErrUnknownType marks inbound messages whose type string is not part of
// the union. Callers log and drop these.
var ErrUnknownType = errors.New("unknown message type")

// DecodeInbound parses a raw socket frame into the typed union.
func DecodeInbound(raw []byte) (string, *Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return "", nil, errors.New("missing message type")
	}

	in := &Inbound{}
	var payload any
	switch env.Type {
	case TypeTranscription:
		in.Transcription = &Transcription{}
		payload = in.Transcription
	case TypeSentiment:
		in.Sentiment = &Sentiment{}
		payload = in.Sentiment
	case TypeConnection:
		// The ack's status and session_id ride at the top level of the
		// frame, like the other replies below.
		in.Connection = &ConnectionAck{}
		if err := json.Unmarshal(raw, in.Connection); err != nil {
			return env.Type, nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return env.Type, in, nil
	case TypeStatus:
		in.Status = &StatusReport{}
		// Status fields ride at the top level in the backend's reply,
		// not under "data".
		if err := json.Unmarshal(raw, in.Status); err != nil {
			return env.Type, nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return env.Type, in, nil
	case TypeControlResponse:
		in.ControlResponse = &ControlResponse{}
		if err := json.Unmarshal(raw, in.ControlResponse); err != nil {
			return env.Type, nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return env.Type, in, nil
	case TypeSettingsUpdated:
		in.SettingsUpdated = &SettingsUpdated{}
		if err := json.Unmarshal(raw, in.SettingsUpdated); err != nil {
			return env.Type, nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return env.Type, in, nil
	case TypeTopicSuggestions:
		in.TopicSuggestions = &TopicSuggestions{}
		payload = in.TopicSuggestions
	case TypeMuteResponse:
		in.MuteResponse = &AckStatus{}
		if err := json.Unmarshal(raw, in.MuteResponse); err != nil {
			return env.Type, nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return env.Type, in, nil
	case TypeUnmuteResponse:
		in.UnmuteResponse = &AckStatus{}
		if err := json.Unmarshal(raw, in.UnmuteResponse); err != nil {
			return env.Type, nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return env.Type, in, nil
	case TypePong:
		in.Pong = true
		return env.Type, in, nil
	default:
		return env.Type, nil, ErrUnknownType
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return env.Type, nil, fmt.Errorf("decode %s data: %w", env.Type, err)
		}
	}
	return env.Type, in, nil
}

// NewEnvelope marshals data into an envelope of the given type. Timestamp
// and session id are left for the client to stamp at send time.
func NewEnvelope(msgType string, data any) (Envelope, error) {
	env := Envelope{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s data: %w", msgType, err)
		}
		env.Data = raw
	}
	return env, nil
}

// Stamp fills the envelope's timestamp and session id.
func (e *Envelope) Stamp(sessionID string, at time.Time) {
	e.Timestamp = at.UTC().Format(time.RFC3339Nano)
	e.SessionID = sessionID
}
