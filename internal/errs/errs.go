package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error into the small set of domains the client
// surfaces to the user. It replaces matching on error message substrings.
type Kind int

const (
	KindGeneral Kind = iota
	KindWebSocket
	KindAPI
	KindRecording
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindWebSocket:
		return "websocket"
	case KindAPI:
		return "api"
	case KindRecording:
		return "recording"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "general"
	}
}

// UserMessage is the canned, domain-labeled string shown in notifications.
func (k Kind) UserMessage() string {
	switch k {
	case KindWebSocket:
		return "Connection to the server was lost. Reconnecting..."
	case KindAPI:
		return "The server could not process the request."
	case KindRecording:
		return "Recording failed. Check your microphone and try again."
	case KindVideo:
		return "Camera error. Check your camera and try again."
	case KindAudio:
		return "Microphone error. Check your audio device and try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// Error carries a kind plus the failing operation and wraps the cause.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	At      time.Time
	Context string
}

func (e *Error) Error() string {
	op := e.Op
	if e.Context != "" {
		op = fmt.Sprintf("%s (%s)", e.Op, e.Context)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// WithContext attaches a short detail string, such as the URL, room or
// device the operation was acting on.
func (e *Error) WithContext(ctx string) *Error {
	e.Context = ctx
	return e
}

// New wraps err with a kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err, At: time.Now()}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...), At: time.Now()}
}

// KindOf extracts the kind from err, walking the wrap chain.
// Errors without a kind report KindGeneral.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneral
}
