package session

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/internal/errs"
	"github.com/voxbridge/voxbridge/pkg/logger"
)

// ErrNotConnected is returned by Send when the socket is not open.
// Messages sent while disconnected are dropped, not queued.
var ErrNotConnected = errors.New("session: not connected")

// WebsocketDialer lets tests inject a dialer, same as the default
// websocket.DefaultDialer surface.
type WebsocketDialer interface {
	Dial(urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Handlers receives inbound messages, one field per union member. Nil
// fields drop their message silently; there is nothing else to dispatch
// to, the union is closed.
type Handlers struct {
	OnTranscription    func(Transcription)
	OnSentiment        func(Sentiment)
	OnConnection       func(ConnectionAck)
	OnStatus           func(StatusReport)
	OnControlResponse  func(ControlResponse)
	OnSettingsUpdated  func(SettingsUpdated)
	OnTopicSuggestions func(TopicSuggestions)
	OnMuteResponse     func(AckStatus)
	OnUnmuteResponse   func(AckStatus)
	OnPong             func()

	// OnDisconnect fires on any socket drop, before reconnection is
	// scheduled. OnReconnectExhausted fires once the attempt cap is hit.
	OnDisconnect         func(err error)
	OnReconnectExhausted func(attempts int)
}

type Options struct {
	// URL is the backend base, e.g. "ws://localhost:8000". The socket
	// path is URL + "/ws/" + sessionID.
	URL                  string
	AutoReconnect        bool
	MaxReconnectAttempts int
	// BaseReconnectDelay is the attempt-1 delay; attempt n waits
	// base * 2^(n-1). Defaults to one second.
	BaseReconnectDelay time.Duration
	Dialer             WebsocketDialer
}

// Client owns one socket per session id and serializes all writes.
type Client struct {
	opts     Options
	handlers Handlers

	mu             sync.Mutex
	conn           *websocket.Conn
	sessionID      string
	connecting     bool
	manualClose    bool
	reconnects     int
	reconnectTimer *time.Timer

	droppedMu sync.Mutex
	dropped   int

	now func() time.Time
}

func NewClient(opts Options, handlers Handlers) *Client {
	if opts.BaseReconnectDelay <= 0 {
		opts.BaseReconnectDelay = time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts, handlers: handlers, now: time.Now}
}

// Connect opens the socket for sessionID, generating an id when empty.
// A manual Connect resets the reconnect budget.
func (c *Client) Connect(sessionID string) error {
	c.mu.Lock()
	if c.connecting || c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	if sessionID == "" {
		if c.sessionID == "" {
			c.sessionID = NewSessionID()
		}
	} else {
		c.sessionID = sessionID
	}
	c.manualClose = false
	c.reconnects = 0
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	return c.dial()
}

func (c *Client) dial() error {
	c.mu.Lock()
	url := fmt.Sprintf("%s/ws/%s", c.opts.URL, c.sessionID)
	dialer := c.opts.Dialer
	c.mu.Unlock()

	conn, _, err := dialer.Dial(url, nil)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		return errs.New(errs.KindWebSocket, "connect", err).WithContext(url)
	}
	c.conn = conn
	c.reconnects = 0
	c.mu.Unlock()

	logger.Log.Infof("session %s connected to %s", c.SessionID(), url)

	if err := c.SendConnectionAnnouncement(); err != nil {
		logger.Log.Warnf("connection announcement failed: %v", err)
	}

	go c.readLoop(conn)
	return nil
}

// SessionID returns the current session identifier.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// DroppedMessages counts inbound frames dropped for unknown type or
// malformed payloads.
func (c *Client) DroppedMessages() int {
	c.droppedMu.Lock()
	defer c.droppedMu.Unlock()
	return c.dropped
}

// Close tears the session down and disables automatic reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.manualClose = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), c.now().Add(time.Second))
	return conn.Close()
}

// Send stamps the envelope and transmits it. Fails with ErrNotConnected
// (and no transmission) whenever the socket is not open.
func (c *Client) Send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	env.Stamp(c.sessionID, c.now())
	if err := c.conn.WriteJSON(env); err != nil {
		return errs.New(errs.KindWebSocket, "send "+env.Type, err)
	}
	return nil
}

func (c *Client) sendTyped(msgType string, data any) error {
	env, err := NewEnvelope(msgType, data)
	if err != nil {
		return err
	}
	return c.Send(env)
}

// Fixed-shape envelope builders over Send.

func (c *Client) SendConnectionAnnouncement() error {
	return c.sendTyped(TypeConnection, ConnectionData{Status: "connected", Client: "voxbridge"})
}

func (c *Client) SendAudio(d AudioData) error           { return c.sendTyped(TypeAudioData, d) }
func (c *Client) SendVideoFrame(d VideoFrameData) error { return c.sendTyped(TypeVideoFrame, d) }
func (c *Client) SendTranscription(t Transcription) error {
	return c.sendTyped(TypeTranscription, t)
}
func (c *Client) SendAudioSettings(settings any) error {
	return c.sendTyped(TypeAudioSettings, settings)
}
func (c *Client) SendControl(command string) error {
	return c.sendTyped(TypeControl, ControlData{Command: command})
}
func (c *Client) StartRecording() error     { return c.SendControl(CmdStartRecording) }
func (c *Client) StopRecording() error      { return c.SendControl(CmdStopRecording) }
func (c *Client) StartAISession() error     { return c.SendControl(CmdStartAISession) }
func (c *Client) StopAISession() error      { return c.SendControl(CmdStopAISession) }
func (c *Client) Ping() error               { return c.sendTyped(TypePing, nil) }
func (c *Client) GetStatus() error          { return c.sendTyped(TypeGetStatus, nil) }
func (c *Client) Mute() error               { return c.sendTyped(TypeMute, nil) }
func (c *Client) Unmute() error             { return c.sendTyped(TypeUnmute, nil) }
func (c *Client) GetChatSuggestions() error { return c.sendTyped(TypeGetSuggestions, nil) }

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.onSocketDown(conn, err)
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw []byte) {
	msgType, in, err := c.decode(raw)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			logger.Log.Debugf("dropping message of unknown type %q", msgType)
		} else {
			logger.Log.Warnf("dropping malformed message: %v", err)
		}
		c.droppedMu.Lock()
		c.dropped++
		c.droppedMu.Unlock()
		return
	}

	h := c.handlers
	switch {
	case in.Transcription != nil:
		if h.OnTranscription != nil {
			h.OnTranscription(*in.Transcription)
		}
	case in.Sentiment != nil:
		if h.OnSentiment != nil {
			h.OnSentiment(*in.Sentiment)
		}
	case in.Connection != nil:
		if h.OnConnection != nil {
			h.OnConnection(*in.Connection)
		}
	case in.Status != nil:
		if h.OnStatus != nil {
			h.OnStatus(*in.Status)
		}
	case in.ControlResponse != nil:
		if h.OnControlResponse != nil {
			h.OnControlResponse(*in.ControlResponse)
		}
	case in.SettingsUpdated != nil:
		if h.OnSettingsUpdated != nil {
			h.OnSettingsUpdated(*in.SettingsUpdated)
		}
	case in.TopicSuggestions != nil:
		if h.OnTopicSuggestions != nil {
			h.OnTopicSuggestions(*in.TopicSuggestions)
		}
	case in.MuteResponse != nil:
		if h.OnMuteResponse != nil {
			h.OnMuteResponse(*in.MuteResponse)
		}
	case in.UnmuteResponse != nil:
		if h.OnUnmuteResponse != nil {
			h.OnUnmuteResponse(*in.UnmuteResponse)
		}
	case in.Pong:
		if h.OnPong != nil {
			h.OnPong()
		}
	}
}

func (c *Client) decode(raw []byte) (string, *Inbound, error) {
	return DecodeInbound(raw)
}

func (c *Client) onSocketDown(conn *websocket.Conn, err error) {
	c.mu.Lock()
	// A stale read loop from a previous socket must not trigger
	// reconnection for the current one.
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	manual := c.manualClose
	c.mu.Unlock()

	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(err)
	}
	if manual || !c.opts.AutoReconnect {
		return
	}
	c.scheduleReconnect()
}

// ReconnectDelay returns the wait before attempt n (1-indexed):
// base * 2^(n-1), pure exponential.
func ReconnectDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.manualClose || c.connecting || c.conn != nil {
		c.mu.Unlock()
		return
	}
	if c.reconnects >= c.opts.MaxReconnectAttempts {
		attempts := c.reconnects
		c.mu.Unlock()
		logger.Log.Errorf("session %s: giving up after %d reconnect attempts", c.SessionID(), attempts)
		if c.handlers.OnReconnectExhausted != nil {
			c.handlers.OnReconnectExhausted(attempts)
		}
		return
	}
	c.reconnects++
	attempt := c.reconnects
	delay := ReconnectDelay(c.opts.BaseReconnectDelay, attempt)
	logger.Log.Infof("session %s: reconnect attempt %d in %s", c.sessionID, attempt, delay)

	// One authoritative timer; a newer schedule replaces an older one.
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(delay, func() {
		if err := c.redial(); err != nil {
			logger.Log.Warnf("session %s: reconnect attempt %d failed: %v", c.SessionID(), attempt, err)
			c.scheduleReconnect()
		}
	})
	c.mu.Unlock()
}

// redial is Connect without resetting the attempt counter.
func (c *Client) redial() error {
	c.mu.Lock()
	if c.connecting || c.conn != nil || c.manualClose {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()
	return c.dial()
}
