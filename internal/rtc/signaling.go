package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/voxbridge/voxbridge/internal/errs"
	"github.com/voxbridge/voxbridge/pkg/logger"
)

// SignalMessage is one frame on the room signaling socket. For offers
// and answers the SDP rides at the top level, mirroring a serialized
// RTCSessionDescription.
type SignalMessage struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Role decides which side of the offer/answer exchange we run.
type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

// Dialer matches the gorilla dialer surface so tests can inject one.
type Dialer interface {
	Dial(urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Signaler drives the room signaling protocol: the caller posts an
// offer and waits for an answer; the callee fetches the offer with
// get-offer and answers it. ICE candidates relay in both directions.
type Signaler struct {
	url    string
	role   Role
	peer   *Peer
	dialer Dialer

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

// NewSignaler builds a signaler for ws://<host>/signal/<room>.
func NewSignaler(baseURL, room string, role Role, peer *Peer, dialer Dialer) *Signaler {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Signaler{
		url:    fmt.Sprintf("%s/signal/%s", baseURL, room),
		role:   role,
		peer:   peer,
		dialer: dialer,
		done:   make(chan struct{}),
	}
}

// Run connects, performs the offer/answer exchange for our role, and
// relays candidates until the socket drops or Close is called.
func (s *Signaler) Run() error {
	conn, _, err := s.dialer.Dial(s.url, nil)
	if err != nil {
		return errs.New(errs.KindWebSocket, "signaling connect", err).WithContext(s.url)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	pc := s.peer.PeerConnection()
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		if err := s.write(SignalMessage{Type: "candidate", Candidate: &init}); err != nil {
			logger.Log.Warnf("relay candidate: %v", err)
		}
	})

	switch s.role {
	case RoleCaller:
		if err := s.sendOffer(pc); err != nil {
			return err
		}
	case RoleCallee:
		if err := s.write(SignalMessage{Type: "get-offer"}); err != nil {
			return err
		}
	}

	return s.readLoop(pc)
}

func (s *Signaler) sendOffer(pc *webrtc.PeerConnection) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return errs.New(errs.KindGeneral, "create offer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return errs.New(errs.KindGeneral, "set local description", err)
	}
	local, err := WaitForLocalDescription(pc, 10*time.Second)
	if err != nil {
		return errs.New(errs.KindGeneral, "gather candidates", err)
	}
	return s.write(SignalMessage{Type: "offer", SDP: local.SDP})
}

func (s *Signaler) readLoop(pc *webrtc.PeerConnection) error {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return nil
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				return errs.New(errs.KindWebSocket, "signaling read", err)
			}
		}

		var msg SignalMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Log.Warnf("malformed signal message: %v", err)
			continue
		}

		switch msg.Type {
		case "offer":
			if s.role != RoleCallee {
				continue
			}
			if err := s.answerOffer(pc, msg.SDP); err != nil {
				return err
			}
		case "answer":
			if s.role != RoleCaller {
				continue
			}
			desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}
			if err := pc.SetRemoteDescription(desc); err != nil {
				return errs.New(errs.KindGeneral, "set remote answer", err)
			}
		case "no-offer":
			// Nobody has called into the room yet; poll again shortly.
			time.Sleep(time.Second)
			if err := s.write(SignalMessage{Type: "get-offer"}); err != nil {
				return err
			}
		case "candidate":
			if msg.Candidate == nil {
				continue
			}
			if err := pc.AddICECandidate(*msg.Candidate); err != nil {
				logger.Log.Warnf("add remote candidate: %v", err)
			}
		default:
			logger.Log.Debugf("ignoring signal type %q", msg.Type)
		}
	}
}

func (s *Signaler) answerOffer(pc *webrtc.PeerConnection, sdp string) error {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := pc.SetRemoteDescription(remote); err != nil {
		return errs.New(errs.KindGeneral, "set remote offer", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return errs.New(errs.KindGeneral, "create answer", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return errs.New(errs.KindGeneral, "set local answer", err)
	}
	local, err := WaitForLocalDescription(pc, 10*time.Second)
	if err != nil {
		return errs.New(errs.KindGeneral, "gather candidates", err)
	}
	return s.write(SignalMessage{Type: "answer", SDP: local.SDP})
}

func (s *Signaler) write(msg SignalMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("signaling socket closed")
	}
	return s.conn.WriteJSON(msg)
}

// Close tears the signaling socket down; Run returns afterwards.
func (s *Signaler) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}
