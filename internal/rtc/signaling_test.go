package rtc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRoom is a signaling endpoint that records frames and lets tests
// push replies.
type fakeRoom struct {
	srv    *httptest.Server
	frames chan SignalMessage
	conns  chan *websocket.Conn
}

func newFakeRoom(t *testing.T) *fakeRoom {
	t.Helper()
	fr := &fakeRoom{
		frames: make(chan SignalMessage, 16),
		conns:  make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}
	fr.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/signal/") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fr.conns <- conn
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg SignalMessage
			if json.Unmarshal(raw, &msg) == nil {
				fr.frames <- msg
			}
		}
	}))
	t.Cleanup(fr.srv.Close)
	return fr
}

func (fr *fakeRoom) url() string {
	return "ws" + strings.TrimPrefix(fr.srv.URL, "http")
}

func (fr *fakeRoom) next(t *testing.T, timeout time.Duration) SignalMessage {
	t.Helper()
	select {
	case msg := <-fr.frames:
		return msg
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a signal frame")
		return SignalMessage{}
	}
}

func TestCalleePollsForOffer(t *testing.T) {
	fr := newFakeRoom(t)

	peer, err := NewPeer(nil)
	require.NoError(t, err)
	defer peer.Close()

	s := NewSignaler(fr.url(), "room1", RoleCallee, peer, nil)
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run() }()

	msg := fr.next(t, 2*time.Second)
	assert.Equal(t, "get-offer", msg.Type)

	// No caller yet: the callee backs off and asks again.
	conn := <-fr.conns
	require.NoError(t, conn.WriteJSON(SignalMessage{Type: "no-offer"}))
	msg = fr.next(t, 3*time.Second)
	assert.Equal(t, "get-offer", msg.Type)

	require.NoError(t, s.Close())
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestSignalerDialFailure(t *testing.T) {
	peer, err := NewPeer(nil)
	require.NoError(t, err)
	defer peer.Close()

	s := NewSignaler("ws://127.0.0.1:1", "room1", RoleCallee, peer, nil)
	assert.Error(t, s.Run())
}

func TestSignalMessageWireShape(t *testing.T) {
	raw, err := json.Marshal(SignalMessage{Type: "offer", SDP: "v=0..."})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0..."}`, string(raw))

	var msg SignalMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 50000 typ host","sdpMid":"0"}}`), &msg))
	require.NotNil(t, msg.Candidate)
	assert.Contains(t, msg.Candidate.Candidate, "typ host")
}
