package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/voxbridge/voxbridge/internal/app"
	"github.com/voxbridge/voxbridge/internal/audio"
	"github.com/voxbridge/voxbridge/internal/model"
	"github.com/voxbridge/voxbridge/internal/repository"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/internal/video"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
}

// newTestEnv wires the full handler stack against an in-memory store
// and an unreachable backend, which is the dashboard's offline mode.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Session{}, &model.Transcript{}, &model.SentimentRecord{}))

	audioCap := audio.NewCapture(audio.DefaultSettings(), 50, 100)
	videoCap := video.NewCapture(nil, video.DefaultSettings())
	repos := app.Repos{
		Sessions:    repository.NewSessionRepository(db),
		Transcripts: repository.NewTranscriptRepository(db),
		Sentiments:  repository.NewSentimentRepository(db),
	}
	a := app.New(session.Options{URL: "ws://127.0.0.1:1"}, audioCap, videoCap, nil, repos)

	r := gin.New()
	h := NewDashboardHandler(a, audioCap, videoCap, repos.Sessions, repos.Transcripts, repos.Sentiments)
	RegisterRoutes(r, h)
	return &testEnv{router: r, db: db}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestPingRoute(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status app.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Status.Connected)
	assert.False(t, resp.Status.Recording)
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&model.Session{ID: "session_x", StartedAt: time.Now(), Status: "active"}).Error)

	w := env.do(http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var sessions []model.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "session_x", sessions[0].ID)
}

func TestGetTranscripts(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&model.Transcript{SessionID: "session_x", Text: "hello", Timestamp: time.Now()}).Error)

	w := env.do(http.MethodGet, "/api/v1/sessions/session_x/transcripts", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		SessionID   string             `json:"session_id"`
		Transcripts []model.Transcript `json:"transcripts"`
		Count       int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "session_x", resp.SessionID)
	assert.Equal(t, 1, resp.Count)
}

func TestUpdateVideoSettingsClampsQuality(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPut, "/api/v1/settings/video", `{"frame_rate":10,"quality":3.0}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Settings video.Settings `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Settings.FrameRate)
	assert.InDelta(t, 1.0, resp.Settings.Quality, 1e-9)
}

func TestUpdateAudioSettingsOffline(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPut, "/api/v1/settings/audio", `{"vad_threshold":0.5}`)
	require.Equal(t, http.StatusOK, w.Code)
	// Stored locally even though the backend is unreachable.
	assert.Contains(t, w.Body.String(), "stored locally")
	assert.Contains(t, w.Body.String(), "0.5")
}

func TestUpdateSettingsRejectsBadJSON(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/v1/settings/audio", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/v1/settings/video", `{`).Code)
}

func TestToggleMuteOffline(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/v1/mute", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"muted":false`)
}

func TestSnapshotWithoutVideo(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/v1/video/snapshot", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSuggestionsOffline(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/v1/suggestions", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDismissNotification(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodDelete, "/api/v1/notifications/some-id", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnmuteWhenAlreadyUnmuted(t *testing.T) {
	env := newTestEnv(t)
	// Already unmuted: nothing to transmit, so this succeeds offline.
	w := env.do(http.MethodPost, "/api/v1/unmute", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"muted":false`)
}
