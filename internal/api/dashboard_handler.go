package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxbridge/voxbridge/internal/app"
	"github.com/voxbridge/voxbridge/internal/audio"
	"github.com/voxbridge/voxbridge/internal/repository"
	"github.com/voxbridge/voxbridge/internal/video"
)

// DashboardHandler serves the local status/control API.
type DashboardHandler struct {
	app         *app.App
	audioCap    *audio.Capture
	videoCap    *video.Capture
	sessions    *repository.SessionRepository
	transcripts *repository.TranscriptRepository
	sentiments  *repository.SentimentRepository
}

func NewDashboardHandler(a *app.App, audioCap *audio.Capture, videoCap *video.Capture, sessions *repository.SessionRepository, transcripts *repository.TranscriptRepository, sentiments *repository.SentimentRepository) *DashboardHandler {
	return &DashboardHandler{
		app:         a,
		audioCap:    audioCap,
		videoCap:    videoCap,
		sessions:    sessions,
		transcripts: transcripts,
		sentiments:  sentiments,
	}
}

func (h *DashboardHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        h.app.Status(),
		"notifications": h.app.Notifications().List(),
	})
}

func (h *DashboardHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *DashboardHandler) GetTranscripts(c *gin.Context) {
	sessionID := c.Param("id")
	transcripts, err := h.transcripts.FindBySession(sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":  sessionID,
		"transcripts": transcripts,
		"count":       len(transcripts),
	})
}

func (h *DashboardHandler) GetSentiments(c *gin.Context) {
	sessionID := c.Param("id")
	records, err := h.sentiments.FindBySession(sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"sentiments": records,
		"count":      len(records),
	})
}

func (h *DashboardHandler) ListDevices(c *gin.Context) {
	audioDevices, err := h.audioCap.Devices()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"audio_inputs": audioDevices,
		"video_inputs": video.CameraDevices(),
	})
}

func (h *DashboardHandler) UpdateAudioSettings(c *gin.Context) {
	var settings audio.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.audioCap.UpdateSettings(settings)
	// Best effort; the server confirms with settings_updated.
	if err := h.app.Client().SendAudioSettings(h.audioCap.Settings()); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "stored locally", "settings": h.audioCap.Settings()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "settings": h.audioCap.Settings()})
}

func (h *DashboardHandler) UpdateVideoSettings(c *gin.Context) {
	var settings video.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.videoCap.UpdateSettings(settings)
	c.JSON(http.StatusOK, gin.H{"status": "success", "settings": h.videoCap.Settings()})
}

func (h *DashboardHandler) StartRecording(c *gin.Context) {
	if err := h.app.StartRecording(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *DashboardHandler) StopRecording(c *gin.Context) {
	if err := h.app.StopRecording(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *DashboardHandler) StartVideo(c *gin.Context) {
	if err := h.app.StartVideo(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *DashboardHandler) StopVideo(c *gin.Context) {
	if err := h.app.StopVideo(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *DashboardHandler) ToggleMute(c *gin.Context) {
	if err := h.app.ToggleMute(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "muted": h.app.Muted()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "muted": h.app.Muted()})
}

func (h *DashboardHandler) Snapshot(c *gin.Context) {
	frame, err := h.videoCap.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", frame.JPEG)
}

func (h *DashboardHandler) SwitchAudioDevice(c *gin.Context) {
	var req struct {
		ID int `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.audioCap.SwitchDevice(req.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *DashboardHandler) SwitchVideoDevice(c *gin.Context) {
	var req struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.videoCap.SwitchDevice(req.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *DashboardHandler) Unmute(c *gin.Context) {
	if err := h.app.SetMuted(false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "muted": h.app.Muted()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "muted": h.app.Muted()})
}

func (h *DashboardHandler) StartCall(c *gin.Context) {
	var req struct {
		Room string `json:"room"`
	}
	// An empty body joins the configured default room.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := h.app.StartCall(req.Room); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	room, _ := h.app.CallActive()
	c.JSON(http.StatusOK, gin.H{"status": "success", "room": room})
}

func (h *DashboardHandler) StopCall(c *gin.Context) {
	if err := h.app.StopCall(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *DashboardHandler) DismissNotification(c *gin.Context) {
	h.app.Notifications().Dismiss(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *DashboardHandler) GetChatSuggestions(c *gin.Context) {
	if err := h.app.Client().GetChatSuggestions(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}

// RegisterRoutes mounts the dashboard API on the router.
func RegisterRoutes(r *gin.Engine, h *DashboardHandler) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiGroup := r.Group("/api/v1")
	{
		apiGroup.GET("/status", h.GetStatus)
		apiGroup.GET("/sessions", h.ListSessions)
		apiGroup.GET("/sessions/:id/transcripts", h.GetTranscripts)
		apiGroup.GET("/sessions/:id/sentiments", h.GetSentiments)
		apiGroup.GET("/devices", h.ListDevices)
		apiGroup.PUT("/settings/audio", h.UpdateAudioSettings)
		apiGroup.PUT("/settings/video", h.UpdateVideoSettings)
		apiGroup.POST("/recording/start", h.StartRecording)
		apiGroup.POST("/recording/stop", h.StopRecording)
		apiGroup.POST("/video/start", h.StartVideo)
		apiGroup.POST("/video/stop", h.StopVideo)
		apiGroup.POST("/video/switch", h.SwitchVideoDevice)
		apiGroup.POST("/audio/switch", h.SwitchAudioDevice)
		apiGroup.GET("/video/snapshot", h.Snapshot)
		apiGroup.POST("/mute", h.ToggleMute)
		apiGroup.POST("/unmute", h.Unmute)
		apiGroup.POST("/call/start", h.StartCall)
		apiGroup.POST("/call/stop", h.StopCall)
		apiGroup.DELETE("/notifications/:id", h.DismissNotification)
		apiGroup.POST("/suggestions", h.GetChatSuggestions)
	}
}
