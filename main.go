package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/voxbridge/voxbridge/internal/api"
	"github.com/voxbridge/voxbridge/internal/app"
	"github.com/voxbridge/voxbridge/internal/audio"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/model"
	"github.com/voxbridge/voxbridge/internal/repository"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/internal/video"
	"github.com/voxbridge/voxbridge/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	// 1. Load Config
	config.LoadConfig()
	cfg := config.AppConfig

	// 2. Init Logger
	logger.InitLogger(cfg.Log.Level)
	logger.Log.Info("Starting voxbridge client...")

	// 3. Init Database
	db := initDB(cfg.Database.DSN)

	// 4. Build services
	audioSettings := audio.Settings{
		SampleRate:       cfg.Audio.SampleRate,
		Channels:         cfg.Audio.Channels,
		VADThreshold:     cfg.Audio.VADThreshold,
		EchoCancellation: cfg.Audio.EchoCancellation,
		NoiseSuppression: cfg.Audio.NoiseSuppression,
	}
	audioCap := audio.NewCapture(audioSettings, cfg.Audio.FrameMs, cfg.Audio.ChunkMs)
	if err := audioCap.Initialize(); err != nil {
		logger.Log.Warnf("Audio unavailable: %v", err)
	}

	videoCap := video.NewCapture(video.OpenCamera, video.Settings{
		FrameRate: cfg.Video.FrameRate,
		Quality:   cfg.Video.Quality,
		Width:     cfg.Video.Width,
		Height:    cfg.Video.Height,
	})

	healthInterval, err := time.ParseDuration(cfg.Backend.HealthInterval)
	if err != nil {
		healthInterval = 5 * time.Second
	}
	health := app.NewHealthProber(
		fmt.Sprintf("http://%s:%d/api/health", cfg.Backend.Host, cfg.Backend.Port),
		fmt.Sprintf("http://%s:%d/", cfg.Backend.Host, cfg.Backend.EmbedPort),
		healthInterval,
	)

	repos := app.Repos{
		Sessions:    repository.NewSessionRepository(db),
		Transcripts: repository.NewTranscriptRepository(db),
		Sentiments:  repository.NewSentimentRepository(db),
	}

	a := app.New(session.Options{
		URL:                  fmt.Sprintf("ws://%s:%d", cfg.Backend.Host, cfg.Backend.Port),
		AutoReconnect:        cfg.Session.AutoReconnect,
		MaxReconnectAttempts: cfg.Session.MaxReconnectAttempts,
	}, audioCap, videoCap, health, repos)

	a.ConfigureCalls(app.CallConfig{
		SignalBaseURL: fmt.Sprintf("ws://%s:%d", cfg.Backend.Host, cfg.Backend.Port),
		STUNServers:   cfg.Signaling.STUNServers,
		DefaultRoom:   cfg.Signaling.Room,
	})

	health.Start()
	if err := a.Connect(""); err != nil {
		logger.Log.Warnf("Initial connect failed, dashboard still available: %v", err)
	}

	// 5. Init Router
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	handler := api.NewDashboardHandler(a, audioCap, videoCap, repos.Sessions, repos.Transcripts, repos.Sentiments)
	api.RegisterRoutes(r, handler)

	// 6. Serve until signalled
	srv := &http.Server{Addr: cfg.Server.Port, Handler: r}
	go func() {
		logger.Log.Infof("Dashboard listening on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down...")

	a.Shutdown()
	if err := audioCap.Terminate(); err != nil {
		logger.Log.Warnf("Audio teardown: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Warnf("Server shutdown: %v", err)
	}
}

func initDB(dsn string) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Log.Fatalf("Failed to open database %q: %v", dsn, err)
	}
	if err := db.AutoMigrate(&model.Session{}, &model.Transcript{}, &model.SentimentRecord{}); err != nil {
		logger.Log.Fatalf("Failed to migrate database: %v", err)
	}
	return db
}
