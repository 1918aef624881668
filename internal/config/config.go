package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Video     VideoConfig     `mapstructure:"video"`
	Session   SessionConfig   `mapstructure:"session"`
	Signaling SignalingConfig `mapstructure:"signaling"`
	Log       LogConfig       `mapstructure:"log"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ServerConfig is the local dashboard listener.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// BackendConfig locates the AI backend this client streams to.
type BackendConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	EmbedPort      int    `mapstructure:"embed_port"`
	HealthInterval string `mapstructure:"health_interval"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AudioConfig struct {
	SampleRate       int     `mapstructure:"sample_rate"`
	Channels         int     `mapstructure:"channels"`
	VADThreshold     float64 `mapstructure:"vad_threshold"`
	EchoCancellation bool    `mapstructure:"echo_cancellation"`
	NoiseSuppression bool    `mapstructure:"noise_suppression"`
	FrameMs          int     `mapstructure:"frame_ms"`
	ChunkMs          int     `mapstructure:"chunk_ms"`
}

type VideoConfig struct {
	FrameRate int     `mapstructure:"frame_rate"`
	Quality   float64 `mapstructure:"quality"`
	Width     int     `mapstructure:"width"`
	Height    int     `mapstructure:"height"`
}

type SessionConfig struct {
	AutoReconnect        bool `mapstructure:"auto_reconnect"`
	MaxReconnectAttempts int  `mapstructure:"max_reconnect_attempts"`
}

type SignalingConfig struct {
	STUNServers []string `mapstructure:"stun_servers"`
	Room        string   `mapstructure:"room"`
}

var AppConfig Config

func LoadConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("session.auto_reconnect", true)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults. Error: %v", err)
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	if AppConfig.Server.Port == "" {
		AppConfig.Server.Port = ":3000"
	}
	if AppConfig.Backend.Host == "" {
		AppConfig.Backend.Host = "localhost"
	}
	if AppConfig.Backend.Port <= 0 {
		AppConfig.Backend.Port = 8000
	}
	if AppConfig.Backend.EmbedPort <= 0 {
		AppConfig.Backend.EmbedPort = 7860
	}
	if AppConfig.Backend.HealthInterval == "" {
		AppConfig.Backend.HealthInterval = "5s"
	}
	if AppConfig.Database.DSN == "" {
		AppConfig.Database.DSN = "voxbridge.db"
	}
	if AppConfig.Audio.SampleRate <= 0 {
		AppConfig.Audio.SampleRate = 24000
	}
	if AppConfig.Audio.Channels <= 0 {
		AppConfig.Audio.Channels = 1
	}
	if AppConfig.Audio.VADThreshold <= 0 {
		AppConfig.Audio.VADThreshold = 0.2
	}
	if AppConfig.Audio.FrameMs <= 0 {
		AppConfig.Audio.FrameMs = 50
	}
	if AppConfig.Audio.ChunkMs <= 0 {
		AppConfig.Audio.ChunkMs = 100
	}
	if AppConfig.Video.FrameRate <= 0 {
		AppConfig.Video.FrameRate = 5
	}
	if AppConfig.Video.Quality <= 0 {
		AppConfig.Video.Quality = 0.8
	}
	if AppConfig.Video.Width <= 0 {
		AppConfig.Video.Width = 640
	}
	if AppConfig.Video.Height <= 0 {
		AppConfig.Video.Height = 480
	}
	if AppConfig.Session.MaxReconnectAttempts <= 0 {
		AppConfig.Session.MaxReconnectAttempts = 5
	}
	if len(AppConfig.Signaling.STUNServers) == 0 {
		AppConfig.Signaling.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if AppConfig.Signaling.Room == "" {
		AppConfig.Signaling.Room = "default"
	}

	log.Println("Configuration loaded successfully")
}
