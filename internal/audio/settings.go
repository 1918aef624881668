package audio

// Settings is the live-mutable audio configuration. JSON tags are the
// snake_case names the backend expects in audio_settings envelopes.
type Settings struct {
	SampleRate       int     `json:"sample_rate"`
	Channels         int     `json:"channels"`
	VADThreshold     float64 `json:"vad_threshold"`
	EchoCancellation bool    `json:"echo_cancellation"`
	NoiseSuppression bool    `json:"noise_suppression"`
}

func DefaultSettings() Settings {
	return Settings{
		SampleRate:       24000,
		Channels:         1,
		VADThreshold:     0.2,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}
