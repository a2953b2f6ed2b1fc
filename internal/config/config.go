package config

import (
	"os"
	"strconv"
	"time"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// HTTP control API
	Port int // 0 disables the API

	// Remote mixer
	MixerURL       string // base URL, session id appended
	MixerTransport string // websocket or webrtc
	OfferURL       string // WebRTC SDP offer endpoint
	ConnectTimeout time.Duration
	SeekSettle     time.Duration
	SeekConfirm    time.Duration
	SeekResume     time.Duration
	ScheduleLead   time.Duration

	// Session audio retrieval
	FetchURL    string
	FetchAPIKey string
	AudioDir    string // shared volume mount point

	// Output device
	SampleRate    int
	Channels      int
	Renderer      string // auto, realtime, block, headless
	RealtimeBlock int    // frames per low-latency block
	FallbackBlock int    // frames per fallback block
	CapturePath   string // headless renderer WAV capture

	// Initial mix
	BlendRatio   float64
	MasterGainDB float64
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port: envInt("ABMIX_PORT", 8090),

		MixerURL:       envStr("ABMIX_MIXER_URL", "ws://localhost:8000/ws"),
		MixerTransport: envStr("ABMIX_MIXER_TRANSPORT", "websocket"),
		OfferURL:       envStr("ABMIX_OFFER_URL", "http://localhost:8000/offer"),
		ConnectTimeout: envMillis("ABMIX_CONNECT_TIMEOUT_MS", 5000),
		SeekSettle:     envMillis("ABMIX_SEEK_SETTLE_MS", 50),
		SeekConfirm:    envMillis("ABMIX_SEEK_CONFIRM_MS", 200),
		SeekResume:     envMillis("ABMIX_SEEK_RESUME_MS", 150),
		ScheduleLead:   envMillis("ABMIX_SCHEDULE_LEAD_MS", 10),

		FetchURL:    envStr("ABMIX_FETCH_URL", "http://localhost:8000"),
		FetchAPIKey: envStr("ABMIX_FETCH_API_KEY", ""),
		AudioDir:    envStr("ABMIX_AUDIO_DIR", ""),

		SampleRate:    envInt("ABMIX_SAMPLE_RATE", 44100),
		Channels:      envInt("ABMIX_CHANNELS", 2),
		Renderer:      envStr("ABMIX_RENDERER", "auto"),
		RealtimeBlock: envInt("ABMIX_REALTIME_BLOCK", 128),
		FallbackBlock: envInt("ABMIX_FALLBACK_BLOCK", 4096),
		CapturePath:   envStr("ABMIX_CAPTURE_PATH", ""),

		BlendRatio:   envFloat("ABMIX_BLEND", 0.5),
		MasterGainDB: envFloat("ABMIX_MASTER_GAIN_DB", 0),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envMillis reads a whole number of milliseconds.
func envMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
