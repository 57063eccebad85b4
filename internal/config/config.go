package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the chat client.
type Config struct {
	// APIURL is the REST base of the agent backend. The chat socket base is
	// derived from it.
	APIURL string
	// VoiceWSURL is the voice-chat socket. It is configured separately from
	// APIURL because the voice backend historically lives on its own port.
	VoiceWSURL string

	HTTPTimeout time.Duration

	LogLevel slog.Level
	LogFile  string

	MetricsAddr      string
	MetricsNamespace string

	AudioBackend           string
	AudioCaptureCommand    []string
	AudioCaptureRawPCM     bool
	AudioCaptureSampleRate int
	AudioPlaybackCommand   []string
}

// Load reads environment variables and applies defaults.
func Load() (Config, error) {
	cfg := Config{
		APIURL:                 envOrDefault("API_URL", "http://localhost:8000"),
		VoiceWSURL:             envOrDefault("VOICE_WS_URL", "ws://localhost:8080/api/ws/voice-chat"),
		LogFile:                envOrDefault("APP_LOG_FILE", "synthwave.log"),
		MetricsAddr:            strings.TrimSpace(os.Getenv("APP_METRICS_ADDR")),
		MetricsNamespace:       envOrDefault("APP_METRICS_NAMESPACE", "synthwave"),
		AudioBackend:           strings.ToLower(envOrDefault("AUDIO_BACKEND", "auto")),
		AudioCaptureCommand:    strings.Fields(envOrDefault("AUDIO_CAPTURE_COMMAND", "arecord -q -f S16_LE -r 16000 -c 1 -t raw")),
		AudioCaptureRawPCM:     true,
		AudioCaptureSampleRate: 16000,
		AudioPlaybackCommand:   strings.Fields(envOrDefault("AUDIO_PLAYBACK_COMMAND", "ffplay -nodisp -autoexit -loglevel quiet -")),
		// Zero keeps requests unbounded.
		HTTPTimeout: 0,
		LogLevel:    slog.LevelInfo,
	}

	var err error
	cfg.HTTPTimeout, err = durationFromEnv("APP_HTTP_TIMEOUT", cfg.HTTPTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel, err = levelFromEnv("APP_LOG_LEVEL", cfg.LogLevel)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioCaptureRawPCM, err = boolFromEnv("AUDIO_CAPTURE_RAW_PCM", cfg.AudioCaptureRawPCM)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioCaptureSampleRate, err = intFromEnv("AUDIO_CAPTURE_SAMPLE_RATE", cfg.AudioCaptureSampleRate)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that may also have been overridden by flags.
func (c Config) Validate() error {
	if err := checkURL("API_URL", c.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("VOICE_WS_URL", c.VoiceWSURL, "ws", "wss"); err != nil {
		return err
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("APP_HTTP_TIMEOUT must be >= 0")
	}
	switch c.AudioBackend {
	case "auto", "command", "mock":
	default:
		return fmt.Errorf("invalid AUDIO_BACKEND: %q (expected auto|command|mock)", c.AudioBackend)
	}
	if c.AudioCaptureSampleRate <= 0 {
		return fmt.Errorf("AUDIO_CAPTURE_SAMPLE_RATE must be positive")
	}
	if c.AudioBackend == "command" {
		if len(c.AudioCaptureCommand) == 0 {
			return fmt.Errorf("AUDIO_CAPTURE_COMMAND is required when AUDIO_BACKEND=command")
		}
		if len(c.AudioPlaybackCommand) == 0 {
			return fmt.Errorf("AUDIO_PLAYBACK_COMMAND is required when AUDIO_BACKEND=command")
		}
	}
	return nil
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s parse error: %w", key, err)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %s URL, got %q", key, strings.Join(schemes, "/"), raw)
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	if v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func levelFromEnv(key string, fallback slog.Level) (slog.Level, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return lvl, nil
}
