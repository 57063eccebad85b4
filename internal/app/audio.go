package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/synthwave/internal/config"
	"github.com/ent0n29/synthwave/internal/voice"
)

type audioSetup struct {
	capture  voice.Capture
	player   voice.Player
	resolved string
	detail   string
}

// resolveAudio picks the capture and playback devices. "auto" prefers the
// external commands and falls back to the mock devices when either program
// is missing, so the client always starts.
func resolveAudio(cfg config.Config, logger *slog.Logger) (audioSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.AudioBackend))
	if mode == "" {
		mode = "auto"
	}

	tryCommand := func() (audioSetup, error) {
		if err := voice.CommandAvailable(cfg.AudioCaptureCommand); err != nil {
			return audioSetup{}, fmt.Errorf("capture: %w", err)
		}
		if err := voice.CommandAvailable(cfg.AudioPlaybackCommand); err != nil {
			return audioSetup{}, fmt.Errorf("playback: %w", err)
		}
		return audioSetup{
			capture: &voice.CommandCapture{
				Command:    cfg.AudioCaptureCommand,
				RawPCM:     cfg.AudioCaptureRawPCM,
				SampleRate: cfg.AudioCaptureSampleRate,
				Logger:     logger,
			},
			player: &voice.CommandPlayer{
				Command: cfg.AudioPlaybackCommand,
				Logger:  logger,
			},
			resolved: "command",
			detail:   fmt.Sprintf("command (%s / %s)", cfg.AudioCaptureCommand[0], cfg.AudioPlaybackCommand[0]),
		}, nil
	}

	mock := func(detail string) audioSetup {
		capture := voice.NewMockCapture()
		capture.SampleRate = cfg.AudioCaptureSampleRate
		return audioSetup{
			capture:  capture,
			player:   voice.NewMockPlayer(),
			resolved: "mock",
			detail:   detail,
		}
	}

	switch mode {
	case "command":
		setup, err := tryCommand()
		if err != nil {
			return audioSetup{}, fmt.Errorf("AUDIO_BACKEND=command but %w", err)
		}
		return setup, nil
	case "mock":
		return mock("mock"), nil
	case "auto":
		setup, err := tryCommand()
		if err == nil {
			return setup, nil
		}
		logger.Warn("audio commands unavailable, using mock devices", "error", err)
		return mock("mock (" + err.Error() + ")"), nil
	default:
		return audioSetup{}, fmt.Errorf("invalid AUDIO_BACKEND: %q (expected auto|command|mock)", cfg.AudioBackend)
	}
}
