package app

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/synthwave/internal/config"
	"github.com/ent0n29/synthwave/internal/voice"
)

func testConfig() config.Config {
	return config.Config{
		APIURL:                 "http://localhost:8000",
		VoiceWSURL:             "ws://localhost:8080/api/ws/voice-chat",
		MetricsNamespace:       "test_app_" + time.Now().Format("150405") + "_" + time.Now().Format("000000000"),
		AudioBackend:           "mock",
		AudioCaptureRawPCM:     true,
		AudioCaptureSampleRate: 16000,
	}
}

func TestBuildWithMockAudio(t *testing.T) {
	res, err := Build(testConfig(), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if res.A2A == nil || res.Voice == nil || res.Client == nil || res.Metrics == nil {
		t.Fatalf("Build() left components nil: %+v", res)
	}
	if res.Audio.Backend != "mock" {
		t.Fatalf("audio backend = %q, want mock", res.Audio.Backend)
	}
	if got := res.Client.ChatURL(3); got != "ws://localhost:8000/api/ws/chat/3" {
		t.Fatalf("ChatURL() = %q", got)
	}
	if res.Voice.Snapshot().Status != voice.StatusIdle {
		t.Fatalf("voice store should start idle")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.VoiceWSURL = "http://localhost:8080/api/ws/voice-chat"
	if _, err := Build(cfg, nil); err == nil {
		t.Fatalf("Build() error = nil, want VOICE_WS_URL rejection")
	}
}

func TestResolveAudioAutoFallsBackToMock(t *testing.T) {
	cfg := testConfig()
	cfg.AudioBackend = "auto"
	cfg.AudioCaptureCommand = []string{"definitely-not-a-real-recorder-synthwave"}
	cfg.AudioPlaybackCommand = []string{"definitely-not-a-real-player-synthwave"}

	setup, err := resolveAudio(cfg, discardLogger())
	if err != nil {
		t.Fatalf("resolveAudio() error = %v", err)
	}
	if setup.resolved != "mock" || !strings.Contains(setup.detail, "capture") {
		t.Fatalf("setup = %+v, want mock fallback naming the missing capture", setup)
	}
	if _, ok := setup.capture.(*voice.MockCapture); !ok {
		t.Fatalf("capture = %T, want *voice.MockCapture", setup.capture)
	}
}

func TestResolveAudioCommandRequiresPrograms(t *testing.T) {
	cfg := testConfig()
	cfg.AudioBackend = "command"
	cfg.AudioCaptureCommand = []string{"definitely-not-a-real-recorder-synthwave"}
	cfg.AudioPlaybackCommand = []string{"definitely-not-a-real-player-synthwave"}

	if _, err := resolveAudio(cfg, discardLogger()); err == nil {
		t.Fatalf("resolveAudio() error = nil, want missing command")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
