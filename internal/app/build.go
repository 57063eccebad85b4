package app

import (
	"log/slog"

	"github.com/ent0n29/synthwave/internal/a2a"
	"github.com/ent0n29/synthwave/internal/config"
	"github.com/ent0n29/synthwave/internal/observability"
	"github.com/ent0n29/synthwave/internal/voice"
)

type AudioInfo struct {
	Backend string
	Detail  string
}

type BuildResult struct {
	Config  config.Config
	Client  *a2a.Client
	A2A     *a2a.Store
	Voice   *voice.Store
	Metrics *observability.Metrics
	Audio   AudioInfo

	// Cleanup releases sockets, recorder and playback on shutdown.
	Cleanup func()
}

// Build wires both stores from cfg. The stores are owned by the caller and
// handed to the views explicitly.
func Build(cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	audioSetup, err := resolveAudio(cfg, logger)
	if err != nil {
		return nil, err
	}

	client := a2a.NewClient(cfg.APIURL, cfg.HTTPTimeout)
	chat := a2a.NewStore(client, logger, metrics)
	talk := voice.NewStore(voice.NewWSDialer(cfg.VoiceWSURL), audioSetup.capture, audioSetup.player, logger, metrics)

	cleanup := func() {
		chat.DisconnectWebSocket()
		talk.Close()
	}

	return &BuildResult{
		Config:  cfg,
		Client:  client,
		A2A:     chat,
		Voice:   talk,
		Metrics: metrics,
		Audio: AudioInfo{
			Backend: audioSetup.resolved,
			Detail:  audioSetup.detail,
		},
		Cleanup: cleanup,
	}, nil
}
