// synthwave is a terminal client for a voice assistant backend and an
// agent-to-agent chat service. The V2V tab records an utterance and plays
// the spoken reply; the A2A tab registers an agent and chats with peers
// over REST plus a push socket.
//
// Settings come from the environment (optionally a .env file); the flags
// below override the most common ones. Log records go to a JSON file and
// warnings also appear in the status bar.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/ent0n29/synthwave/internal/app"
	"github.com/ent0n29/synthwave/internal/config"
	"github.com/ent0n29/synthwave/internal/observability"
	"github.com/ent0n29/synthwave/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		viewName   string
		logFile    string
		apiURL     string
		voiceWSURL string
		audio      string
	)

	flagSet := pflag.NewFlagSet("synthwave", pflag.ContinueOnError)
	flagSet.StringVar(&viewName, "view", "voice", "initial tab: voice or a2a")
	flagSet.StringVar(&logFile, "log-file", "", "write JSON log records to this file (default: APP_LOG_FILE)")
	flagSet.StringVar(&apiURL, "api-url", "", "agent backend REST base URL (default: API_URL)")
	flagSet.StringVar(&voiceWSURL, "voice-ws-url", "", "voice chat socket URL (default: VOICE_WS_URL)")
	flagSet.StringVar(&audio, "audio", "", "audio backend: auto, command or mock (default: AUDIO_BACKEND)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	initialView, ok := tui.ParseView(viewName)
	if !ok {
		return fmt.Errorf("invalid --view %q (expected voice|a2a)", viewName)
	}

	// A missing .env is normal; the environment alone is enough.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if voiceWSURL != "" {
		cfg.VoiceWSURL = voiceWSURL
	}
	if audio != "" {
		cfg.AudioBackend = audio
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}

	tuiHandler := tui.NewLogHandler(slog.LevelWarn)
	handlers := tui.FanoutHandler{tuiHandler}
	if cfg.LogFile != "" {
		fileHandler, closeFile, err := openFileLogHandler(cfg.LogFile, cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("cannot open log file %s: %w", cfg.LogFile, err)
		}
		defer closeFile()
		handlers = append(handlers, fileHandler)
	}
	logger := slog.New(handlers)

	res, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer res.Cleanup()
	logger.Info("client starting",
		"api_url", cfg.APIURL,
		"voice_ws_url", cfg.VoiceWSURL,
		"audio", res.Audio.Detail,
	)

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, res.Metrics, logger)
		defer stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := tui.NewModel(ctx, res.A2A, res.Voice, tui.WithInitialView(initialView))
	program := tea.NewProgram(model, tea.WithAltScreen())

	tuiHandler.SetProgram(program)
	tui.Bind(program, res.A2A, res.Voice)

	_, err = program.Run()
	return err
}

// openFileLogHandler creates a JSON handler appending to path.
func openFileLogHandler(path string, level slog.Level) (slog.Handler, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return handler, func() { file.Close() }, nil
}

// metricsRouter serves the Prometheus registry and the rolling latency
// percentiles.
func metricsRouter(metrics *observability.Metrics) http.Handler {
	router := chi.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.Get("/debug/latency", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(metrics.SnapshotLatency())
	})
	return router
}

// serveMetrics listens on addr until the returned stop is called.
func serveMetrics(addr string, metrics *observability.Metrics, logger *slog.Logger) func() {
	server := &http.Server{
		Addr:              addr,
		Handler:           metricsRouter(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "addr", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
