// fake-backend serves the agent registry, chat socket and voice socket in
// memory so the client can be exercised without the real services. Voice
// recordings are echoed back as the reply.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/ent0n29/synthwave/internal/fakebackend"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	defaultAddr := os.Getenv("FAKE_BACKEND_ADDR")
	if defaultAddr == "" {
		defaultAddr = ":8000"
	}
	var addr string
	var shutdownTimeout time.Duration
	flagSet := pflag.NewFlagSet("fake-backend", pflag.ExitOnError)
	flagSet.StringVar(&addr, "addr", defaultAddr, "listen address")
	flagSet.DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "graceful shutdown limit")
	_ = flagSet.Parse(os.Args[1:])

	backend := fakebackend.New(logger.With("component", "fakebackend"), nil)
	server := &http.Server{
		Addr:              addr,
		Handler:           backend.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("fake backend listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		_ = server.Close()
	}
	logger.Info("shutdown complete")
}
