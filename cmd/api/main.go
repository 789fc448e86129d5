package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/daniilk/voice-assistant/backend/internal/config"
	"github.com/daniilk/voice-assistant/backend/internal/handler"
	"github.com/daniilk/voice-assistant/backend/internal/service/assistant"
	"github.com/daniilk/voice-assistant/backend/internal/service/session"
	"github.com/daniilk/voice-assistant/backend/internal/service/speech"
	"github.com/daniilk/voice-assistant/backend/internal/service/wolfram"
	"github.com/daniilk/voice-assistant/backend/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logFile, err := telemetry.InitLogger(cfg.Telemetry, true)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logFile.Close()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.Printf("warning: failed to initialize telemetry: %v", err)
		shutdownTelemetry = func() {}
	}
	defer shutdownTelemetry()

	client, err := wolfram.NewClientFromConfig(ctx, cfg.Wolfram, wolfram.EnvironmentStore)
	if err != nil {
		log.Fatalf("failed to initialize query client: %v", err)
	}

	var speechService *speech.Service
	var synth assistant.Synthesizer
	if cfg.Speech.Enabled {
		speechService = speech.NewService(cfg.Speech.ServiceConfig())
		synth = speechService
		log.Println("Speech service initialized successfully")
	} else {
		log.Println("speech credentials not configured, text-to-speech is not ready")
	}

	sessions := session.NewService(session.NewFactory(client, synth))
	defer sessions.CloseAll()

	router := handler.NewRouter(sessions, client, speechService, cfg.Voice.Language)

	startServer(ctx, cfg.Server, router, sessions.CloseAll)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, onShutdown func()) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Closing sessions ends open event streams and sockets so Shutdown can finish.
	srv.RegisterOnShutdown(onShutdown)

	log.Printf("voice assistant backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
