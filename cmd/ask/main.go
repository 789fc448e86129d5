package main

import (
	"context"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/daniilk/voice-assistant/backend/internal/audio"
	"github.com/daniilk/voice-assistant/backend/internal/config"
	"github.com/daniilk/voice-assistant/backend/internal/service/assistant"
	"github.com/daniilk/voice-assistant/backend/internal/service/speech"
	"github.com/daniilk/voice-assistant/backend/internal/service/wolfram"
	"github.com/daniilk/voice-assistant/backend/internal/telemetry"
	"github.com/daniilk/voice-assistant/backend/internal/tui"
)

const sessionID = "terminal"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ask: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Loaded before the logger exists; reported once logs go to the file.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// The terminal belongs to the UI, so logs only go to the file.
	logFile, err := telemetry.InitLogger(cfg.Telemetry, false)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logFile.Close()

	reportEnvLoad(envErr)

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.Printf("[ask] telemetry disabled: %v", err)
		shutdownTelemetry = func() {}
	}
	defer shutdownTelemetry()

	client, err := wolfram.NewClientFromConfig(ctx, cfg.Wolfram, wolfram.EnvironmentStore)
	if err != nil {
		return err
	}

	var (
		speaker assistant.Speaker
		voice   assistant.VoiceSource
	)
	if cfg.Speech.Enabled {
		speechService := speech.NewService(cfg.Speech.ServiceConfig())
		speaker = audio.NewPlayer(sessionID, speechService, cfg.Voice.PlayerCmd)
		voice = audio.NewRecorder(sessionID, speechService, cfg.Voice.RecordCmd, "wav", cfg.Voice.Language)
	} else {
		log.Println("[ask] speech credentials not configured, voice features disabled")
	}

	orchestrator, err := assistant.New(assistant.Options{
		SessionID: sessionID,
		Client:    client,
		Speaker:   speaker,
	})
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	p := tea.NewProgram(tui.NewModel(orchestrator, voice), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}

func reportEnvLoad(err error) {
	if err != nil {
		log.Printf("[ask] failed to load .env file, using system environment only: %v", err)
	}
}
