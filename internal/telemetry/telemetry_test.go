package telemetry

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daniilk/voice-assistant/backend/internal/config"
)

func TestInitLoggerWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.TelemetryConfig{LogDir: dir, LogFile: "test.log"}

	prevOut, prevFlags := log.Writer(), log.Flags()
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})

	closer, err := InitLogger(cfg, false)
	require.NoError(t, err)

	log.Printf("[test] hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "[test] hello")
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}
