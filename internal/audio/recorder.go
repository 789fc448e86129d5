package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/daniilk/voice-assistant/backend/internal/service/speech"
)

// Recorder captures one question with a local recording command that writes
// audio to stdout, then transcribes it.
type Recorder struct {
	transcriber speech.Transcriber
	command     []string
	sessionID   string
	format      string
	language    string
}

// NewRecorder returns a recorder. format names the container the command
// produces.
func NewRecorder(sessionID string, transcriber speech.Transcriber, command []string, format, language string) *Recorder {
	if format == "" {
		format = "wav"
	}
	return &Recorder{
		transcriber: transcriber,
		command:     command,
		sessionID:   sessionID,
		format:      format,
		language:    language,
	}
}

// Listen records until the command exits and returns the transcription
// alternatives, best first. Cancelling ctx kills the recording.
func (r *Recorder) Listen(ctx context.Context) ([]string, error) {
	if r.transcriber == nil {
		return nil, errors.New("voice recognition is not configured")
	}
	if len(r.command) == 0 {
		return nil, errors.New("no recorder command configured")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of the command may hold stdout open after it is killed.
	cmd.WaitDelay = 500 * time.Millisecond

	log.Printf("[audio] recording with %s", strings.Join(r.command, " "))
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("recorder failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("recorder failed: %w", err)
	}
	log.Printf("[audio] recorded %d bytes", stdout.Len())

	voice := &speech.BufferedVoice{
		Transcriber: r.transcriber,
		SessionID:   r.sessionID,
		Audio:       stdout.Bytes(),
		Format:      r.format,
		Language:    r.language,
	}
	return voice.Listen(ctx)
}
