package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"

	speechmodel "github.com/daniilk/voice-assistant/backend/internal/model/speech"
	"github.com/daniilk/voice-assistant/backend/internal/service/assistant"
)

// Player speaks through a local player command. Each utterance is synthesized,
// written to a temporary file and handed to the command as its last argument.
type Player struct {
	synth     assistant.Synthesizer
	command   []string
	sessionID string
	ready     bool

	mu      sync.Mutex
	gen     uint64
	current *exec.Cmd
}

// NewPlayer returns a player. It is ready only when synth is ready and the
// player binary can be found.
func NewPlayer(sessionID string, synth assistant.Synthesizer, command []string) *Player {
	p := &Player{
		synth:     synth,
		command:   command,
		sessionID: sessionID,
	}
	if len(command) == 0 {
		log.Printf("[audio] no player command configured")
		return p
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		log.Printf("[audio] player %s not found: %v", command[0], err)
		return p
	}
	p.ready = true
	return p
}

func (p *Player) Ready() bool {
	return p.ready && p.synth != nil && p.synth.Ready()
}

// Speak blocks until playback finishes, fails or is stopped.
func (p *Player) Speak(ctx context.Context, utteranceID, text string) error {
	if !p.Ready() {
		return errors.New(assistant.MsgTTSNotReady)
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.killLocked()
	p.mu.Unlock()

	resp, err := p.synth.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
		SessionID:   p.sessionID,
		UtteranceID: utteranceID,
		Text:        text,
		Format:      "mp3",
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return err
	}

	format := resp.Format
	if format == "" {
		format = "mp3"
	}
	file, err := os.CreateTemp("", "utterance-*."+format)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	defer os.Remove(file.Name())

	if _, err := file.Write(resp.AudioData); err != nil {
		file.Close()
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	args := append(append([]string{}, p.command[1:]...), file.Name())
	cmd := exec.CommandContext(ctx, p.command[0], args...)

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return context.Canceled
	}
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to start player: %w", err)
	}
	p.current = cmd
	p.mu.Unlock()

	err = cmd.Wait()

	p.mu.Lock()
	stopped := gen != p.gen
	if p.current == cmd {
		p.current = nil
	}
	p.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case stopped:
		return context.Canceled
	case err != nil:
		return fmt.Errorf("player failed: %w", err)
	}
	return nil
}

// Stop kills the current playback.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.killLocked()
}

func (p *Player) killLocked() {
	if p.current == nil || p.current.Process == nil {
		return
	}
	if err := p.current.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Printf("[audio] failed to stop player: %v", err)
	}
	p.current = nil
}
