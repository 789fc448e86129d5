package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	speechmodel "github.com/daniilk/voice-assistant/backend/internal/model/speech"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

type fakeSynth struct {
	ready bool
	err   error
}

func (f *fakeSynth) Ready() bool { return f.ready }

func (f *fakeSynth) SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.TTSResponse{AudioData: []byte("audio:" + req.Text), Format: "mp3"}, nil
}

type fakeTranscriber struct {
	mu       sync.Mutex
	audio    []byte
	format   string
	language string
	alts     []string
}

func (f *fakeTranscriber) TranscribeBuffer(ctx context.Context, sessionID string, audio []byte, format, language string) (*speechmodel.ASRResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append([]byte(nil), audio...)
	f.format = format
	f.language = language
	return &speechmodel.ASRResponse{Alternatives: f.alts}, nil
}

func TestPlayerPlaysSynthesizedAudio(t *testing.T) {
	requireShell(t)

	dest := filepath.Join(t.TempDir(), "played.mp3")
	p := NewPlayer("local", &fakeSynth{ready: true}, []string{"sh", "-c", `cp "$1" "` + dest + `"`, "sh"})
	require.True(t, p.Ready())

	require.NoError(t, p.Speak(context.Background(), "Result", "3.14"))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "audio:3.14", string(data))
}

func TestPlayerStopInterruptsPlayback(t *testing.T) {
	requireShell(t)

	p := NewPlayer("local", &fakeSynth{ready: true}, []string{"sh", "-c", "sleep 5", "sh"})

	done := make(chan error, 1)
	go func() { done <- p.Speak(context.Background(), "Result", "3.14") }()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.current != nil
	}, 2*time.Second, 10*time.Millisecond)

	p.Stop()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("playback was not stopped")
	}
}

func TestPlayerNotReady(t *testing.T) {
	require.False(t, NewPlayer("local", &fakeSynth{ready: true}, nil).Ready())
	require.False(t, NewPlayer("local", &fakeSynth{ready: true}, []string{"definitely-not-a-player-binary"}).Ready())
	require.False(t, NewPlayer("local", nil, []string{"sh"}).Ready())

	err := NewPlayer("local", &fakeSynth{ready: false}, []string{"sh"}).Speak(context.Background(), "a", "b")
	require.Error(t, err)
}

func TestPlayerSynthesisFailure(t *testing.T) {
	requireShell(t)

	p := NewPlayer("local", &fakeSynth{ready: true, err: errors.New("quota exceeded")}, []string{"sh", "-c", "true", "sh"})
	require.EqualError(t, p.Speak(context.Background(), "a", "b"), "quota exceeded")
}

func TestRecorderTranscribesOutput(t *testing.T) {
	requireShell(t)

	tr := &fakeTranscriber{alts: []string{"what is pi", "what is pie"}}
	r := NewRecorder("local", tr, []string{"sh", "-c", "printf RIFFDATA"}, "", "en-US")

	alts, err := r.Listen(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"what is pi", "what is pie"}, alts)
	require.Equal(t, "RIFFDATA", string(tr.audio))
	require.Equal(t, "wav", tr.format)
	require.Equal(t, "en-US", tr.language)
}

func TestRecorderFailure(t *testing.T) {
	requireShell(t)

	r := NewRecorder("local", &fakeTranscriber{}, []string{"sh", "-c", "echo no device >&2; exit 1"}, "wav", "en-US")
	_, err := r.Listen(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no device")
}

func TestRecorderCancel(t *testing.T) {
	requireShell(t)

	r := NewRecorder("local", &fakeTranscriber{}, []string{"sh", "-c", "sleep 5"}, "wav", "en-US")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := r.Listen(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRecorderNotConfigured(t *testing.T) {
	_, err := NewRecorder("local", nil, []string{"arecord"}, "wav", "en-US").Listen(context.Background())
	require.Error(t, err)

	_, err = NewRecorder("local", &fakeTranscriber{}, nil, "wav", "en-US").Listen(context.Background())
	require.Error(t, err)
}
