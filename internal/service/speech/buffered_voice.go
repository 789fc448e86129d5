package speech

import (
	"context"
	"errors"

	speechmodel "github.com/daniilk/voice-assistant/backend/internal/model/speech"
)

// Transcriber recognizes an in-memory recording.
type Transcriber interface {
	TranscribeBuffer(ctx context.Context, sessionID string, audio []byte, format, language string) (*speechmodel.ASRResponse, error)
}

// BufferedVoice is a voice source over audio already uploaded by a client.
type BufferedVoice struct {
	Transcriber Transcriber
	SessionID   string
	Audio       []byte
	Format      string
	Language    string
}

// Listen transcribes the buffered audio and returns its alternatives, best first.
func (v *BufferedVoice) Listen(ctx context.Context) ([]string, error) {
	if v.Transcriber == nil {
		return nil, errors.New("voice recognition is not configured")
	}
	if len(v.Audio) == 0 {
		return nil, nil
	}

	resp, err := v.Transcriber.TranscribeBuffer(ctx, v.SessionID, v.Audio, v.Format, v.Language)
	if err != nil {
		return nil, err
	}
	if len(resp.Alternatives) > 0 {
		return resp.Alternatives, nil
	}
	if resp.Text != "" {
		return []string{resp.Text}, nil
	}
	return nil, nil
}
