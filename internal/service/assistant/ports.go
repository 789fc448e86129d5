package assistant

import (
	"context"

	"github.com/daniilk/voice-assistant/backend/internal/model/answer"
)

// QueryClient answers a natural-language question.
type QueryClient interface {
	Query(ctx context.Context, input string) (*answer.QueryResult, error)
}

// Speaker reads text aloud. Speak blocks until the utterance has been handed
// off or ctx is cancelled. A new Speak replaces any current utterance.
type Speaker interface {
	Ready() bool
	Speak(ctx context.Context, utteranceID, text string) error
	Stop()
}

// VoiceSource captures one spoken question and returns its candidate
// transcriptions, best first. An empty result means the user gave up.
type VoiceSource interface {
	Listen(ctx context.Context) ([]string, error)
}
