package assistant

import (
	"context"
	"errors"
	"log"
	"sync"

	speechmodel "github.com/daniilk/voice-assistant/backend/internal/model/speech"
)

// Speech event types delivered to clients.
const (
	SpeechEventAudio = "tts"
	SpeechEventStop  = "tts_stop"
)

// SpeechEvent carries synthesized audio, or a stop order, to a remote client.
type SpeechEvent struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utteranceId,omitempty"`
	AudioData   []byte `json:"audioData,omitempty"`
	Format      string `json:"format,omitempty"`
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Ready() bool
	SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error)
}

// SynthSpeaker is a Speaker that synthesizes remotely and hands the audio to
// subscribed clients, which do the actual playback.
type SynthSpeaker struct {
	sessionID string
	synth     Synthesizer
	format    string

	mu          sync.Mutex
	subscribers map[int]chan SpeechEvent
	nextID      int
	gen         uint64
}

// NewSynthSpeaker returns a speaker for one session. synth may be nil, in
// which case the speaker is never ready.
func NewSynthSpeaker(sessionID string, synth Synthesizer) *SynthSpeaker {
	return &SynthSpeaker{
		sessionID:   sessionID,
		synth:       synth,
		format:      "mp3",
		subscribers: make(map[int]chan SpeechEvent),
	}
}

func (s *SynthSpeaker) Ready() bool {
	return s.synth != nil && s.synth.Ready()
}

// Speak synthesizes text and broadcasts it. An utterance superseded by Stop
// or a newer Speak while synthesizing is discarded.
func (s *SynthSpeaker) Speak(ctx context.Context, utteranceID, text string) error {
	if !s.Ready() {
		return errors.New(MsgTTSNotReady)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	resp, err := s.synth.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
		SessionID:   s.sessionID,
		UtteranceID: utteranceID,
		Text:        text,
		Format:      s.format,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return err
	}

	format := resp.Format
	if format == "" {
		format = s.format
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return context.Canceled
	}
	s.broadcastLocked(SpeechEvent{
		Type:        SpeechEventAudio,
		UtteranceID: utteranceID,
		AudioData:   resp.AudioData,
		Format:      format,
	})
	return nil
}

// Stop tells clients to halt playback and discards any synthesis in flight.
func (s *SynthSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.broadcastLocked(SpeechEvent{Type: SpeechEventStop})
}

// Subscribe registers a client. The returned func unregisters it.
func (s *SynthSpeaker) Subscribe() (<-chan SpeechEvent, func()) {
	ch := make(chan SpeechEvent, 8)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close unregisters every client.
func (s *SynthSpeaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

func (s *SynthSpeaker) broadcastLocked(event SpeechEvent) {
	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			log.Printf("[assistant] session %s: speech subscriber %d is full, dropping %s", s.sessionID, id, event.Type)
		}
	}
}
