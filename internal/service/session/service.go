package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/daniilk/voice-assistant/backend/internal/model/session"
	"github.com/daniilk/voice-assistant/backend/internal/service/assistant"
)

var ErrSessionNotFound = errors.New("session not found")

// Factory builds the assistant and speaker owned by a new session.
type Factory func(sessionID string) (*assistant.Orchestrator, *assistant.SynthSpeaker, error)

// NewFactory returns a Factory wiring every session to client and synth.
func NewFactory(client assistant.QueryClient, synth assistant.Synthesizer) Factory {
	return func(sessionID string) (*assistant.Orchestrator, *assistant.SynthSpeaker, error) {
		speaker := assistant.NewSynthSpeaker(sessionID, synth)
		orchestrator, err := assistant.New(assistant.Options{
			SessionID: sessionID,
			Client:    client,
			Speaker:   speaker,
		})
		if err != nil {
			return nil, nil, err
		}
		return orchestrator, speaker, nil
	}
}

// Entry is a live session.
type Entry struct {
	Session      session.Session
	Orchestrator *assistant.Orchestrator
	Speaker      *assistant.SynthSpeaker
}

func (e *Entry) close() {
	e.Orchestrator.Close()
	if e.Speaker != nil {
		e.Speaker.Close()
	}
}

// Service keeps the live sessions in memory.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Entry
	factory  Factory
}

// NewService returns an empty registry.
func NewService(factory Factory) *Service {
	return &Service{
		sessions: make(map[string]*Entry),
		factory:  factory,
	}
}

// CreateSession starts a new assistant session.
func (s *Service) CreateSession(_ context.Context) (session.Session, error) {
	sess := session.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	orchestrator, speaker, err := s.factory(sess.ID)
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to start session: %w", err)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &Entry{Session: sess, Orchestrator: orchestrator, Speaker: speaker}
	s.mu.Unlock()

	log.Printf("[session] created %s", sess.ID)
	return sess, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (session.Session, error) {
	entry, err := s.Get(sessionID)
	if err != nil {
		return session.Session{}, err
	}
	return entry.Session, nil
}

// Get returns the live entry for sessionID.
func (s *Service) Get(sessionID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

// CloseSession stops a session and forgets it.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	entry, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	entry.close()
	log.Printf("[session] closed %s", sessionID)
	return nil
}

// CloseAll stops every session.
func (s *Service) CloseAll() {
	s.mu.Lock()
	entries := make([]*Entry, 0, len(s.sessions))
	for id, entry := range s.sessions {
		entries = append(entries, entry)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, entry := range entries {
		entry.close()
	}
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
