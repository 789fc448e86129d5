package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	assistantsvc "github.com/daniilk/voice-assistant/backend/internal/service/assistant"
	sessionservice "github.com/daniilk/voice-assistant/backend/internal/service/session"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second

	// maxMessageBytes bounds one inbound frame; audio chunks are base64 inside JSON.
	maxMessageBytes = 1 << 20
	// maxRecordingBytes bounds the audio buffered for one voice input.
	maxRecordingBytes = 8 << 20
)

var errRecordingTooLarge = errors.New("recording too large")

// Outbound message types.
const (
	messageState = "state"
	messageError = "error"
)

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage carries one chunk of a recording. The buffered chunks are
// transcribed once a chunk with IsFinal arrives.
type AudioMessage struct {
	AudioData  []byte `json:"audioData"`
	Format     string `json:"format"`
	Language   string `json:"language"`
	IsFinal    bool   `json:"isFinal"`
	ChunkIndex int    `json:"chunkIndex"`
}

// TextMessage carries the input field content.
type TextMessage struct {
	Text string `json:"text"`
}

// SelectMessage picks a row of the results list.
type SelectMessage struct {
	Index int `json:"index"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	entry       *sessionservice.Entry
	out         chan outgoingMessage
	language    string
	audioFormat string
	buffer      bytes.Buffer
	// discarding drops the rest of an oversized recording until its final chunk.
	discarding bool
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sessionID := entry.Session.ID
	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	state := &connectionState{
		entry:    entry,
		out:      make(chan outgoingMessage, 16),
		language: h.language,
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		defer cancel()
		h.writeLoop(ctx, conn, state)
	}()
	defer func() { <-writerDone }()
	defer cancel()

	conn.SetReadLimit(maxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(ctx, state, "session mismatch")
			continue
		}

		if err := h.handleMessage(ctx, state, &msg); err != nil {
			if errors.Is(err, assistantsvc.ErrClosed) {
				h.sendError(ctx, state, "session closed")
				return
			}
			h.sendError(ctx, state, err.Error())
		}
	}
}

// writeLoop is the only writer of conn. It forwards views, speech events and
// replies until ctx ends or the session closes.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, state *connectionState) {
	sessionID := state.entry.Session.ID

	views, unsubscribe := state.entry.Orchestrator.Subscribe()
	defer unsubscribe()

	var speechEvents <-chan assistantsvc.SpeechEvent
	if state.entry.Speaker != nil {
		events, stop := state.entry.Speaker.Subscribe()
		defer stop()
		speechEvents = events
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(msg outgoingMessage) bool {
		msg.SessionID = sessionID
		msg.Timestamp = time.Now().UnixMilli()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("[websocket] write failed for session %s: %v", sessionID, err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case view, ok := <-views:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeTimeout))
				return
			}
			if !write(outgoingMessage{Type: messageState, Data: view}) {
				return
			}
		case event, ok := <-speechEvents:
			if !ok {
				speechEvents = nil
				continue
			}
			if !write(outgoingMessage{Type: event.Type, Data: event}) {
				return
			}
		case msg := <-state.out:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Printf("[websocket] ping failed for session %s: %v", sessionID, err)
				return
			}
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, state *connectionState, msg *inboundMessage) error {
	o := state.entry.Orchestrator

	switch msg.Type {
	case "query":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			return errors.New("invalid query payload")
		}
		return o.SubmitQuery(text.Text)
	case "input":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			return errors.New("invalid input payload")
		}
		return o.SetInput(text.Text)
	case "audio":
		return h.handleAudioMessage(state, msg.Data)
	case "select":
		var sel SelectMessage
		if err := json.Unmarshal(msg.Data, &sel); err != nil {
			return errors.New("invalid select payload")
		}
		return o.SelectRow(sel.Index)
	case "stop":
		return o.StopSpeaking()
	case "clear":
		return o.Clear()
	case "dismiss":
		return o.DismissBanner()
	default:
		return errors.New("unsupported message type: " + msg.Type)
	}
}

func (h *Handler) handleAudioMessage(state *connectionState, raw json.RawMessage) error {
	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		return errors.New("invalid audio payload")
	}

	if state.discarding {
		if audio.IsFinal {
			state.discarding = false
		}
		return nil
	}

	if state.buffer.Len()+len(audio.AudioData) > maxRecordingBytes {
		log.Printf("[websocket] recording over %d bytes dropped for session %s", maxRecordingBytes, state.entry.Session.ID)
		state.buffer.Reset()
		state.discarding = !audio.IsFinal
		return errRecordingTooLarge
	}

	if len(audio.AudioData) > 0 {
		state.buffer.Write(audio.AudioData)
	}
	if audio.Format != "" {
		state.audioFormat = audio.Format
	}
	if audio.Language != "" {
		state.language = audio.Language
	}
	if !audio.IsFinal {
		return nil
	}

	recording := bytes.Clone(state.buffer.Bytes())
	state.buffer.Reset()

	format := state.audioFormat
	if format == "" {
		format = "wav"
	}
	log.Printf("[websocket] starting voice input session=%s format=%s bytes=%d", state.entry.Session.ID, format, len(recording))

	return state.entry.Orchestrator.StartVoiceInput(h.voiceSource(state.entry.Session.ID, recording, format, state.language))
}

func (h *Handler) sendError(ctx context.Context, state *connectionState, message string) {
	select {
	case state.out <- outgoingMessage{Type: messageError, Data: map[string]string{"message": message}}:
	case <-ctx.Done():
	}
}
