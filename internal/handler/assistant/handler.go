package assistant

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/daniilk/voice-assistant/backend/internal/handler/speech"
	"github.com/daniilk/voice-assistant/backend/internal/model/answer"
	"github.com/daniilk/voice-assistant/backend/internal/model/session"
	assistantsvc "github.com/daniilk/voice-assistant/backend/internal/service/assistant"
	sessionservice "github.com/daniilk/voice-assistant/backend/internal/service/session"
	speechsvc "github.com/daniilk/voice-assistant/backend/internal/service/speech"
	"github.com/daniilk/voice-assistant/backend/pkg/utils"
)

const (
	sseKeepAlive = 15 * time.Second
	// maxVoiceUploadBytes leaves room for the multipart envelope around one recording.
	maxVoiceUploadBytes = maxRecordingBytes + 64<<10
)

// Handler exposes assistant sessions over REST, SSE and WebSocket.
type Handler struct {
	sessions    *sessionservice.Service
	client      assistantsvc.QueryClient
	transcriber speechsvc.Transcriber
	language    string
	upgrader    websocket.Upgrader
}

// New creates an assistant handler. transcriber may be nil, in which case
// voice input reports that recognition is unavailable.
func New(sessions *sessionservice.Service, client assistantsvc.QueryClient, transcriber speechsvc.Transcriber, language string) *Handler {
	if strings.TrimSpace(language) == "" {
		language = "en-US"
	}
	return &Handler{
		sessions:    sessions,
		client:      client,
		transcriber: transcriber,
		language:    language,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the session and one-shot endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ask", h.handleAsk)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleCloseSession)
			r.Post("/query", h.handleQuery)
			r.Post("/voice", h.handleVoice)
			r.Post("/rows/{index}/speak", h.handleSpeak)
			r.Post("/stop", h.handleStop)
			r.Post("/clear", h.handleClear)
			r.Delete("/banner", h.handleDismissBanner)
			r.Get("/events", h.handleEvents)
			r.Get("/ws", h.handleWebSocket)
		})
	})
}

type textRequest struct {
	Text string `json:"text"`
}

type askResponse struct {
	Phase   session.Phase `json:"phase"`
	Rows    []answer.Row  `json:"rows"`
	Message string        `json:"message,omitempty"`
}

// handleAsk answers one question without a session.
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	res, err := h.client.Query(r.Context(), text)
	if err != nil {
		log.Printf("[assistant] ask failed: %v", err)
	}
	outcome := assistantsvc.Evaluate(res, err)

	rows := outcome.Rows
	if rows == nil {
		rows = []answer.Row{}
	}
	utils.RespondJSON(w, http.StatusOK, askResponse{
		Phase:   outcome.Phase,
		Rows:    rows,
		Message: outcome.Message(),
	})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		log.Printf("[assistant] create session failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, entry.Orchestrator.Snapshot())
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.sessions.CloseSession(r.Context(), sessionID); err != nil {
		h.respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.act(w, r, func(o *assistantsvc.Orchestrator) error {
		return o.SubmitQuery(req.Text)
	})
}

func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxVoiceUploadBytes)
	if err := r.ParseMultipartForm(maxRecordingBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, errRecordingTooLarge.Error())
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}
	if len(audio) > maxRecordingBytes {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, errRecordingTooLarge.Error())
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = h.language
	}

	if err := entry.Orchestrator.StartVoiceInput(h.voiceSource(entry.Session.ID, audio, speech.InferAudioFormat(header.Filename), language)); err != nil {
		h.respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, entry.Orchestrator.Snapshot())
}

func (h *Handler) handleSpeak(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "row index must be an integer")
		return
	}

	h.act(w, r, func(o *assistantsvc.Orchestrator) error {
		return o.SelectRow(index)
	})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*assistantsvc.Orchestrator).StopSpeaking)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*assistantsvc.Orchestrator).Clear)
}

func (h *Handler) handleDismissBanner(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*assistantsvc.Orchestrator).DismissBanner)
}

// handleEvents streams views as "state" events and speech as "tts"/"tts_stop" events.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	views, unsubscribe := entry.Orchestrator.Subscribe()
	defer unsubscribe()

	var speechEvents <-chan assistantsvc.SpeechEvent
	if entry.Speaker != nil {
		events, stop := entry.Speaker.Subscribe()
		defer stop()
		speechEvents = events
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	log.Printf("[sse] opening stream for session=%s", entry.Session.ID)
	defer log.Printf("[sse] closing stream for session=%s", entry.Session.ID)

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case view, ok := <-views:
			if !ok {
				return
			}
			err = utils.SendSSEEvent(w, flusher, "state", view)
		case event, ok := <-speechEvents:
			if !ok {
				speechEvents = nil
				continue
			}
			err = utils.SendSSEEvent(w, flusher, event.Type, event)
		case <-ticker.C:
			err = utils.SendSSEComment(w, flusher, "keep-alive")
		}
		if err != nil {
			log.Printf("[sse] write failed for session=%s: %v", entry.Session.ID, err)
			return
		}
	}
}

func (h *Handler) voiceSource(sessionID string, audio []byte, format, language string) assistantsvc.VoiceSource {
	if h.transcriber == nil {
		return nil
	}
	return &speechsvc.BufferedVoice{
		Transcriber: h.transcriber,
		SessionID:   sessionID,
		Audio:       audio,
		Format:      format,
		Language:    language,
	}
}

// act runs fn against the session's orchestrator and answers 202 with the resulting view.
func (h *Handler) act(w http.ResponseWriter, r *http.Request, fn func(*assistantsvc.Orchestrator) error) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := fn(entry.Orchestrator); err != nil {
		h.respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, entry.Orchestrator.Snapshot())
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*sessionservice.Entry, bool) {
	entry, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondSessionError(w, err)
		return nil, false
	}
	return entry, true
}

func (h *Handler) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessionservice.ErrSessionNotFound), errors.Is(err, assistantsvc.ErrClosed):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	default:
		log.Printf("[assistant] session request failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
