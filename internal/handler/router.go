package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/daniilk/voice-assistant/backend/internal/handler/assistant"
	"github.com/daniilk/voice-assistant/backend/internal/handler/speech"
	middlewarePkg "github.com/daniilk/voice-assistant/backend/internal/middleware"
	assistantService "github.com/daniilk/voice-assistant/backend/internal/service/assistant"
	sessionService "github.com/daniilk/voice-assistant/backend/internal/service/session"
	speechService "github.com/daniilk/voice-assistant/backend/internal/service/speech"
	"github.com/daniilk/voice-assistant/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. speechSvc may be nil when
// speech is disabled.
func NewRouter(sessions *sessionService.Service, client assistantService.QueryClient, speechSvc *speechService.Service, language string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	var (
		transcriber speechService.Transcriber
		speechAPI   speech.SpeechService
	)
	if speechSvc != nil {
		transcriber = speechSvc
		speechAPI = speechSvc
	}

	assistantHandler := assistant.New(sessions, client, transcriber, language)
	speechHandler := speech.New(speechAPI, language)

	r.Route("/api", func(api chi.Router) {
		api.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":   "ok",
				"sessions": sessions.Count(),
			})
		})

		assistantHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
	})

	return r
}
