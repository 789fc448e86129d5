package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/daniilk/voice-assistant/backend/internal/model/answer"
	sessionService "github.com/daniilk/voice-assistant/backend/internal/service/session"
)

type stubClient struct{}

func (stubClient) Query(context.Context, string) (*answer.QueryResult, error) {
	return &answer.QueryResult{Success: true}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *sessionService.Service) {
	t.Helper()
	sessions := sessionService.NewService(sessionService.NewFactory(stubClient{}, nil))
	t.Cleanup(sessions.CloseAll)
	return NewRouter(sessions, stubClient{}, nil, ""), sessions
}

func TestHealthz(t *testing.T) {
	router, sessions := newTestRouter(t)
	if _, err := sessions.CreateSession(context.Background()); err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["status"] != "ok" || body["sessions"] != float64(1) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRouterWithoutSpeech(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/speech/synthesize", strings.NewReader(`{"text":"hi"}`)))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without speech, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"text":"pi"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from ask, got %d", rr.Code)
	}
}

func TestRouterPreflight(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/sessions", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}
