package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendSSEEvent(t *testing.T) {
	rr := httptest.NewRecorder()
	SetupSSEHeaders(rr)

	if err := SendSSEEvent(rr, rr, "state", map[string]int{"version": 3}); err != nil {
		t.Fatalf("SendSSEEvent err: %v", err)
	}

	if got := rr.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
	want := "event: state\ndata: {\"version\":3}\n\n"
	if rr.Body.String() != want {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if !rr.Flushed {
		t.Fatal("expected flush")
	}
}

func TestSendSSEComment(t *testing.T) {
	rr := httptest.NewRecorder()
	if err := SendSSEComment(rr, rr, "keep-alive"); err != nil {
		t.Fatalf("SendSSEComment err: %v", err)
	}
	if rr.Body.String() != ": keep-alive\n\n" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, http.StatusNotFound, "session not found")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"error":"session not found"`) {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	var dst struct{ Text string }
	if err := DecodeJSON(httptest.NewRecorder(), req, &dst); err == nil {
		t.Fatal("expected decode error")
	}
}
