package wolfram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daniilk/voice-assistant/backend/internal/model/answer"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{AppID: "test-app", BaseURL: server.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return client
}

func TestQuerySendsExpectedParameters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v2/query", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "test-app", q.Get("appid"))
		require.Equal(t, "2+2", q.Get("input"))
		require.Equal(t, "plaintext", q.Get("format"))
		require.Equal(t, "json", q.Get("output"))
		_, _ = w.Write([]byte(`{"queryresult":{"success":true,"error":false,"pods":[]}}`))
	})

	result, err := client.Query(context.Background(), "  2+2  ")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.False(t, result.Error)
}

func TestQueryDecodesPods(t *testing.T) {
	body := `{"queryresult":{"success":true,"error":false,"pods":[
		{"title":"Input","id":"Input","error":false,"subpods":[{"title":"","plaintext":"2+2"}]},
		{"title":"Result","id":"Result","error":false,"primary":true,"subpods":[
			{"title":"","plaintext":"4","img":{"src":"https://example.test/4.gif","alt":"4"},"primary":true,"minput":"2+2"}
		]}
	]}}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})

	result, err := client.Query(context.Background(), "2+2")
	require.NoError(t, err)
	require.Len(t, result.Pods, 2)

	pod := result.Pods[1]
	require.Equal(t, "Result", pod.Title)
	require.Equal(t, "Result", pod.ID)
	require.Len(t, pod.Subpods, 1)

	contents := pod.Subpods[0].Contents
	require.Len(t, contents, 3)
	require.Equal(t, answer.PlainText("4"), contents[0])
	require.Equal(t, answer.Image("https://example.test/4.gif", "4"), contents[1])
	require.Equal(t, answer.KindUnknown, contents[2].Kind)
	require.Equal(t, "minput", contents[2].Name)
}

func TestQueryServerErrorObject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"queryresult":{"success":false,"error":{"code":1,"msg":"Invalid appid"}}}`))
	})

	result, err := client.Query(context.Background(), "2+2")
	require.NoError(t, err)
	require.True(t, result.Error)
	require.Equal(t, "1", result.ErrorCode)
	require.Equal(t, "Invalid appid", result.ErrorMessage)
}

func TestQueryUnrecognizedWithStringFlags(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"queryresult":{"success":"false","error":"false","numpods":0}}`))
	})

	result, err := client.Query(context.Background(), "asdkjasd")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.False(t, result.Error)
	require.Empty(t, result.Pods)
}

func TestQueryPodErrorFlag(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"queryresult":{"success":true,"error":false,"pods":[
			{"title":"Broken","error":{"code":"3","msg":"timeout"},"subpods":[]}
		]}}`))
	})

	result, err := client.Query(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, result.Pods, 1)
	require.True(t, result.Pods[0].Error)
}

func TestQueryHTTPStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.Query(context.Background(), "2+2")
	require.Error(t, err)

	var qErr *Error
	require.True(t, errors.As(err, &qErr))
	require.Equal(t, ErrorStatus, qErr.Code)
	require.Contains(t, err.Error(), "502")
}

func TestQueryDecodeError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	})

	_, err := client.Query(context.Background(), "2+2")

	var qErr *Error
	require.ErrorAs(t, err, &qErr)
	require.Equal(t, ErrorDecode, qErr.Code)
}

func TestQueryEmptyInput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty input")
	})

	_, err := client.Query(context.Background(), "   ")

	var qErr *Error
	require.ErrorAs(t, err, &qErr)
	require.Equal(t, ErrorInvalidInput, qErr.Code)
}

func TestQueryCancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Query(ctx, "2+2")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://example.test"})
	require.Error(t, err)

	_, err = NewClient(Config{AppID: "id"})
	require.Error(t, err)

	client, err := NewClient(Config{AppID: "id", BaseURL: "https://example.test/"})
	require.NoError(t, err)
	require.Equal(t, "https://example.test", client.cfg.BaseURL)
	require.Equal(t, "plaintext", client.cfg.Format)
	require.Equal(t, 30*time.Second, client.cfg.Timeout)
}
