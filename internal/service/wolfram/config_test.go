package wolfram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daniilk/voice-assistant/backend/internal/config"
	"github.com/daniilk/voice-assistant/backend/internal/integrations/paramstore"
)

type fakeStore struct {
	names []string
	value string
	err   error
}

func (f *fakeStore) GetParameter(_ context.Context, name string) (string, error) {
	f.names = append(f.names, name)
	return f.value, f.err
}

func appIDServer(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var seen string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Query().Get("appid")
		_, _ = w.Write([]byte(`{"queryresult":{"success":true,"error":false}}`))
	}))
	t.Cleanup(server.Close)
	return server, &seen
}

func TestNewClientFromConfigUsesParameterStore(t *testing.T) {
	server, seen := appIDServer(t)
	store := &fakeStore{value: "from-ssm"}

	client, err := NewClientFromConfig(context.Background(), config.WolframConfig{
		AppID:      "from-env",
		AppIDParam: "/assistant/wolfram-app-id",
		BaseURL:    server.URL,
		Timeout:    time.Second,
	}, func(context.Context) (paramstore.Getter, error) { return store, nil })
	require.NoError(t, err)

	_, err = client.Query(context.Background(), "pi")
	require.NoError(t, err)
	require.Equal(t, "from-ssm", *seen)
	require.Equal(t, []string{"/assistant/wolfram-app-id"}, store.names)
}

func TestNewClientFromConfigWithoutParameter(t *testing.T) {
	server, seen := appIDServer(t)

	client, err := NewClientFromConfig(context.Background(), config.WolframConfig{
		AppID:   "from-env",
		BaseURL: server.URL,
	}, func(context.Context) (paramstore.Getter, error) {
		t.Fatal("store must not be opened")
		return nil, nil
	})
	require.NoError(t, err)

	_, err = client.Query(context.Background(), "pi")
	require.NoError(t, err)
	require.Equal(t, "from-env", *seen)
}

func TestNewClientFromConfigStoreFailure(t *testing.T) {
	cfg := config.WolframConfig{AppID: "from-env", AppIDParam: "/missing", BaseURL: "http://127.0.0.1:1"}

	_, err := NewClientFromConfig(context.Background(), cfg, func(context.Context) (paramstore.Getter, error) {
		return &fakeStore{err: errors.New("access denied")}, nil
	})
	require.ErrorContains(t, err, "access denied")

	_, err = NewClientFromConfig(context.Background(), cfg, func(context.Context) (paramstore.Getter, error) {
		return nil, errors.New("no credentials")
	})
	require.ErrorContains(t, err, "no credentials")
}
