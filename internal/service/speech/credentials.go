package speech

import (
	"errors"
	"strings"

	speechmodel "github.com/daniilk/voice-assistant/backend/internal/model/speech"
)

// ErrNotConfigured reports missing speech credentials.
var ErrNotConfigured = errors.New("speech service is not configured: app id and access token are required")

func credentials(cfg *speechmodel.SpeechConfig) (appKey, accessKey string, err error) {
	if cfg == nil {
		return "", "", ErrNotConfigured
	}

	appKey = strings.TrimSpace(cfg.AppID)
	accessKey = strings.TrimSpace(cfg.AccessToken)
	if accessKey == "" {
		accessKey = strings.TrimSpace(cfg.APIKey)
	}
	if appKey == "" || accessKey == "" {
		return "", "", ErrNotConfigured
	}
	return appKey, accessKey, nil
}
