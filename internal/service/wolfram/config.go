package wolfram

import (
	"context"
	"fmt"
	"log"

	"github.com/daniilk/voice-assistant/backend/internal/config"
	"github.com/daniilk/voice-assistant/backend/internal/integrations/paramstore"
)

// StoreFactory opens the parameter store holding the application id.
type StoreFactory func(ctx context.Context) (paramstore.Getter, error)

// EnvironmentStore opens Parameter Store with the default AWS credential chain.
func EnvironmentStore(ctx context.Context) (paramstore.Getter, error) {
	return paramstore.NewFromEnvironment(ctx)
}

// NewClientFromConfig builds a client from loaded configuration. When
// cfg.AppIDParam is set the application id is read from the store.
func NewClientFromConfig(ctx context.Context, cfg config.WolframConfig, openStore StoreFactory) (*Client, error) {
	appID := cfg.AppID
	if cfg.AppIDParam != "" {
		store, err := openStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open parameter store: %w", err)
		}
		appID, err = paramstore.Resolve(ctx, store, cfg.AppIDParam, cfg.AppID)
		if err != nil {
			return nil, err
		}
		log.Printf("[wolfram] application id loaded from parameter %s", cfg.AppIDParam)
	}

	return NewClient(Config{
		AppID:   appID,
		BaseURL: cfg.BaseURL,
		Format:  cfg.Format,
		Timeout: cfg.Timeout,
	})
}
