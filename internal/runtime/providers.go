package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/translation"
	"github.com/loqalabs/loqa-translate/internal/translation/google"
)

// newProvider builds the configured translation provider. A nil provider
// means translations are served by the mock fallback. Providers that fail to
// initialize also fall back to the mock.
func newProvider(ctx context.Context, cfg config.TranslationConfig, logger *slog.Logger) translation.Provider {
	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		logger.Warn("translation provider unavailable, serving mock translations",
			slog.String("provider", cfg.Provider), slogError(err))
		return nil
	}
	if provider == nil {
		logger.Info("translation provider disabled, serving mock translations")
		return nil
	}
	logger.Info("translation provider ready", slog.String("provider", provider.Source().String()))
	return provider
}

func buildProvider(ctx context.Context, cfg config.TranslationConfig) (translation.Provider, error) {
	switch cfg.Provider {
	case "", "mock":
		return nil, nil
	case "google":
		p, err := google.New(ctx, cfg.Google)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "ollama":
		return translation.NewOllamaProvider(cfg.Ollama.Endpoint, cfg.Ollama.Model, &http.Client{Timeout: 60 * time.Second}), nil
	case "exec":
		return translation.NewExecProvider(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown translation provider %q", cfg.Provider)
	}
}
