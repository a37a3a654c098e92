// Package google provides a translation.Provider backed by the Google Cloud
// Translation v2 API.
package google

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/translation"
)

// api is the subset of *translate.Client the provider uses.
type api interface {
	Translate(ctx context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error)
	Close() error
}

type Provider struct {
	client api
}

// New creates a client using application default credentials, or the API key
// or credentials file from cfg when set.
func New(ctx context.Context, cfg config.GoogleConfig) (*Provider, error) {
	var opts []option.ClientOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create google translate client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Source() translation.Source { return translation.SourceGoogle }

func (p *Provider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	target, err := language.Parse(targetLang)
	if err != nil {
		return "", fmt.Errorf("parse target language %q: %w", targetLang, err)
	}
	source, err := language.Parse(sourceLang)
	if err != nil {
		return "", fmt.Errorf("parse source language %q: %w", sourceLang, err)
	}
	out, err := p.client.Translate(ctx, []string{text}, target, &translate.Options{
		Source: source,
		Format: translate.Text,
	})
	if err != nil {
		return "", fmt.Errorf("google translate: %w", err)
	}
	if len(out) == 0 {
		return "", errors.New("google translate: empty response")
	}
	return out[0].Text, nil
}

func (p *Provider) Close() error {
	return p.client.Close()
}
