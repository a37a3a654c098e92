package translation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const ollamaSystemPrompt = "You are a translation engine. Reply with the translation only, without quotes or commentary."

type ollamaProvider struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaProvider translates by prompting a local Ollama model.
func NewOllamaProvider(endpoint, model string, client *http.Client) Provider {
	if client == nil {
		client = http.DefaultClient
	}
	if model == "" {
		model = "llama3.2:latest"
	}
	return &ollamaProvider{endpoint: strings.TrimRight(endpoint, "/"), model: model, client: client}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaStreamResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (p *ollamaProvider) Source() Source { return SourceOllama }

func (p *ollamaProvider) Close() error { return nil }

func (p *ollamaProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	payload := ollamaRequest{
		Model:  p.model,
		Prompt: fmt.Sprintf("Translate the following text from %s to %s:\n\n%s", sourceLang, targetLang, text),
		System: ollamaSystemPrompt,
		Stream: true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	var accumulated strings.Builder
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk ollamaStreamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("decode ollama chunk: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama: %s", chunk.Error)
		}
		accumulated.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(accumulated.String()), nil
}
