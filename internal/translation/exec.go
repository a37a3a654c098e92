package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execProvider struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type execResponse struct {
	TranslatedText string `json:"translated_text"`
	Error          string `json:"error,omitempty"`
}

// NewExecProvider runs command once per translation, writing a JSON request
// to stdin and reading {"translated_text": "..."} from stdout.
func NewExecProvider(command string) (Provider, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse translation command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("translation command empty")
	}
	return &execProvider{cmd: args}, nil
}

func (p *execProvider) Source() Source { return SourceExec }

func (p *execProvider) Close() error { return nil }

func (p *execProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	input, err := json.Marshal(execRequest{Text: text, SourceLang: sourceLang, TargetLang: targetLang})
	if err != nil {
		return "", err
	}

	base := p.cmd[0]
	args := append([]string{}, p.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("translation command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("decode translation command response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("translation command: %s", resp.Error)
	}
	return resp.TranslatedText, nil
}
