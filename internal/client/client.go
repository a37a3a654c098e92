// Package client calls a remote POST /translate endpoint for each finalized
// utterance.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/loqalabs/loqa-translate/internal/protocol"
	"github.com/loqalabs/loqa-translate/internal/translation"
)

const noJSONBodyMessage = "Server returned an error, but no JSON body."

// Result is what the presentation layer shows. When Failed, Message holds the
// error text and TranslatedText is empty.
type Result struct {
	TranslatedText string
	Source         translation.Source
	Message        string
	// Unrecognized marks a successful response whose translation_source tag
	// is missing or unknown. TranslatedText is kept, Source is client_error
	// and Message describes the tag.
	Unrecognized bool
}

// Failed reports whether the call ended in an error.
func (r Result) Failed() bool {
	return r.Source.IsError() && !r.Unrecognized
}

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	endpoint string
	http     Doer
	log      *slog.Logger
}

func New(endpoint string, httpClient Doer) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: httpClient, log: slog.Default()}
}

// WithLogger sets the logger used for response anomalies.
func (c *Client) WithLogger(log *slog.Logger) *Client {
	if log != nil {
		c.log = log
	}
	return c
}

// Translate issues at most one request. Equal language codes return the text
// unchanged without touching the network. Failures are encoded in the result.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) Result {
	if sourceLang == targetLang {
		return Result{TranslatedText: text, Source: translation.SourceNoTranslationNeeded}
	}

	body, err := json.Marshal(protocol.TranslateRequest{Text: text, SourceLang: sourceLang, TargetLang: targetLang})
	if err != nil {
		return clientError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return clientError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return clientError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return clientError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.httpError(resp.StatusCode, data)
	}

	var out struct {
		TranslatedText    *string `json:"translated_text"`
		TranslationSource string  `json:"translation_source"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return clientError(fmt.Errorf("decode response: %w", err))
	}
	if out.TranslatedText == nil {
		return clientError(fmt.Errorf("response missing translated_text"))
	}
	src, err := translation.ParseSource(out.TranslationSource)
	if err != nil {
		return Result{
			TranslatedText: *out.TranslatedText,
			Source:         translation.SourceClientError,
			Message:        err.Error(),
			Unrecognized:   true,
		}
	}
	if src.IsError() {
		return Result{Source: src, Message: *out.TranslatedText}
	}
	return Result{TranslatedText: *out.TranslatedText, Source: src}
}

func (c *Client) httpError(status int, data []byte) Result {
	var body protocol.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return Result{Source: translation.SourceHTTPError, Message: noJSONBodyMessage}
	}
	res := Result{Source: translation.SourceHTTPError, Message: body.Error}
	if res.Message == "" {
		res.Message = fmt.Sprintf("HTTP error! status: %d", status)
	}
	if body.TranslationSource != "" {
		if src, err := translation.ParseSource(body.TranslationSource); err == nil && src.IsError() {
			res.Source = src
		} else {
			c.log.Debug("error response tag replaced with http_error",
				slog.String("translation_source", body.TranslationSource), slog.Int("status", status))
		}
	}
	return res
}

func clientError(err error) Result {
	return Result{Source: translation.SourceClientError, Message: err.Error()}
}
