// Package local implements the Extractor interface against a self-hosted
// LLM. Endpoints ending in /api/generate use Ollama's native format; anything
// else is treated as an OpenAI-compatible /v1/chat/completions URL (Ollama,
// vLLM, llama.cpp server).
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nadzzz/voxcmd/internal/config"
	"github.com/nadzzz/voxcmd/internal/interpreter"
)

// maxResponse bounds the body read from the LLM server.
const maxResponse = 1 << 20

// Extractor calls a local LLM over HTTP.
type Extractor struct {
	endpoint string
	model    string
	client   *http.Client
	now      func() time.Time
}

// New creates a new local extractor from config.
func New(cfg config.LocalConfig) *Extractor {
	return &Extractor{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		client:   &http.Client{},
		now:      time.Now,
	}
}

// Name returns the backend identifier.
func (e *Extractor) Name() string { return "local" }

func (e *Extractor) ollama() bool {
	return strings.HasSuffix(strings.TrimRight(e.endpoint, "/"), "/api/generate")
}

// Extract sends the transcript to the local LLM endpoint.
func (e *Extractor) Extract(ctx context.Context, transcript string) (string, error) {
	system := interpreter.BuildPrompt(e.now())
	user := interpreter.BuildUserPrompt(transcript)

	var reqBody map[string]any
	if e.ollama() {
		reqBody = map[string]any{
			"model":  e.model,
			"system": system,
			"prompt": user,
			"stream": false,
			"format": "json",
		}
	} else {
		reqBody = map[string]any{
			"model": e.model,
			"messages": []map[string]string{
				{"role": "system", "content": system},
				{"role": "user", "content": user},
			},
			"temperature":     0.1,
			"stream":          false,
			"response_format": map[string]string{"type": "json_object"},
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("local LLM request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("local LLM failed (status %d): %s", resp.StatusCode, respBody)
	}
	respData, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return "", fmt.Errorf("reading LLM response: %w", err)
	}

	content := extractContent(respData)
	if content == "" {
		return "", errors.New("empty response from local LLM")
	}
	log.Debug().Str("component", "interpreter").Str("backend", "local").Int("bytes", len(content)).Msg("extraction complete")
	return content, nil
}

// Close is a no-op for the local extractor.
func (e *Extractor) Close() error { return nil }

// extractContent pulls the generated text out of either response shape.
func extractContent(data []byte) string {
	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chatResp); err == nil && len(chatResp.Choices) > 0 {
		return chatResp.Choices[0].Message.Content
	}

	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &ollamaResp); err == nil && ollamaResp.Response != "" {
		return ollamaResp.Response
	}
	return ""
}
