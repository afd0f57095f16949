// Package openai implements the Extractor interface using the OpenAI Chat
// Completions API, or any server speaking the same protocol.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/rs/zerolog/log"

	"github.com/nadzzz/voxcmd/internal/config"
	"github.com/nadzzz/voxcmd/internal/interpreter"
)

const defaultModel = goopenai.GPT4oMini

// Extractor uses chat completions for command extraction.
type Extractor struct {
	client      *goopenai.Client
	model       string
	jsonMode    bool
	temperature float32
	now         func() time.Time
}

// New creates a new OpenAI extractor from config.
func New(cfg config.ExtractionOpenAIConfig) *Extractor {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Extractor{
		client:      goopenai.NewClientWithConfig(clientCfg),
		model:       model,
		jsonMode:    cfg.JSONMode,
		temperature: cfg.Temperature,
		now:         time.Now,
	}
}

// Name returns the backend identifier.
func (e *Extractor) Name() string { return "openai" }

// Extract asks the model for a command. The reply is returned as-is.
func (e *Extractor) Extract(ctx context.Context, transcript string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: e.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: interpreter.BuildPrompt(e.now())},
			{Role: goopenai.ChatMessageRoleUser, Content: interpreter.BuildUserPrompt(transcript)},
		},
		Temperature: e.temperature,
	}
	if e.jsonMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion returned no choices")
	}

	log.Debug().
		Str("component", "interpreter").
		Str("backend", "openai").
		Str("model", resp.Model).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("extraction complete")
	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op.
func (e *Extractor) Close() error { return nil }
