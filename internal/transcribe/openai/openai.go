// Package openai implements transcribe.Engine against any OpenAI-compatible
// /audio/transcriptions endpoint: OpenAI itself, faster-whisper-server,
// whisper.cpp server, or LocalAI.
package openai

import (
	"bytes"
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/nadzzz/voxcmd/internal/audio"
	"github.com/nadzzz/voxcmd/internal/config"
	"github.com/nadzzz/voxcmd/internal/message"
	"github.com/nadzzz/voxcmd/internal/transcribe"
)

const defaultModel = goopenai.Whisper1

// Engine uploads audio as an in-memory WAV file.
type Engine struct {
	client   *goopenai.Client
	model    string
	language string
}

// Loader returns a transcribe.Loader that builds an Engine from cfg. With
// VerifyModel set, loading fails unless the endpoint lists the model.
func Loader(cfg config.TranscriptionOpenAIConfig) transcribe.Loader {
	return func(ctx context.Context) (transcribe.Engine, error) {
		e := New(cfg)
		if cfg.VerifyModel {
			if _, err := e.client.GetModel(ctx, e.model); err != nil {
				return nil, fmt.Errorf("verifying transcription model %q: %w", e.model, err)
			}
		}
		return e, nil
	}
}

// New creates an Engine from config.
func New(cfg config.TranscriptionOpenAIConfig) *Engine {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Engine{
		client:   goopenai.NewClientWithConfig(clientCfg),
		model:    model,
		language: cfg.Language,
	}
}

// Name returns the backend identifier.
func (e *Engine) Name() string { return "openai" }

// Transcribe sends audio to the transcription endpoint.
func (e *Engine) Transcribe(ctx context.Context, a message.NormalizedAudio) (string, error) {
	wav, err := audio.EncodeWAV(a)
	if err != nil {
		return "", fmt.Errorf("encoding upload: %w", err)
	}

	resp, err := e.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    e.model,
		FilePath: "clip.wav",
		Reader:   bytes.NewReader(wav),
		Language: e.language,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return resp.Text, nil
}
