// Package wyoming implements transcribe.Engine using a Wyoming protocol ASR
// server such as wyoming-faster-whisper (rhasspy/wyoming-whisper on TCP
// port 10300).
//
// A transcription opens one connection and sends:
//
//	transcribe → audio-start → audio-chunk* → audio-stop
//
// then waits for a transcript event.
package wyoming

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nadzzz/voxcmd/internal/audio"
	"github.com/nadzzz/voxcmd/internal/config"
	"github.com/nadzzz/voxcmd/internal/message"
	"github.com/nadzzz/voxcmd/internal/transcribe"
)

const (
	dialTimeout = 10 * time.Second
	// ioTimeout applies when the caller's context has no deadline.
	ioTimeout = 60 * time.Second
	// chunkBytes is one second of 16-bit mono audio.
	chunkBytes = 2 * message.SampleRate
)

// Engine streams audio to a Wyoming ASR server.
type Engine struct {
	endpoint string
	language string
	model    string
}

// Loader returns a transcribe.Loader that checks the server offers ASR
// (describe → info) before handing out an Engine.
func Loader(cfg config.WyomingConfig) transcribe.Loader {
	return func(ctx context.Context) (transcribe.Engine, error) {
		e := New(cfg)
		model, err := e.describe(ctx)
		if err != nil {
			return nil, err
		}
		e.model = model
		return e, nil
	}
}

// New creates an Engine from config without contacting the server.
func New(cfg config.WyomingConfig) *Engine {
	ep := strings.TrimPrefix(cfg.Endpoint, "tcp://")
	return &Engine{endpoint: ep, language: cfg.Language}
}

// Name returns the backend identifier.
func (e *Engine) Name() string { return "wyoming" }

// session is one connection to the server, closed when ctx ends.
type session struct {
	net.Conn
	r    *bufio.Reader
	stop func() bool
}

func (s *session) Close() error {
	s.stop()
	return s.Conn.Close()
}

func (e *Engine) dial(ctx context.Context) (*session, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", e.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to wyoming server %s: %w", e.endpoint, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(ioTimeout))
	}
	// Unblock pending I/O on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	return &session{Conn: conn, r: bufio.NewReader(conn), stop: stop}, nil
}

// describe returns the name of the first installed ASR model.
func (e *Engine) describe(ctx context.Context) (string, error) {
	conn, err := e.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := writeEvent(conn, event{Type: "describe"}); err != nil {
		return "", fmt.Errorf("sending describe: %w", err)
	}
	for {
		evt, err := readEvent(conn.r)
		if err != nil {
			return "", fmt.Errorf("waiting for info: %w", err)
		}
		if evt.Type != "info" {
			continue
		}
		return firstASRModel(evt.Data)
	}
}

func firstASRModel(info map[string]any) (string, error) {
	programs, _ := info["asr"].([]any)
	for _, p := range programs {
		prog, _ := p.(map[string]any)
		models, _ := prog["models"].([]any)
		for _, m := range models {
			if mm, ok := m.(map[string]any); ok {
				if name, _ := mm["name"].(string); name != "" {
					return name, nil
				}
			}
		}
		if name, _ := prog["name"].(string); name != "" {
			return name, nil
		}
	}
	return "", errors.New("wyoming server offers no asr service")
}

// Transcribe streams audio and waits for the transcript.
func (e *Engine) Transcribe(ctx context.Context, a message.NormalizedAudio) (string, error) {
	conn, err := e.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	format := map[string]any{"rate": message.SampleRate, "width": 2, "channels": 1}

	start := map[string]any{}
	if e.language != "" {
		start["language"] = e.language
	}
	if e.model != "" {
		start["name"] = e.model
	}
	if err := writeEvent(conn, event{Type: "transcribe", Data: start}); err != nil {
		return "", e.wrap(ctx, "sending transcribe", err)
	}
	if err := writeEvent(conn, event{Type: "audio-start", Data: format}); err != nil {
		return "", e.wrap(ctx, "sending audio-start", err)
	}
	pcm := audio.PCM16(a)
	for off := 0; off < len(pcm); off += chunkBytes {
		end := min(off+chunkBytes, len(pcm))
		if err := writeEvent(conn, event{Type: "audio-chunk", Data: format, Payload: pcm[off:end]}); err != nil {
			return "", e.wrap(ctx, "sending audio-chunk", err)
		}
	}
	if err := writeEvent(conn, event{Type: "audio-stop"}); err != nil {
		return "", e.wrap(ctx, "sending audio-stop", err)
	}

	for {
		evt, err := readEvent(conn.r)
		if err != nil {
			return "", e.wrap(ctx, "waiting for transcript", err)
		}
		switch evt.Type {
		case "transcript":
			text, _ := evt.Data["text"].(string)
			return text, nil
		case "error":
			msg, _ := evt.Data["text"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			return "", fmt.Errorf("wyoming error: %s", msg)
		default:
			log.Debug().Str("component", "wyoming").Str("type", evt.Type).Msg("ignoring event")
		}
	}
}

// wrap reports a network error as the context's error when the context
// ended, so deadline expiry is recognizable by callers.
func (e *Engine) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(ctxErr, err))
	}
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, errors.Join(context.DeadlineExceeded, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
