// Package transcribe converts normalized audio into text.
//
// A speech model is expensive to construct, so the process holds a single
// Engine behind Shared. The engine is built on first use; concurrent first
// callers wait for the same load instead of starting their own.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/nadzzz/voxcmd/internal/apperr"
	"github.com/nadzzz/voxcmd/internal/message"
)

// Engine is a loaded speech-to-text model. Implementations must be safe
// for concurrent use and must not change after construction.
type Engine interface {
	// Name returns the backend identifier (e.g., "openai", "wyoming").
	Name() string

	// Transcribe returns the raw recognized text of audio.
	Transcribe(ctx context.Context, audio message.NormalizedAudio) (string, error)
}

// Loader constructs an Engine.
type Loader func(ctx context.Context) (Engine, error)

// Shared lazily holds the process-wide Engine.
type Shared struct {
	load   Loader
	group  singleflight.Group
	engine atomic.Pointer[engineBox]
	loads  atomic.Int64
}

type engineBox struct{ Engine }

// NewShared creates a holder that builds its engine with load on first use.
func NewShared(load Loader) *Shared {
	return &Shared{load: load}
}

// Engine returns the loaded engine, loading it if needed. A failed load is
// not remembered; the next call tries again. The load itself is detached
// from ctx so one impatient caller cannot fail it for everyone waiting.
func (s *Shared) Engine(ctx context.Context) (Engine, error) {
	if box := s.engine.Load(); box != nil {
		return box.Engine, nil
	}

	ch := s.group.DoChan("engine", func() (_ any, err error) {
		if box := s.engine.Load(); box != nil {
			return box.Engine, nil
		}
		// DoChan re-panics on its own goroutine, out of reach of callers.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("loader panicked: %v", r)
			}
		}()
		s.loads.Add(1)
		eng, err := s.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.engine.Store(&engineBox{eng})
		log.Info().Str("component", "transcribe").Str("backend", eng.Name()).Msg("transcription engine loaded")
		return eng, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("loading transcription engine: %w", res.Err)
		}
		return res.Val.(Engine), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Loaded reports whether the engine has been built.
func (s *Shared) Loaded() bool { return s.engine.Load() != nil }

// Loads returns how many times the loader has been invoked.
func (s *Shared) Loads() int64 { return s.loads.Load() }

// Options tunes the Adapter's acceptance rules.
type Options struct {
	// MinChars is the shortest transcript, in runes, that is accepted.
	MinChars int

	// SilenceThreshold is the peak amplitude below which audio is treated
	// as silence and never sent to the engine.
	SilenceThreshold float32
}

// Adapter applies the acceptance rules around the shared engine.
type Adapter struct {
	shared *Shared
	opts   Options
}

// NewAdapter creates an Adapter. MinChars below 1 is raised to 1.
func NewAdapter(shared *Shared, opts Options) *Adapter {
	if opts.MinChars < 1 {
		opts.MinChars = 1
	}
	return &Adapter{shared: shared, opts: opts}
}

// blankMarkers are placeholder tokens whisper-family models emit for
// non-speech.
var blankMarkers = strings.NewReplacer(
	"[BLANK_AUDIO]", "",
	"[blank_audio]", "",
	"[silence]", "",
	"(silence)", "",
	"[ Silence ]", "",
)

// Transcribe returns the cleaned transcript of audio. Errors are
// *apperr.Error values of kind EMPTY_AUDIO, INAUDIBLE_AUDIO, TIMEOUT or
// TRANSCRIPTION_ERROR.
func (a *Adapter) Transcribe(ctx context.Context, audio message.NormalizedAudio) (string, error) {
	if len(audio.Samples) == 0 {
		return "", apperr.EmptyAudio()
	}
	if peak := audio.Peak(); peak < a.opts.SilenceThreshold {
		return "", apperr.Inaudible().WithDetail("peak", peak)
	}

	eng, err := a.shared.Engine(ctx)
	if err != nil {
		return "", classify(ctx, err)
	}

	raw, err := eng.Transcribe(ctx, audio)
	if err != nil {
		return "", classify(ctx, err)
	}

	text := strings.Join(strings.Fields(blankMarkers.Replace(raw)), " ")
	if utf8.RuneCountInString(text) < a.opts.MinChars {
		return "", apperr.Inaudible().WithDetail("transcript_chars", utf8.RuneCountInString(text))
	}
	return text, nil
}

// Ready reports whether the underlying engine is loaded.
func (a *Adapter) Ready() bool { return a.shared.Loaded() }

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Timeout("transcribe").WithCause(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return apperr.Canceled("transcribe").WithCause(err)
	}
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	return apperr.Transcription(err)
}
