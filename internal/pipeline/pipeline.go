// Package pipeline runs one audio clip through ingestion, transcription,
// intent extraction and parsing, and turns every outcome into a
// message.Result.
//
// The flow is strictly sequential:
//
//	Idle → Ingesting → Transcribing → Extracting → Parsing → Succeeded
//	                 ↘            ↘             ↘          ↘ Failed
//
// Process never returns an error and never panics. Temporary resources
// created for a run are released before Process returns.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nadzzz/voxcmd/internal/apperr"
	"github.com/nadzzz/voxcmd/internal/command"
	"github.com/nadzzz/voxcmd/internal/message"
	"github.com/nadzzz/voxcmd/internal/metrics"
	"github.com/nadzzz/voxcmd/internal/resource"
	"github.com/nadzzz/voxcmd/internal/telemetry"
)

// MalformedMessage is shown when the model's reply could not be read as a
// command.
const MalformedMessage = "Sorry, I heard you but couldn't understand the command. Please try again."

// Normalizer decodes a clip into mono 16 kHz samples. Temporary files go
// into scope.
type Normalizer interface {
	Normalize(ctx context.Context, scope *resource.Scope, clip message.AudioClip) (message.NormalizedAudio, error)
}

// Transcriber converts samples into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio message.NormalizedAudio) (string, error)
}

// Extractor asks a language model for a command. The reply is untrusted.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (string, error)
}

// Options bounds a run.
type Options struct {
	MaxAudioBytes        int64
	IngestTimeout        time.Duration
	TranscriptionTimeout time.Duration
	ExtractionTimeout    time.Duration
	Metrics              *metrics.Metrics
}

// Pipeline is safe for concurrent use; runs share nothing but the stage
// implementations.
type Pipeline struct {
	normalizer  Normalizer
	transcriber Transcriber
	extractor   Extractor
	parser      *command.Parser
	opts        Options
	now         func() time.Time
}

// New creates a Pipeline. A nil parser uses non-strict parsing.
func New(n Normalizer, t Transcriber, e Extractor, p *command.Parser, opts Options) *Pipeline {
	if p == nil {
		p = command.NewParser(false)
	}
	return &Pipeline{
		normalizer:  n,
		transcriber: t,
		extractor:   e,
		parser:      p,
		opts:        opts,
		now:         time.Now,
	}
}

// Process runs clip through every stage and reports the outcome.
func (p *Pipeline) Process(ctx context.Context, clip message.AudioClip) message.Result {
	_, res := p.process(ctx, clip)
	return res
}

func (p *Pipeline) process(ctx context.Context, clip message.AudioClip) (run *Run, res message.Result) {
	run = newRun(uuid.NewString(), p.now())
	logger := log.With().Str("run_id", run.ID).Logger()

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("voxcmd.run_id", run.ID),
		attribute.Int("voxcmd.audio_bytes", len(clip.Data)),
	))
	defer span.End()

	p.opts.Metrics.RunStarted(len(clip.Data))
	scope := resource.NewScope()
	var transcript string

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Str("state", run.State().String()).
				Msg("pipeline panicked")
			res = p.fail(run, &logger, apperr.Internal(fmt.Errorf("panic: %v", rec)), transcript)
		}
		if err := scope.Close(); err != nil {
			logger.Warn().Err(err).Msg("releasing run resources")
		}
		res.RunID = run.ID
		p.opts.Metrics.RunFinished(res.Success, string(res.ErrorKind))

		span.SetAttributes(attribute.Bool("voxcmd.success", res.Success))
		if !res.Success {
			span.SetStatus(codes.Error, string(res.ErrorKind))
		}
		logger.Info().
			Bool("success", res.Success).
			Str("kind", string(res.ErrorKind)).
			Dur("duration", p.now().Sub(run.Started)).
			Strs("states", stateStrings(run.History())).
			Msg("run finished")
	}()

	logger.Info().Int("bytes", len(clip.Data)).Str("content_type", clip.ContentType).Msg("run started")

	if len(clip.Data) == 0 {
		return run, p.fail(run, &logger, apperr.EmptyAudio(), "")
	}
	if limit := p.opts.MaxAudioBytes; limit > 0 && clip.Size() > limit {
		return run, p.fail(run, &logger, apperr.AudioTooLarge(clip.Size(), limit), "")
	}

	// Ingesting
	var audio message.NormalizedAudio
	err := p.stage(ctx, run, &logger, Ingesting, p.opts.IngestTimeout, apperr.KindTranscode, func(ctx context.Context) error {
		var err error
		audio, err = p.normalizer.Normalize(ctx, scope, clip)
		return err
	})
	if releaseErr := scope.Close(); releaseErr != nil {
		logger.Warn().Err(releaseErr).Msg("releasing ingestion resources")
	}
	if err != nil {
		return run, p.fail(run, &logger, err, "")
	}
	logger.Debug().Dur("audio_duration", audio.Duration()).Float32("peak", audio.Peak()).Msg("audio normalized")

	// Transcribing
	err = p.stage(ctx, run, &logger, Transcribing, p.opts.TranscriptionTimeout, apperr.KindTranscription, func(ctx context.Context) error {
		var err error
		transcript, err = p.transcriber.Transcribe(ctx, audio)
		return err
	})
	if err != nil {
		return run, p.fail(run, &logger, err, transcript)
	}
	logger.Info().Int("transcript_length", len(transcript)).Msg("transcription complete")

	// Extracting
	var raw string
	err = p.stage(ctx, run, &logger, Extracting, p.opts.ExtractionTimeout, apperr.KindExtraction, func(ctx context.Context) error {
		var err error
		raw, err = p.extractor.Extract(ctx, transcript)
		return err
	})
	if err != nil {
		return run, p.fail(run, &logger, err, transcript)
	}

	// Parsing
	var parsed command.Parsed
	err = p.stage(ctx, run, &logger, Parsing, 0, apperr.KindMalformedResponse, func(context.Context) error {
		var err error
		parsed, err = p.parser.Parse(raw)
		return err
	})
	if err != nil {
		return run, p.fail(run, &logger, err, transcript)
	}
	if verr := parsed.ValidationErr(); verr != nil {
		logger.Warn().
			Str("kind", string(verr.Kind)).
			Interface("coercions", verr.Details["coercions"]).
			Msg("model output coerced")
		for _, c := range parsed.Coercions {
			p.opts.Metrics.Coerced(c.Field)
		}
	}

	if err := p.transition(run, &logger, Succeeded); err != nil {
		return run, p.fail(run, &logger, apperr.Internal(err), transcript)
	}
	logger.Info().Str("intent", string(parsed.Command.Intent)).Msg("command extracted")
	return run, message.Succeeded(parsed.Command, transcript)
}

// stage moves run into state and runs fn under its own deadline and span.
// Errors come back as *apperr.Error, defaulting to kind.
func (p *Pipeline) stage(ctx context.Context, run *Run, logger *zerolog.Logger, state State, timeout time.Duration, kind apperr.Kind, fn func(context.Context) error) error {
	if err := p.transition(run, logger, state); err != nil {
		return apperr.Internal(err)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline."+state.String())
	defer span.End()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := p.now()
	err := fn(ctx)
	p.opts.Metrics.ObserveStage(state.String(), p.now().Sub(start))
	if err == nil {
		return nil
	}

	ae := classify(ctx, state, kind, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(ae.Kind))
	return ae
}

func classify(ctx context.Context, state State, kind apperr.Kind, err error) *apperr.Error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Timeout(state.String()).WithCause(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return apperr.Canceled(state.String()).WithCause(err)
	}
	return apperr.Wrap(kind, err)
}

func (p *Pipeline) transition(run *Run, logger *zerolog.Logger, to State) error {
	from := run.State()
	if err := run.advance(to); err != nil {
		return err
	}
	logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state transition")
	return nil
}

// fail moves run to Failed and builds the user-facing result. The cause is
// logged and dropped.
func (p *Pipeline) fail(run *Run, logger *zerolog.Logger, err error, transcript string) message.Result {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Internal(err)
	}
	if run.State() != Failed {
		if terr := p.transition(run, logger, Failed); terr != nil {
			// Only reachable from Succeeded; force the terminal state.
			run.state = Failed
			run.history = append(run.history, Failed)
		}
	}

	evt := logger.Warn()
	if ae.Kind == apperr.KindInternal {
		evt = logger.Error()
	}
	evt.Err(ae.Cause).
		Str("kind", string(ae.Kind)).
		Interface("details", ae.Details).
		Msg("run failed")

	res := message.Failed(ae, transcript)
	if ae.Kind == apperr.KindMalformedResponse {
		res.Message = MalformedMessage
	}
	return res
}

func stateStrings(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.String()
	}
	return out
}
