// Package audio normalizes arbitrary recorded audio into mono 16 kHz float
// PCM, the only format the transcription stage accepts.
//
// PCM WAV is decoded in memory. Every other container is handed to an
// external ffmpeg process, streamed through stdin where the container
// allows it and staged to a scoped temporary file where it does not.
package audio

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nadzzz/voxcmd/internal/apperr"
	"github.com/nadzzz/voxcmd/internal/message"
	"github.com/nadzzz/voxcmd/internal/resource"
)

// Options configures a Normalizer.
type Options struct {
	// FFmpegPath is the ffmpeg binary. Empty disables non-WAV input.
	FFmpegPath string

	// TempDir is where seek-requiring containers are staged. Empty means os.TempDir().
	TempDir string

	// MaxDuration rejects clips that decode longer than this. Zero disables the check.
	MaxDuration time.Duration
}

// Normalizer converts AudioClips into NormalizedAudio. It holds no
// per-call state and is safe for concurrent use.
type Normalizer struct {
	opts Options
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

// Normalize decodes clip. Temporary files are registered with scope and
// live until the caller closes it. Errors are *apperr.Error values of kind
// TRANSCODE_ERROR, EMPTY_AUDIO, AUDIO_TOO_LONG, TIMEOUT or CANCELED.
func (n *Normalizer) Normalize(ctx context.Context, scope *resource.Scope, clip message.AudioClip) (message.NormalizedAudio, error) {
	if len(clip.Data) == 0 {
		return message.NormalizedAudio{}, apperr.EmptyAudio()
	}

	c := detect(clip.Data, clip.ContentType)
	logger := log.With().Str("component", "audio").Str("container", c.mime).Int("bytes", len(clip.Data)).Logger()

	var (
		samples []float32
		err     error
	)
	switch {
	case c.wav:
		samples, err = decodeWAV(clip.Data)
		if errors.Is(err, errNotPCM) {
			logger.Debug().Msg("wav is not integer PCM, using ffmpeg")
			samples, err = n.ffmpeg(ctx, scope, clip.Data, c)
		}
	default:
		samples, err = n.ffmpeg(ctx, scope, clip.Data, c)
	}
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return message.NormalizedAudio{}, apperr.Timeout("ingest").WithCause(err)
		case errors.Is(ctx.Err(), context.Canceled):
			return message.NormalizedAudio{}, apperr.Canceled("ingest").WithCause(err)
		}
		if ae, ok := apperr.As(err); ok {
			return message.NormalizedAudio{}, ae
		}
		return message.NormalizedAudio{}, apperr.Transcode(err).WithDetail("container", c.mime)
	}

	if len(samples) == 0 {
		return message.NormalizedAudio{}, apperr.EmptyAudio()
	}

	out := message.NormalizedAudio{Samples: samples}
	if n.opts.MaxDuration > 0 && out.Duration() > n.opts.MaxDuration {
		return message.NormalizedAudio{}, apperr.New(apperr.KindAudioTooLong).
			WithDetail("duration", out.Duration().String()).
			WithDetail("limit", n.opts.MaxDuration.String())
	}

	logger.Debug().Dur("duration", out.Duration()).Msg("audio normalized")
	return out, nil
}
