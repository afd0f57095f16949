package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nadzzz/voxcmd/internal/apperr"
	"github.com/nadzzz/voxcmd/internal/message"
	"github.com/nadzzz/voxcmd/internal/resource"
)

// stderrLimit caps how much ffmpeg diagnostic output is kept for logs.
const stderrLimit = 4 << 10

// ffmpeg decodes data with an external ffmpeg process into mono float32 at
// message.SampleRate. The first input channel is kept.
func (n *Normalizer) ffmpeg(ctx context.Context, scope *resource.Scope, data []byte, c container) ([]float32, error) {
	if n.opts.FFmpegPath == "" {
		return nil, apperr.Transcode(fmt.Errorf("unsupported container %s and ffmpeg is disabled", c.mime)).
			WithDetail("container", c.mime)
	}

	input := "pipe:0"
	var stdin io.Reader = bytes.NewReader(data)
	if c.seek {
		path, err := stage(scope, n.opts.TempDir, data, c.ext)
		if err != nil {
			return nil, fmt.Errorf("staging %s input: %w", c.mime, err)
		}
		input = path
		stdin = nil
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-i", input}
	if n.opts.MaxDuration > 0 {
		// Decode a little past the limit so overlong clips are still detected.
		limit := n.opts.MaxDuration.Seconds() + 1
		args = append(args, "-t", strconv.FormatFloat(limit, 'f', 3, 64))
	}
	args = append(args,
		"-vn",
		"-af", "pan=mono|c0=c0",
		"-ar", strconv.Itoa(message.SampleRate),
		"-acodec", "pcm_f32le",
		"-f", "f32le",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, n.opts.FFmpegPath, args...)
	cmd.Stdin = stdin
	var stdout bytes.Buffer
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	log.Debug().Str("component", "audio").Str("input", input).Msg("running ffmpeg")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	raw := stdout.Bytes()
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("ffmpeg produced %d bytes, not a whole number of float32 samples", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return samples, nil
}

// stage writes data to a temporary file owned by scope. The file is
// removed when the scope closes, whether or not staging succeeded.
func stage(scope *resource.Scope, dir string, data []byte, ext string) (string, error) {
	f, err := os.CreateTemp(dir, "voxcmd-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()
	remove := func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := scope.Acquire("staged audio "+path, remove); err != nil {
		_ = f.Close()
		return "", err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return path, nil
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
