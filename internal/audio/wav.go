package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"

	"github.com/nadzzz/voxcmd/internal/message"
)

var errNotPCM = errors.New("wav is not integer PCM")

const wavFormatPCM = 1

// decodeWAV decodes integer PCM WAV, keeps the first channel and resamples
// to message.SampleRate.
func decodeWAV(data []byte) ([]float32, error) {
	probe := wav.NewDecoder(bytes.NewReader(data))
	if !probe.IsValidFile() {
		return nil, errors.New("invalid wav header")
	}
	if probe.WavAudioFormat != wavFormatPCM {
		return nil, errNotPCM
	}
	switch probe.BitDepth {
	case 16, 24, 32:
	default:
		return nil, errNotPCM
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		if dec.PCMSize == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding wav: %w", err)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		return nil, errors.New("wav declares zero channels")
	}
	bytesPerSample := int(dec.BitDepth) / 8
	if declared := dec.PCMSize / bytesPerSample; dec.PCMSize > 0 && len(buf.Data) < declared {
		return nil, fmt.Errorf("wav truncated: %d of %d samples present", len(buf.Data), declared)
	}

	scale := float32(int64(1) << (dec.BitDepth - 1))
	frames := len(buf.Data) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		mono[i] = float32(buf.Data[i*channels]) / scale
	}

	return resample(mono, int(dec.SampleRate), message.SampleRate), nil
}

// EncodeWAV renders normalized audio as a 16-bit mono WAV file in memory.
func EncodeWAV(a message.NormalizedAudio) ([]byte, error) {
	ints := make([]int, len(a.Samples))
	for i, s := range a.Samples {
		ints[i] = int(clampInt16(s))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: message.SampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}

	w := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(w, message.SampleRate, 16, 1, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encoder write buffer: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoder close: %w", err)
	}

	out, err := io.ReadAll(w.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading wav into memory: %w", err)
	}
	return out, nil
}

// PCM16 renders normalized audio as signed 16-bit little-endian PCM.
func PCM16(a message.NormalizedAudio) []byte {
	out := make([]byte, 2*len(a.Samples))
	for i, s := range a.Samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(clampInt16(s)))
	}
	return out
}

func clampInt16(s float32) int16 {
	v := math.Round(float64(s) * 32767)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
