// Package message defines the core data types flowing through the voxcmd pipeline.
package message

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/nadzzz/voxcmd/internal/apperr"
)

// SampleRate is the only sample rate NormalizedAudio is ever produced at.
const SampleRate = 16000

// AudioClip is one complete recording as received at the service boundary.
type AudioClip struct {
	// Data is the raw container bytes (WAV, WebM, OGG, MP4, ...).
	Data []byte `json:"audio"`

	// ContentType is the MIME type declared by the sender. It is a hint only;
	// the container is sniffed from Data.
	ContentType string `json:"content_type,omitempty"`
}

// Size returns the clip length in bytes.
func (c AudioClip) Size() int64 { return int64(len(c.Data)) }

// NormalizedAudio is mono, 16 kHz, float32 PCM in [-1, 1].
type NormalizedAudio struct {
	Samples []float32
}

// Duration returns the playback length of the audio.
func (a NormalizedAudio) Duration() time.Duration {
	return time.Duration(len(a.Samples)) * time.Second / SampleRate
}

// Peak returns the maximum absolute sample value.
func (a NormalizedAudio) Peak() float32 {
	var peak float32
	for _, s := range a.Samples {
		if v := float32(math.Abs(float64(s))); v > peak {
			peak = v
		}
	}
	return peak
}

// Intent is the closed set of commands the pipeline can produce.
type Intent string

const (
	IntentAddWorklog    Intent = "ADD_WORKLOG"
	IntentAddExpense    Intent = "ADD_EXPENSE"
	IntentViewMaterials Intent = "VIEW_MATERIALS"
	IntentUnknown       Intent = "UNKNOWN"
)

// Intents lists every valid Intent, UNKNOWN last.
var Intents = []Intent{IntentAddWorklog, IntentAddExpense, IntentViewMaterials, IntentUnknown}

// Valid reports whether i is one of the four known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentAddWorklog, IntentAddExpense, IntentViewMaterials, IntentUnknown:
		return true
	}
	return false
}

// ParseIntent converts an untrusted value into an Intent. Matching ignores
// case and surrounding whitespace. Anything else yields IntentUnknown and
// false, so the result is always a member of the enum.
func ParseIntent(v any) (Intent, bool) {
	s, ok := v.(string)
	if !ok {
		return IntentUnknown, false
	}
	i := Intent(strings.ToUpper(strings.TrimSpace(s)))
	if !i.Valid() {
		return IntentUnknown, false
	}
	return i, true
}

// StructuredCommand is the validated output of the pipeline.
type StructuredCommand struct {
	Intent  Intent         `json:"intent"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
}

// Result is the terminal outcome of one pipeline run. Exactly one of
// Command (success) or ErrorKind (failure) is meaningful, selected by Success.
type Result struct {
	RunID   string `json:"run_id,omitempty"`
	Success bool   `json:"success"`

	// Command is set on success.
	Command *StructuredCommand `json:"-"`

	// Transcript is the recognized text, when transcription got that far.
	Transcript string `json:"transcript,omitempty"`

	// ErrorKind categorizes a failure.
	ErrorKind apperr.Kind `json:"kind,omitempty"`

	// Error is the short user-facing failure description.
	Error string `json:"error,omitempty"`

	// Message is an optional longer user-facing explanation on failure.
	Message string `json:"message,omitempty"`
}

// Succeeded builds a successful Result.
func Succeeded(cmd StructuredCommand, transcript string) Result {
	return Result{Success: true, Command: &cmd, Transcript: transcript}
}

// Failed builds a failed Result from an apperr.Error. Only the error's
// user-facing message is copied; the cause stays out of the result.
func Failed(err *apperr.Error, transcript string) Result {
	return Result{
		Success:    false,
		Transcript: transcript,
		ErrorKind:  err.Kind,
		Error:      err.Message,
	}
}

// UserMessage returns the human-readable text of the result.
func (r Result) UserMessage() string {
	if r.Success && r.Command != nil {
		return r.Command.Message
	}
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

type successWire struct {
	RunID      string         `json:"run_id,omitempty"`
	Success    bool           `json:"success"`
	Intent     Intent         `json:"intent"`
	Data       map[string]any `json:"data"`
	Message    string         `json:"message"`
	Transcript string         `json:"transcript"`
}

type failureWire struct {
	RunID      string      `json:"run_id,omitempty"`
	Success    bool        `json:"success"`
	Error      string      `json:"error"`
	Kind       apperr.Kind `json:"kind,omitempty"`
	Message    string      `json:"message,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
}

// MarshalJSON renders the success shape
// {success, intent, data, message, transcript} or the failure shape
// {success, error, kind, message?, transcript?}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Success && r.Command != nil {
		data := r.Command.Data
		if data == nil {
			data = map[string]any{}
		}
		return json.Marshal(successWire{
			RunID:      r.RunID,
			Success:    true,
			Intent:     r.Command.Intent,
			Data:       data,
			Message:    r.Command.Message,
			Transcript: r.Transcript,
		})
	}
	return json.Marshal(failureWire{
		RunID:      r.RunID,
		Error:      r.Error,
		Kind:       r.ErrorKind,
		Message:    r.Message,
		Transcript: r.Transcript,
	})
}

// UnmarshalJSON accepts either wire shape.
func (r *Result) UnmarshalJSON(b []byte) error {
	var w struct {
		RunID      string         `json:"run_id"`
		Success    bool           `json:"success"`
		Intent     Intent         `json:"intent"`
		Data       map[string]any `json:"data"`
		Message    string         `json:"message"`
		Transcript string         `json:"transcript"`
		Error      string         `json:"error"`
		Kind       apperr.Kind    `json:"kind"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Result{RunID: w.RunID, Success: w.Success, Transcript: w.Transcript}
	if w.Success {
		r.Command = &StructuredCommand{Intent: w.Intent, Data: w.Data, Message: w.Message}
		return nil
	}
	r.Error = w.Error
	r.ErrorKind = w.Kind
	r.Message = w.Message
	return nil
}
