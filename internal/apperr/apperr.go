// Package apperr defines the error taxonomy of the voice command pipeline.
//
// Every failure that can reach a caller is an *Error carrying a machine
// readable Kind and a short user-facing message. The underlying cause is
// kept for logs only and is never rendered into a response.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindTranscode         Kind = "TRANSCODE_ERROR"
	KindEmptyAudio        Kind = "EMPTY_AUDIO"
	KindInaudibleAudio    Kind = "INAUDIBLE_AUDIO"
	KindAudioTooLarge     Kind = "AUDIO_TOO_LARGE"
	KindAudioTooLong      Kind = "AUDIO_TOO_LONG"
	KindTranscription     Kind = "TRANSCRIPTION_ERROR"
	KindExtraction        Kind = "EXTRACTION_ERROR"
	KindTimeout           Kind = "TIMEOUT"
	KindMalformedResponse Kind = "MALFORMED_RESPONSE"
	KindValidation        Kind = "VALIDATION_ERROR"
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindCanceled          Kind = "CANCELED"
	KindInternal          Kind = "INTERNAL_ERROR"
)

// StatusClientClosedRequest is the non-standard status for a request whose
// caller went away before it finished.
const StatusClientClosedRequest = 499

type kindInfo struct {
	message   string
	status    int
	retryable bool
}

var kinds = map[Kind]kindInfo{
	KindTranscode:         {"Could not read the audio recording", http.StatusUnsupportedMediaType, false},
	KindEmptyAudio:        {"Could not understand audio", http.StatusUnprocessableEntity, false},
	KindInaudibleAudio:    {"Could not understand audio", http.StatusUnprocessableEntity, false},
	KindAudioTooLarge:     {"Audio recording is too large", http.StatusRequestEntityTooLarge, false},
	KindAudioTooLong:      {"Audio recording is too long", http.StatusRequestEntityTooLarge, false},
	KindTranscription:     {"Could not process audio", http.StatusBadGateway, true},
	KindExtraction:        {"Could not process audio", http.StatusBadGateway, true},
	KindTimeout:           {"Processing took too long", http.StatusGatewayTimeout, true},
	KindMalformedResponse: {"Could not interpret command", http.StatusOK, false},
	KindValidation:        {"Command was adjusted", http.StatusOK, false},
	KindInvalidInput:      {"Invalid request", http.StatusBadRequest, false},
	KindCanceled:          {"Request was cancelled", StatusClientClosedRequest, false},
	KindInternal:          {"Could not process audio", http.StatusInternalServerError, false},
}

// Error is the pipeline's structured error type.
type Error struct {
	// Kind is the machine-readable category.
	Kind Kind `json:"kind"`
	// Message is safe to show to an end user.
	Message string `json:"message"`
	// Retryable reports whether resubmitting the same clip may succeed.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended status for HTTP responses.
	HTTPStatus int `json:"-"`
	// Details holds diagnostic context for logs.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error.
	Cause error `json:"-"`
}

// New creates an Error of the given kind with its default user message.
func New(kind Kind) *Error {
	info, ok := kinds[kind]
	if !ok {
		info = kinds[KindInternal]
	}
	return &Error{
		Kind:       kind,
		Message:    info.message,
		Retryable:  info.retryable,
		HTTPStatus: info.status,
	}
}

// Wrap creates an Error of the given kind caused by err.
func Wrap(kind Kind, err error) *Error {
	return New(kind).WithCause(err)
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.New(k)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// WithCause sets the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// UserMessage returns the user-facing message for a kind.
func UserMessage(kind Kind) string {
	if info, ok := kinds[kind]; ok {
		return info.message
	}
	return kinds[KindInternal].message
}

// --- Common constructors ---

// Transcode reports audio that could not be decoded.
func Transcode(cause error) *Error { return Wrap(KindTranscode, cause) }

// EmptyAudio reports a clip that decoded to zero samples.
func EmptyAudio() *Error { return New(KindEmptyAudio) }

// Inaudible reports silence or a transcript too short to act on.
func Inaudible() *Error { return New(KindInaudibleAudio) }

// Transcription reports a speech-to-text backend failure.
func Transcription(cause error) *Error { return Wrap(KindTranscription, cause) }

// Extraction reports a text-generation backend failure.
func Extraction(cause error) *Error { return Wrap(KindExtraction, cause) }

// Timeout reports an operation that exceeded its deadline.
func Timeout(operation string) *Error {
	return New(KindTimeout).WithDetail("operation", operation)
}

// Canceled reports a run abandoned because its caller cancelled it.
func Canceled(operation string) *Error {
	return New(KindCanceled).WithDetail("operation", operation)
}

// MalformedResponse reports model output that could not be parsed.
func MalformedResponse(cause error) *Error { return Wrap(KindMalformedResponse, cause) }

// Internal reports an unexpected failure.
func Internal(cause error) *Error { return Wrap(KindInternal, cause) }

// AudioTooLarge reports a clip of size bytes exceeding limit bytes.
func AudioTooLarge(size, limit int64) *Error {
	return New(KindAudioTooLarge).WithDetail("bytes", size).WithDetail("limit", limit)
}
