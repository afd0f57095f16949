package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNew_DefaultsPerKind(t *testing.T) {
	tests := []struct {
		kind      Kind
		status    int
		retryable bool
	}{
		{KindTranscode, http.StatusUnsupportedMediaType, false},
		{KindInaudibleAudio, http.StatusUnprocessableEntity, false},
		{KindAudioTooLarge, http.StatusRequestEntityTooLarge, false},
		{KindExtraction, http.StatusBadGateway, true},
		{KindTimeout, http.StatusGatewayTimeout, true},
		{KindMalformedResponse, http.StatusOK, false},
		{KindCanceled, StatusClientClosedRequest, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := New(tt.kind)
			if e.HTTPStatus != tt.status {
				t.Errorf("HTTPStatus = %d, want %d", e.HTTPStatus, tt.status)
			}
			if e.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", e.Retryable, tt.retryable)
			}
			if e.Message == "" {
				t.Error("Message is empty")
			}
		})
	}
}

func TestNew_UnknownKindFallsBackToInternal(t *testing.T) {
	e := New(Kind("NOPE"))
	if e.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d", e.HTTPStatus)
	}
	if e.Message != UserMessage(KindInternal) {
		t.Errorf("Message = %q", e.Message)
	}
}

func TestWrap_UnwrapAndAs(t *testing.T) {
	cause := context.DeadlineExceeded
	err := fmt.Errorf("stage: %w", Wrap(KindExtraction, cause))

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("cause not reachable through errors.Is")
	}
	ae, ok := As(err)
	if !ok {
		t.Fatal("As() = false")
	}
	if ae.Kind != KindExtraction {
		t.Errorf("Kind = %s", ae.Kind)
	}
	if !errors.Is(err, New(KindExtraction)) {
		t.Error("errors.Is by kind = false")
	}
	if errors.Is(err, New(KindTimeout)) {
		t.Error("errors.Is matched a different kind")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %s", got)
	}
	if got := KindOf(Inaudible()); got != KindInaudibleAudio {
		t.Errorf("KindOf(inaudible) = %s", got)
	}
}

func TestUserMessage_NeverLeaksCause(t *testing.T) {
	e := Extraction(errors.New("quota exceeded for key sk-123"))
	if e.Message != "Could not process audio" {
		t.Errorf("Message = %q", e.Message)
	}
}

func TestAudioTooLarge_Details(t *testing.T) {
	e := AudioTooLarge(2048, 1024)
	if e.Details["bytes"] != int64(2048) || e.Details["limit"] != int64(1024) {
		t.Errorf("Details = %v", e.Details)
	}
}
