package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nadzzz/voxcmd/internal/config"
	"github.com/nadzzz/voxcmd/internal/message"
)

func tone() message.NormalizedAudio {
	s := make([]float32, 3200)
	for i := range s {
		s[i] = 0.2
	}
	return message.NormalizedAudio{Samples: s}
}

func TestEngine_Transcribe(t *testing.T) {
	var gotModel, gotLang string
	var gotWAV []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotWAV, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "add fifty dollars for food"})
	}))
	defer srv.Close()

	e := New(config.TranscriptionOpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Language: "en"})
	text, err := e.Transcribe(context.Background(), tone())
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "add fifty dollars for food" {
		t.Errorf("text = %q", text)
	}
	if gotModel != defaultModel || gotLang != "en" {
		t.Errorf("model = %q, language = %q", gotModel, gotLang)
	}
	if len(gotWAV) < 44 || string(gotWAV[:4]) != "RIFF" || string(gotWAV[8:12]) != "WAVE" {
		t.Errorf("upload is not a WAV file (%d bytes)", len(gotWAV))
	}
}

func TestEngine_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`)
	}))
	defer srv.Close()

	e := New(config.TranscriptionOpenAIConfig{BaseURL: srv.URL + "/v1"})
	if _, err := e.Transcribe(context.Background(), tone()); err == nil {
		t.Fatal("Transcribe() error = nil")
	}
}

func TestEngine_Deadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	e := New(config.TranscriptionOpenAIConfig{BaseURL: srv.URL + "/v1"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.Transcribe(ctx, tone())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestLoader_VerifyModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models/whisper-1" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"whisper-1","object":"model","owned_by":"openai"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"message":"model not found"}}`)
	}))
	defer srv.Close()

	ok := Loader(config.TranscriptionOpenAIConfig{BaseURL: srv.URL + "/v1", VerifyModel: true})
	if _, err := ok(context.Background()); err != nil {
		t.Errorf("Loader(whisper-1) error = %v", err)
	}

	missing := Loader(config.TranscriptionOpenAIConfig{BaseURL: srv.URL + "/v1", Model: "nope", VerifyModel: true})
	if _, err := missing(context.Background()); err == nil {
		t.Error("Loader(nope) error = nil")
	}
}
