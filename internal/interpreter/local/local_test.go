package local

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nadzzz/voxcmd/internal/config"
)

func TestExtractor_Ollama(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":    "llama3.2:3b",
			"response": `{"intent":"VIEW_MATERIALS","data":{},"message":"Here are the materials."}`,
			"done":     true,
		})
	}))
	defer srv.Close()

	e := New(config.LocalConfig{Endpoint: srv.URL + "/api/generate", Model: "llama3.2:3b"})
	text, err := e.Extract(context.Background(), "show me the materials")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(text, "VIEW_MATERIALS") {
		t.Errorf("Extract() = %q", text)
	}
	if got["format"] != "json" || got["stream"] != false || got["model"] != "llama3.2:3b" {
		t.Errorf("request = %v", got)
	}
	if sys, _ := got["system"].(string); !strings.Contains(sys, "ADD_WORKLOG") {
		t.Error("system prompt missing from request")
	}
	if prompt, _ := got["prompt"].(string); !strings.Contains(prompt, "show me the materials") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestExtractor_ChatCompletions(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": `{"intent":"UNKNOWN"}`}}},
		})
	}))
	defer srv.Close()

	e := New(config.LocalConfig{Endpoint: srv.URL + "/v1/chat/completions", Model: "qwen2.5"})
	text, err := e.Extract(context.Background(), "what's the weather")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != `{"intent":"UNKNOWN"}` {
		t.Errorf("Extract() = %q", text)
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("messages = %v", got["messages"])
	}
}

func TestExtractor_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"model not loaded"}`},
		{"empty response", http.StatusOK, `{"response":""}`},
		{"unrecognized shape", http.StatusOK, `{"foo":"bar"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e := New(config.LocalConfig{Endpoint: srv.URL + "/api/generate"})
			if _, err := e.Extract(context.Background(), "x"); err == nil {
				t.Fatal("Extract() error = nil")
			}
		})
	}
}
