package wyoming

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nadzzz/voxcmd/internal/config"
	"github.com/nadzzz/voxcmd/internal/message"
)

// fakeServer accepts connections and answers each with handle.
func fakeServer(t *testing.T, handle func(r *bufio.Reader, w net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(bufio.NewReader(conn), conn)
			}()
		}
	}()
	return ln.Addr().String()
}

func samples(n int) message.NormalizedAudio {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.25
	}
	return message.NormalizedAudio{Samples: s}
}

func TestProtocol_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := event{Type: "audio-chunk", Data: map[string]any{"rate": 16000}, Payload: []byte{1, 2, 3, 4}}
	if err := writeEvent(&buf, in); err != nil {
		t.Fatal(err)
	}
	if err := writeEvent(&buf, event{Type: "audio-stop"}); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(&buf)
	got, err := readEvent(r)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != "audio-chunk" || got.Data["rate"] != float64(16000) || !bytes.Equal(got.Payload, in.Payload) {
		t.Errorf("got %+v", got)
	}
	stop, err := readEvent(r)
	if err != nil {
		t.Fatal(err)
	}
	if stop.Type != "audio-stop" || stop.Data != nil || stop.Payload != nil {
		t.Errorf("got %+v", stop)
	}
}

func TestProtocol_InlineData(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString(`{"type":"transcript","data":{"text":"hello there"}}` + "\n"))
	evt, err := readEvent(r)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Data["text"] != "hello there" {
		t.Errorf("Data = %v", evt.Data)
	}
}

func TestProtocol_RejectsOversizedSection(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString(`{"type":"x","payload_length":999999999}` + "\n"))
	if _, err := readEvent(r); err == nil {
		t.Fatal("readEvent() error = nil")
	}
}

func TestEngine_Transcribe(t *testing.T) {
	var (
		gotTypes []string
		gotPCM   int
		gotLang  any
	)
	done := make(chan struct{})
	addr := fakeServer(t, func(r *bufio.Reader, w net.Conn) {
		defer close(done)
		for {
			evt, err := readEvent(r)
			if err != nil {
				return
			}
			gotTypes = append(gotTypes, evt.Type)
			switch evt.Type {
			case "transcribe":
				gotLang = evt.Data["language"]
			case "audio-chunk":
				gotPCM += len(evt.Payload)
			case "audio-stop":
				_ = writeEvent(w, event{Type: "transcript", Data: map[string]any{"text": "log three hours on framing"}})
				return
			}
		}
	})

	e := New(config.WyomingConfig{Endpoint: "tcp://" + addr, Language: "en"})
	// 1.5 seconds of audio spans two chunks.
	text, err := e.Transcribe(context.Background(), samples(24000))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	<-done

	if text != "log three hours on framing" {
		t.Errorf("text = %q", text)
	}
	want := []string{"transcribe", "audio-start", "audio-chunk", "audio-chunk", "audio-stop"}
	if len(gotTypes) != len(want) {
		t.Fatalf("events = %v, want %v", gotTypes, want)
	}
	for i := range want {
		if gotTypes[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, gotTypes[i], want[i])
		}
	}
	if gotPCM != 48000 {
		t.Errorf("pcm bytes = %d, want 48000", gotPCM)
	}
	if gotLang != "en" {
		t.Errorf("language = %v", gotLang)
	}
}

func TestEngine_ServerErrorEvent(t *testing.T) {
	addr := fakeServer(t, func(r *bufio.Reader, w net.Conn) {
		for {
			evt, err := readEvent(r)
			if err != nil {
				return
			}
			if evt.Type == "audio-stop" {
				_ = writeEvent(w, event{Type: "error", Data: map[string]any{"text": "model crashed"}})
				return
			}
		}
	})

	_, err := New(config.WyomingConfig{Endpoint: addr}).Transcribe(context.Background(), samples(1600))
	if err == nil {
		t.Fatal("Transcribe() error = nil")
	}
}

func TestEngine_Deadline(t *testing.T) {
	addr := fakeServer(t, func(r *bufio.Reader, w net.Conn) {
		// Read everything and never answer.
		for {
			if _, err := readEvent(r); err != nil {
				return
			}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := New(config.WyomingConfig{Endpoint: addr}).Transcribe(ctx, samples(1600))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestLoader(t *testing.T) {
	tests := []struct {
		name      string
		info      map[string]any
		wantModel string
		wantErr   bool
	}{
		{
			name: "asr with models",
			info: map[string]any{"asr": []any{map[string]any{
				"name":   "faster-whisper",
				"models": []any{map[string]any{"name": "small-int8"}},
			}}},
			wantModel: "small-int8",
		},
		{
			name:      "asr without models",
			info:      map[string]any{"asr": []any{map[string]any{"name": "vosk"}}},
			wantModel: "vosk",
		},
		{
			name:    "tts only",
			info:    map[string]any{"tts": []any{map[string]any{"name": "piper"}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := fakeServer(t, func(r *bufio.Reader, w net.Conn) {
				evt, err := readEvent(r)
				if err != nil || evt.Type != "describe" {
					return
				}
				_ = writeEvent(w, event{Type: "info", Data: tt.info})
			})

			eng, err := Loader(config.WyomingConfig{Endpoint: addr})(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("Loader() error = nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Loader() error = %v", err)
			}
			if got := eng.(*Engine).model; got != tt.wantModel {
				t.Errorf("model = %q, want %q", got, tt.wantModel)
			}
		})
	}
}
