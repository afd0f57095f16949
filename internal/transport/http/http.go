// Package http implements the HTTP transport for voxcmd.
//
// This transport exposes a REST endpoint that takes one audio recording per
// request and returns the structured command. It is best suited for web
// clients and phones.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/voxcmd/internal/apperr"
	"github.com/nadzzz/voxcmd/internal/message"
	"github.com/nadzzz/voxcmd/internal/transport"
)

// multipartOverhead is allowed on top of the audio limit for form framing.
const multipartOverhead = 64 << 10

// Transport implements transport.Transport over HTTP.
type Transport struct {
	port     int
	maxBytes int64
	server   *http.Server
}

// New creates a new HTTP transport on the given port. Request bodies larger
// than maxBytes are rejected before they reach the pipeline.
func New(port int, maxBytes int64) *Transport {
	return &Transport{port: port, maxBytes: maxBytes}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Routes returns the request multiplexer for handler.
func (t *Transport) Routes(handler transport.Handler) http.Handler {
	mux := http.NewServeMux()

	// POST /v1/commands: one recording in, one command out.
	mux.HandleFunc("POST /v1/commands", func(w http.ResponseWriter, r *http.Request) {
		t.handleCommand(w, r, handler)
	})

	// Swagger UI: serves the registered OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	return mux
}

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Int("port", t.port).Msg("http transport listening")

	go func() {
		<-ctx.Done()
		log.Info().Msg("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// handleCommand processes a POST /v1/commands request.
//
// @Summary     Turn a voice recording into a command
// @Description Accepts one complete audio recording, either as the raw request body or as the "audio" field of a
// @Description multipart form. The recording is normalized, transcribed and interpreted into one of the
// @Description ADD_WORKLOG, ADD_EXPENSE, VIEW_MATERIALS or UNKNOWN intents.
// @Tags        commands
// @Accept      audio/wav
// @Accept      audio/webm
// @Accept      audio/ogg
// @Accept      audio/mp4
// @Accept      multipart/form-data
// @Produce     json
// @Param       audio  formData  file  false  "Audio recording (multipart uploads)"
// @Success     200  {object}  message.Result  "Command extracted, or the model reply could not be interpreted"
// @Failure     400  {object}  message.Result  "Invalid request"
// @Failure     413  {object}  message.Result  "Recording too large or too long"
// @Failure     415  {object}  message.Result  "Unreadable audio"
// @Failure     422  {object}  message.Result  "No speech detected"
// @Failure     502  {object}  message.Result  "Speech or language model unavailable"
// @Failure     504  {object}  message.Result  "Processing took too long"
// @Router      /v1/commands [post]
func (t *Transport) handleCommand(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	clip, err := t.readClip(w, r)
	if err != nil {
		ae, ok := apperr.As(err)
		if !ok {
			ae = apperr.Wrap(apperr.KindInvalidInput, err)
		}
		log.Warn().Err(err).Str("kind", string(ae.Kind)).Msg("rejected request")
		writeResult(w, message.Failed(ae, ""))
		return
	}

	writeResult(w, handler(r.Context(), clip))
}

func (t *Transport) readClip(w http.ResponseWriter, r *http.Request) (message.AudioClip, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, t.maxBytes+multipartOverhead)
		return t.readMultipart(r)
	}

	if r.ContentLength > t.maxBytes {
		return message.AudioClip{}, apperr.AudioTooLarge(r.ContentLength, t.maxBytes)
	}
	r.Body = http.MaxBytesReader(w, r.Body, t.maxBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return message.AudioClip{}, t.bodyErr(err)
	}
	return message.AudioClip{Data: data, ContentType: contentType}, nil
}

func (t *Transport) readMultipart(r *http.Request) (message.AudioClip, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return message.AudioClip{}, apperr.Wrap(apperr.KindInvalidInput, err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return message.AudioClip{}, apperr.New(apperr.KindInvalidInput).WithDetail("reason", `missing "audio" field`)
		}
		if err != nil {
			return message.AudioClip{}, t.bodyErr(err)
		}
		if part.FormName() != "audio" {
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, t.maxBytes+1))
		_ = part.Close()
		if err != nil {
			return message.AudioClip{}, t.bodyErr(err)
		}
		if int64(len(data)) > t.maxBytes {
			return message.AudioClip{}, apperr.AudioTooLarge(int64(len(data)), t.maxBytes)
		}
		return message.AudioClip{Data: data, ContentType: part.Header.Get("Content-Type")}, nil
	}
}

func (t *Transport) bodyErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.AudioTooLarge(tooLarge.Limit+1, t.maxBytes)
	}
	return apperr.Wrap(apperr.KindInvalidInput, err)
}

func writeResult(w http.ResponseWriter, res message.Result) {
	w.Header().Set("Content-Type", "application/json")
	if res.RunID != "" {
		w.Header().Set("X-Run-ID", res.RunID)
	}
	w.WriteHeader(transport.StatusFor(res))
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Error().Err(err).Msg("writing response")
	}
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}
