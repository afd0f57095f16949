// Package transport defines the interface for pluggable request transports.
//
// Each transport (HTTP, gRPC) accepts one audio clip per request, enforces the
// size limit at the boundary and hands the clip to the pipeline. Transports do
// not care how the clip is processed; they only work with the Handler contract.
package transport

import (
	"context"
	"net/http"

	"github.com/nadzzz/voxcmd/internal/apperr"
	"github.com/nadzzz/voxcmd/internal/message"
)

// Handler processes one clip. It always returns a Result, never an error.
type Handler func(ctx context.Context, clip message.AudioClip) message.Result

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts accepting requests and passes them to the handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}

// StatusFor returns the HTTP status for a result: 200 for success and for
// degraded results, otherwise the status of the error kind.
func StatusFor(res message.Result) int {
	if res.Success {
		return http.StatusOK
	}
	return apperr.New(res.ErrorKind).HTTPStatus
}
