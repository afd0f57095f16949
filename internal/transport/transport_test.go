package transport

import (
	"net/http"
	"testing"

	"github.com/nadzzz/voxcmd/internal/apperr"
	"github.com/nadzzz/voxcmd/internal/message"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		res  message.Result
		want int
	}{
		{"success", message.Result{Success: true}, http.StatusOK},
		{"malformed degrades to 200", message.Failed(apperr.MalformedResponse(nil), "hi"), http.StatusOK},
		{"too large", message.Failed(apperr.AudioTooLarge(10, 5), ""), http.StatusRequestEntityTooLarge},
		{"transcode", message.Failed(apperr.Transcode(nil), ""), http.StatusUnsupportedMediaType},
		{"inaudible", message.Failed(apperr.Inaudible(), ""), http.StatusUnprocessableEntity},
		{"timeout", message.Failed(apperr.Timeout("extracting"), ""), http.StatusGatewayTimeout},
		{"extraction", message.Failed(apperr.Extraction(nil), ""), http.StatusBadGateway},
		{"internal", message.Failed(apperr.Internal(nil), ""), http.StatusInternalServerError},
		{"canceled", message.Failed(apperr.Canceled("transcribing"), ""), apperr.StatusClientClosedRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.res); got != tt.want {
				t.Errorf("StatusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}
