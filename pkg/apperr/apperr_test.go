package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", fmt.Errorf("card 9: %w", ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("submit: %w", ErrConflict), http.StatusBadRequest},
		{"transport", &TransportError{Op: "POST", URL: "http://127.0.0.1:8765", Err: errors.New("connection refused")}, http.StatusInternalServerError},
		{"upstream", fmt.Errorf("find notes: %w", &UpstreamError{Action: "findNotes", Message: "boom"}), http.StatusInternalServerError},
		{"format", &FormatError{Key: "浮", Section: "Koohii stories"}, http.StatusInternalServerError},
		{"other", errors.New("???"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("snapshot: %w", &TransportError{Op: "POST", URL: "http://x", Err: cause})

	var te *TransportError
	assert.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}
