package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/japaniel/rtkstories/pkg/deck"
	"github.com/japaniel/rtkstories/pkg/logging"
)

const headerRequestID = "X-Request-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestLog tags each request with an id and logs it once served.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(headerRequestID, id)
		logger := s.logger.With(slog.String(logging.FieldRequestID, id))
		ctx := logging.WithLogger(r.Context(), logger)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.DebugContext(ctx, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}

// withSnapshot lists the deck for this request and stores the snapshot in
// the request context.
func (s *Server) withSnapshot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		snap, err := s.decks.Snapshot(ctx, s.deck)
		if err != nil {
			logging.FromContext(ctx, s.logger).ErrorContext(ctx, "deck snapshot failed", logging.Error(err))
			writeText(w, http.StatusInternalServerError, "Failed to communicate with AnkiConnect.\n\n"+err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(deck.WithSnapshot(ctx, snap)))
	})
}
