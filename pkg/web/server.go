// Package web serves the card review pages.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/japaniel/rtkstories/pkg/deck"
	"github.com/japaniel/rtkstories/pkg/logging"
	"github.com/japaniel/rtkstories/pkg/review"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// Decks captures deck snapshots and picks the start card.
type Decks interface {
	Snapshot(ctx context.Context, deckName string) (*deck.Snapshot, error)
	FirstUnstoried(ctx context.Context, snap *deck.Snapshot) (int, error)
}

// Cards views and submits cards.
type Cards interface {
	View(ctx context.Context, snap *deck.Snapshot, position int) (*review.CardView, error)
	Submit(ctx context.Context, snap *deck.Snapshot, position int, sub review.Submission) (*review.CardView, error)
}

// LegacyLinks resolves RTK v4 frame numbers.
type LegacyLinks interface {
	Resolve(ctx context.Context, snap *deck.Snapshot, id string) (int, error)
}

// Options configures a Server.
type Options struct {
	Deck string
	// StaticDir is served at the root when set.
	StaticDir string
	// ReferenceURL builds the link from the keyword to the reference page.
	ReferenceURL func(kanji string) string
	Logger       *slog.Logger
}

// Server is the review web UI.
type Server struct {
	deck         string
	decks        Decks
	cards        Cards
	links        LegacyLinks
	referenceURL func(string) string
	card         *template.Template
	logger       *slog.Logger
	handler      http.Handler
}

// New builds a Server.
func New(opts Options, decks Decks, cards Cards, links LegacyLinks) (*Server, error) {
	if strings.TrimSpace(opts.Deck) == "" {
		return nil, errors.New("web: deck name is required")
	}
	card, err := template.ParseFS(templateFS, "templates/card.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{
		deck:         opts.Deck,
		decks:        decks,
		cards:        cards,
		links:        links,
		referenceURL: opts.ReferenceURL,
		card:         card,
		logger:       logging.NewComponentLogger(opts.Logger, "web"),
	}
	if s.referenceURL == nil {
		s.referenceURL = func(string) string { return "" }
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", s.withSnapshot(http.HandlerFunc(s.handleRoot)))
	mux.Handle("GET /v4/{page}", s.withSnapshot(http.HandlerFunc(s.handleLegacy)))
	mux.Handle("GET /card/{position}", s.withSnapshot(http.HandlerFunc(s.handleCard)))
	mux.Handle("POST /card/{position}", s.withSnapshot(http.HandlerFunc(s.handleCard)))
	if opts.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(opts.StaticDir)))
	}
	s.handler = s.withRequestLog(mux)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("listening", slog.String("address", "http://"+listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
