package web

import (
	"bytes"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/japaniel/rtkstories/pkg/apperr"
	"github.com/japaniel/rtkstories/pkg/deck"
	"github.com/japaniel/rtkstories/pkg/logging"
	"github.com/japaniel/rtkstories/pkg/review"
)

const (
	msgCardNotFound   = "Card not found"
	msgLegacyNotFound = "RTKv6 Card Not Found"
	msgKanjiMismatch  = "Kanji mismatch. Go back, refresh and try again."
)

func cardPath(position int) string {
	return "/card/" + strconv.Itoa(position)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	snap := mustSnapshot(r)
	pos, err := s.decks.FirstUnstoried(r.Context(), snap)
	if err != nil {
		s.writeError(w, r, err, msgCardNotFound)
		return
	}
	http.Redirect(w, r, cardPath(pos), http.StatusFound)
}

func (s *Server) handleLegacy(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(r.PathValue("page"), ".html")
	if !ok {
		writeText(w, http.StatusNotFound, msgLegacyNotFound)
		return
	}
	pos, err := s.links.Resolve(r.Context(), mustSnapshot(r), id)
	if err != nil {
		s.writeError(w, r, err, msgLegacyNotFound)
		return
	}
	http.Redirect(w, r, cardPath(pos), http.StatusFound)
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	pos, err := strconv.Atoi(r.PathValue("position"))
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	ctx := r.Context()
	snap := mustSnapshot(r)

	var view *review.CardView
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			writeText(w, http.StatusBadRequest, err.Error())
			return
		}
		view, err = s.cards.Submit(ctx, snap, pos, review.Submission{
			Kanji:   r.PostFormValue("kanji"),
			Story:   r.PostFormValue("story"),
			Content: r.PostFormValue("content"),
		})
	} else {
		view, err = s.cards.View(ctx, snap, pos)
	}
	if err != nil {
		s.writeError(w, r, err, msgCardNotFound)
		return
	}

	var buf bytes.Buffer
	if err := s.card.Execute(&buf, s.newCardPage(view)); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// writeError maps err to a status. notFound is the body used for
// apperr.ErrNotFound.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	status := apperr.Status(err)
	log := logging.FromContext(r.Context(), s.logger)
	var body string
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		body = notFound
		log.InfoContext(r.Context(), "not found", logging.Error(err))
	case errors.Is(err, apperr.ErrConflict):
		body = msgKanjiMismatch
		log.WarnContext(r.Context(), "stale form rejected", logging.Error(err))
	default:
		body = err.Error()
		log.ErrorContext(r.Context(), "request failed", slog.Int("status", status), logging.Error(err))
	}
	writeText(w, status, body)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// mustSnapshot returns the snapshot withSnapshot stored. Handlers are only
// registered behind that middleware.
func mustSnapshot(r *http.Request) *deck.Snapshot {
	snap, ok := deck.FromContext(r.Context())
	if !ok {
		panic("web: handler reached without a deck snapshot")
	}
	return snap
}

type koohiiItem struct {
	Index  int
	Author string
	Score  int
	Story  template.HTML
}

// cardPage adds the rendering-only fields to a CardView. Story markup from
// the reference site is trusted as is.
type cardPage struct {
	*review.CardView
	ReferenceURL string
	Koohii       []koohiiItem
	Heisig       template.HTML
	Comment      template.HTML
	Primitive    template.HTML
}

func (s *Server) newCardPage(v *review.CardView) cardPage {
	p := cardPage{CardView: v, ReferenceURL: s.referenceURL(v.Kanji)}
	b := v.Bundle
	if b == nil {
		return p
	}
	for i, k := range b.Koohii {
		p.Koohii = append(p.Koohii, koohiiItem{Index: i, Author: k.Author, Score: k.Score, Story: template.HTML(k.Story)})
	}
	p.Heisig = trusted(b.Heisig)
	p.Comment = trusted(b.Comment)
	p.Primitive = trusted(b.Primitive)
	return p
}

func trusted(s *string) template.HTML {
	if s == nil {
		return ""
	}
	return template.HTML(*s)
}
