// Package review assembles the card page and turns a story selection into
// the value written back to the note.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/japaniel/rtkstories/pkg/ankiconnect"
	"github.com/japaniel/rtkstories/pkg/apperr"
	"github.com/japaniel/rtkstories/pkg/deck"
	"github.com/japaniel/rtkstories/pkg/logging"
	"github.com/japaniel/rtkstories/pkg/stories"
)

// Note field names.
const (
	FieldKanji            = "Kanji"
	FieldKeyword          = "Keyword"
	FieldAlternativeKanji = "Alternative Kanji"
	FieldStory            = "Story"
)

// Story selections other than a Koohii index.
const (
	SelectHeisig = "heisig"
	SelectCustom = "custom"
)

// NoteService is the part of AnkiConnect the engine needs.
type NoteService interface {
	NoteInfo(ctx context.Context, id ankiconnect.NoteID) (ankiconnect.Note, error)
	UpdateNoteFields(ctx context.Context, id ankiconnect.NoteID, fields map[string]string) error
}

// BundleSource returns the scraped stories for a kanji.
type BundleSource interface {
	Fetch(ctx context.Context, key string) (*stories.Bundle, error)
}

// ReadingHinter suggests a kana reading for a kanji.
type ReadingHinter interface {
	Hint(text string) string
}

// Neighbor is the link to an adjacent card. At either end of the deck it is
// disabled rather than missing.
type Neighbor struct {
	Position int
	Kanji    string
	Enabled  bool
}

// CardView is everything the card page shows.
type CardView struct {
	Position         int
	Total            int
	NoteID           ankiconnect.NoteID
	Kanji            string
	Keyword          string
	AlternativeKanji string
	Story            string
	Reading          string
	Prev             Neighbor
	Next             Neighbor
	Bundle           *stories.Bundle
}

// Submission is a posted card form.
type Submission struct {
	// Kanji echoes the card's kanji at the time the form was rendered.
	Kanji string
	// Story is "heisig", "custom" or the decimal index of a Koohii story.
	Story string
	// Content is the free-form story used with "custom".
	Content string
}

// Engine implements viewing and submitting cards.
type Engine struct {
	notes    NoteService
	stories  BundleSource
	readings ReadingHinter
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithReadings enables reading hints.
func WithReadings(h ReadingHinter) Option {
	return func(e *Engine) { e.readings = h }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.NewComponentLogger(logger, "review") }
}

// NewEngine creates an Engine.
func NewEngine(notes NoteService, bundles BundleSource, opts ...Option) *Engine {
	e := &Engine{
		notes:   notes,
		stories: bundles,
		logger:  logging.NewComponentLogger(nil, "review"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// View builds the page for the card at position in snap.
func (e *Engine) View(ctx context.Context, snap *deck.Snapshot, position int) (*CardView, error) {
	id, err := snap.NoteAt(position)
	if err != nil {
		return nil, err
	}

	view := &CardView{Position: position, Total: snap.Len(), NoteID: id}
	var note ankiconnect.Note

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		note, err = e.notes.NoteInfo(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		view.Prev, err = e.neighbor(gctx, snap, position-1)
		return err
	})
	g.Go(func() error {
		var err error
		view.Next, err = e.neighbor(gctx, snap, position+1)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view.Kanji = note.Value(FieldKanji)
	view.Keyword = note.Value(FieldKeyword)
	view.AlternativeKanji = note.Value(FieldAlternativeKanji)
	view.Story = note.Value(FieldStory)

	bundle, err := e.stories.Fetch(ctx, view.Kanji)
	if err != nil {
		return nil, err
	}
	view.Bundle = bundle
	if e.readings != nil {
		view.Reading = e.readings.Hint(view.Kanji)
	}
	return view, nil
}

func (e *Engine) neighbor(ctx context.Context, snap *deck.Snapshot, position int) (Neighbor, error) {
	id, err := snap.NoteAt(position)
	if err != nil {
		return Neighbor{Position: position}, nil
	}
	note, err := e.notes.NoteInfo(ctx, id)
	if err != nil {
		return Neighbor{}, fmt.Errorf("neighbor at %d: %w", position, err)
	}
	return Neighbor{Position: position, Kanji: note.Value(FieldKanji), Enabled: true}, nil
}

// Submit writes the selected story to the card at position and returns the
// page as it looks afterwards. A form rendered for a different kanji than the
// note now holds is rejected with apperr.ErrConflict and nothing is written.
func (e *Engine) Submit(ctx context.Context, snap *deck.Snapshot, position int, sub Submission) (*CardView, error) {
	id, err := snap.NoteAt(position)
	if err != nil {
		return nil, err
	}
	note, err := e.notes.NoteInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	live := note.Value(FieldKanji)
	if live != sub.Kanji {
		return nil, fmt.Errorf("card %d holds %q, form was for %q: %w", position, live, sub.Kanji, apperr.ErrConflict)
	}

	bundle, err := e.stories.Fetch(ctx, live)
	if err != nil {
		return nil, err
	}
	outcome := Resolve(bundle, sub)
	if err := e.notes.UpdateNoteFields(ctx, note.ID, map[string]string{FieldStory: outcome}); err != nil {
		return nil, fmt.Errorf("update story of %q: %w", live, err)
	}
	logging.FromContext(ctx, e.logger).InfoContext(ctx, "story updated",
		slog.String(logging.FieldKanji, live),
		slog.String("selection", sub.Story),
		slog.Int("length", len(outcome)))

	// Re-read so the page shows what Anki stored.
	return e.View(ctx, snap, position)
}

// Resolve picks the story a submission selects. Unknown selections, missing
// Heisig stories and out of range indexes all resolve to "".
func Resolve(b *stories.Bundle, sub Submission) string {
	switch sub.Story {
	case SelectHeisig:
		if b == nil || b.Heisig == nil {
			return ""
		}
		return *b.Heisig
	case SelectCustom:
		return sub.Content
	}
	i, err := strconv.Atoi(strings.TrimSpace(sub.Story))
	if err != nil {
		return ""
	}
	story, ok := b.KoohiiAt(i)
	if !ok {
		return ""
	}
	return story.Story
}
