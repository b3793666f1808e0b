// Package deck captures ordered snapshots of a deck's notes and maps 1-based
// positions to note ids.
package deck

import (
	"context"
	"fmt"

	"github.com/japaniel/rtkstories/pkg/ankiconnect"
	"github.com/japaniel/rtkstories/pkg/apperr"
)

// NoteFinder runs an Anki search query.
type NoteFinder interface {
	FindNotes(ctx context.Context, query string) ([]ankiconnect.NoteID, error)
}

// Snapshot is the member list of a deck at one moment. It is immutable; a
// new one is taken for every request.
type Snapshot struct {
	deck  string
	notes []ankiconnect.NoteID
	index map[ankiconnect.NoteID]int
}

// NewSnapshot builds a snapshot from ids in display order. Repeated ids keep
// their first position.
func NewSnapshot(deckName string, ids []ankiconnect.NoteID) *Snapshot {
	s := &Snapshot{
		deck:  deckName,
		notes: make([]ankiconnect.NoteID, 0, len(ids)),
		index: make(map[ankiconnect.NoteID]int, len(ids)),
	}
	for _, id := range ids {
		if _, dup := s.index[id]; dup {
			continue
		}
		s.notes = append(s.notes, id)
		s.index[id] = len(s.notes)
	}
	return s
}

// Deck returns the name of the deck the snapshot was taken from.
func (s *Snapshot) Deck() string { return s.deck }

// Len returns the number of notes in the snapshot.
func (s *Snapshot) Len() int { return len(s.notes) }

// Notes returns a copy of the ids in position order.
func (s *Snapshot) Notes() []ankiconnect.NoteID {
	out := make([]ankiconnect.NoteID, len(s.notes))
	copy(out, s.notes)
	return out
}

// NoteAt returns the note at the 1-based position.
func (s *Snapshot) NoteAt(position int) (ankiconnect.NoteID, error) {
	if position < 1 || position > len(s.notes) {
		return 0, fmt.Errorf("position %d of %d: %w", position, len(s.notes), apperr.ErrNotFound)
	}
	return s.notes[position-1], nil
}

// PositionOf returns the 1-based position of id.
func (s *Snapshot) PositionOf(id ankiconnect.NoteID) (int, error) {
	pos, ok := s.index[id]
	if !ok {
		return 0, fmt.Errorf("note %d in deck %q: %w", id, s.deck, apperr.ErrNotFound)
	}
	return pos, nil
}

// Index takes snapshots through AnkiConnect searches.
type Index struct {
	finder NoteFinder
}

// NewIndex creates an Index backed by finder.
func NewIndex(finder NoteFinder) *Index {
	return &Index{finder: finder}
}

// Snapshot captures the current members of deckName.
func (x *Index) Snapshot(ctx context.Context, deckName string) (*Snapshot, error) {
	ids, err := x.finder.FindNotes(ctx, ankiconnect.DeckQuery(deckName))
	if err != nil {
		return nil, fmt.Errorf("snapshot deck %q: %w", deckName, err)
	}
	return NewSnapshot(deckName, ids), nil
}

// FirstUnstoried returns the position of the first new note with an empty
// Story field, falling back to 1 when there is none.
func (x *Index) FirstUnstoried(ctx context.Context, snap *Snapshot) (int, error) {
	query := ankiconnect.And(
		ankiconnect.DeckQuery(snap.Deck()),
		ankiconnect.FieldQuery("Story", ""),
		"is:new",
	)
	ids, err := x.finder.FindNotes(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("find unstoried notes: %w", err)
	}
	// Search order is not deck order; pick the earliest position.
	best := 0
	for _, id := range ids {
		if pos, err := snap.PositionOf(id); err == nil && (best == 0 || pos < best) {
			best = pos
		}
	}
	if best == 0 {
		return 1, nil
	}
	return best, nil
}

type snapshotKey struct{}

// WithSnapshot attaches snap to ctx for the remainder of one request.
func WithSnapshot(ctx context.Context, snap *Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, snap)
}

// FromContext returns the snapshot attached by WithSnapshot.
func FromContext(ctx context.Context) (*Snapshot, bool) {
	snap, ok := ctx.Value(snapshotKey{}).(*Snapshot)
	return snap, ok && snap != nil
}
