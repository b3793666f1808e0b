package ankiconnect

import (
	"context"
	"fmt"
	"strings"

	"github.com/japaniel/rtkstories/pkg/apperr"
)

// FindNotes returns the ids of the notes matching an Anki search query, in
// the order AnkiConnect reports them.
func (c *Client) FindNotes(ctx context.Context, query string) ([]NoteID, error) {
	var ids []NoteID
	if err := c.Invoke(ctx, "findNotes", map[string]any{"query": query}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// NotesInfo fetches the notes for ids. Ids AnkiConnect does not know come
// back as empty entries and are dropped.
func (c *Client) NotesInfo(ctx context.Context, ids []NoteID) ([]Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var raw []Note
	if err := c.Invoke(ctx, "notesInfo", map[string]any{"notes": ids}, &raw); err != nil {
		return nil, err
	}
	notes := raw[:0]
	for _, n := range raw {
		if n.ID == 0 {
			continue
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// NoteInfo fetches a single note.
func (c *Client) NoteInfo(ctx context.Context, id NoteID) (Note, error) {
	notes, err := c.NotesInfo(ctx, []NoteID{id})
	if err != nil {
		return Note{}, err
	}
	if len(notes) == 0 {
		return Note{}, fmt.Errorf("note %d: %w", id, apperr.ErrNotFound)
	}
	return notes[0], nil
}

// UpdateNoteFields overwrites the given fields of a note in one call.
func (c *Client) UpdateNoteFields(ctx context.Context, id NoteID, fields map[string]string) error {
	params := map[string]any{
		"note": map[string]any{
			"id":     id,
			"fields": fields,
		},
	}
	return c.Invoke(ctx, "updateNoteFields", params, nil)
}

// DeckQuery restricts a search to one deck.
func DeckQuery(deck string) string {
	return quoteTerm("deck:" + deck)
}

// FieldQuery matches notes whose field equals value exactly. An empty value
// matches notes where the field is empty.
func FieldQuery(field, value string) string {
	return quoteTerm(field + ":" + value)
}

// And joins search terms; Anki treats whitespace as conjunction.
func And(terms ...string) string {
	return strings.Join(terms, " ")
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quoteTerm(term string) string {
	return `"` + queryEscaper.Replace(term) + `"`
}
