package legacy

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/rtkstories/pkg/ankiconnect"
	"github.com/japaniel/rtkstories/pkg/apperr"
	"github.com/japaniel/rtkstories/pkg/deck"
)

type fakePages map[string][]byte

func (f fakePages) Legacy(_ context.Context, id string) ([]byte, error) {
	page, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("legacy page %s: %w", id, apperr.ErrNotFound)
	}
	return page, nil
}

type fakeFinder map[string][]ankiconnect.NoteID

func (f fakeFinder) FindNotes(_ context.Context, query string) ([]ankiconnect.NoteID, error) {
	return f[query], nil
}

func legacyFixture(t *testing.T) []byte {
	t.Helper()
	page, err := os.ReadFile("testdata/legacy.html")
	require.NoError(t, err)
	return page
}

func TestExtractKanji(t *testing.T) {
	kanji, ok := ExtractKanji(legacyFixture(t))
	require.True(t, ok)
	assert.Equal(t, "浮", kanji)

	kanji, ok = ExtractKanji([]byte(`<a href="../浮/index.html">x</a>`))
	require.True(t, ok)
	assert.Equal(t, "浮", kanji)

	_, ok = ExtractKanji([]byte(`<a href="../index.html">home</a><a href="http://x/浮/index.html">abs</a>`))
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	snap := deck.NewSnapshot("RTK", []ankiconnect.NoteID{100, 200, 300})
	r := NewResolver(
		fakePages{"1234": legacyFixture(t)},
		fakeFinder{`"deck:RTK" "Kanji:浮"`: {200}},
	)

	pos, err := r.Resolve(context.Background(), snap, "1234")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestResolveNotFound(t *testing.T) {
	snap := deck.NewSnapshot("RTK", []ankiconnect.NoteID{100})
	pages := fakePages{
		"1":    []byte(`<html><body>nothing here</body></html>`),
		"1234": legacyFixture(t),
	}

	tests := []struct {
		name   string
		id     string
		finder fakeFinder
	}{
		{name: "no sibling link", id: "1", finder: fakeFinder{}},
		{name: "unknown page", id: "999", finder: fakeFinder{}},
		{name: "not numeric", id: "abc", finder: fakeFinder{}},
		{name: "no note in deck", id: "1234", finder: fakeFinder{}},
		{name: "note outside snapshot", id: "1234", finder: fakeFinder{`"deck:RTK" "Kanji:浮"`: {555}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(pages, tt.finder).Resolve(context.Background(), snap, tt.id)
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		})
	}
}
