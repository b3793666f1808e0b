// Package legacy maps RTK v4 frame numbers, as used by old links to the
// reference site, onto positions in the current deck.
package legacy

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"

	"github.com/japaniel/rtkstories/pkg/ankiconnect"
	"github.com/japaniel/rtkstories/pkg/apperr"
	"github.com/japaniel/rtkstories/pkg/deck"
)

// PageSource downloads legacy pages.
type PageSource interface {
	Legacy(ctx context.Context, id string) ([]byte, error)
}

// reSibling matches the relative link from a v4 page to the current kanji page.
var reSibling = regexp.MustCompile(`^\.\./([^/]+)/index\.html$`)

// reID is the shape of a legacy id.
var reID = regexp.MustCompile(`^[0-9]+$`)

// Resolver translates legacy ids.
type Resolver struct {
	pages  PageSource
	finder deck.NoteFinder
}

// NewResolver creates a Resolver.
func NewResolver(pages PageSource, finder deck.NoteFinder) *Resolver {
	return &Resolver{pages: pages, finder: finder}
}

// ValidID reports whether id looks like a legacy frame number.
func ValidID(id string) bool {
	return reID.MatchString(id)
}

// KanjiFor returns the kanji the legacy page for id links to.
func (r *Resolver) KanjiFor(ctx context.Context, id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("legacy id %q: %w", id, apperr.ErrNotFound)
	}
	page, err := r.pages.Legacy(ctx, id)
	if err != nil {
		return "", err
	}
	kanji, ok := ExtractKanji(page)
	if !ok {
		return "", fmt.Errorf("legacy id %s links to no kanji: %w", id, apperr.ErrNotFound)
	}
	return kanji, nil
}

// Resolve returns the position, within snap, of the note for the kanji
// that legacy id points to.
func (r *Resolver) Resolve(ctx context.Context, snap *deck.Snapshot, id string) (int, error) {
	kanji, err := r.KanjiFor(ctx, id)
	if err != nil {
		return 0, err
	}
	query := ankiconnect.And(ankiconnect.DeckQuery(snap.Deck()), ankiconnect.FieldQuery("Kanji", kanji))
	ids, err := r.finder.FindNotes(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("find note for %q: %w", kanji, err)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("no note for %q in deck %q: %w", kanji, snap.Deck(), apperr.ErrNotFound)
	}
	return snap.PositionOf(ids[0])
}

// ExtractKanji finds the first link of the form ../<kanji>/index.html.
func ExtractKanji(page []byte) (string, bool) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", false
	}
	for _, a := range dom.QuerySelectorAll(doc, "a[href]") {
		m := reSibling.FindStringSubmatch(dom.GetAttribute(a, "href"))
		if m == nil {
			continue
		}
		kanji, err := url.PathUnescape(m[1])
		if err != nil || kanji == "" {
			continue
		}
		return kanji, true
	}
	return "", false
}
