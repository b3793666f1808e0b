package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/rtkstories/pkg/ankiconnect"
	"github.com/japaniel/rtkstories/pkg/apperr"
	"github.com/japaniel/rtkstories/pkg/deck"
	"github.com/japaniel/rtkstories/pkg/review"
	"github.com/japaniel/rtkstories/pkg/stories"
)

type fakeDecks struct {
	snap  *deck.Snapshot
	err   error
	first int
	calls int
}

func (f *fakeDecks) Snapshot(_ context.Context, deckName string) (*deck.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakeDecks) FirstUnstoried(context.Context, *deck.Snapshot) (int, error) {
	return f.first, nil
}

type fakeCards struct {
	views     map[int]*review.CardView
	submitted []review.Submission
	submitErr error
}

func (f *fakeCards) View(ctx context.Context, snap *deck.Snapshot, position int) (*review.CardView, error) {
	if got, ok := deck.FromContext(ctx); !ok || got != snap {
		return nil, errors.New("snapshot not carried in context")
	}
	v, ok := f.views[position]
	if !ok {
		return nil, fmt.Errorf("position %d: %w", position, apperr.ErrNotFound)
	}
	return v, nil
}

func (f *fakeCards) Submit(ctx context.Context, snap *deck.Snapshot, position int, sub review.Submission) (*review.CardView, error) {
	f.submitted = append(f.submitted, sub)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.View(ctx, snap, position)
}

type fakeLinks map[string]int

func (f fakeLinks) Resolve(_ context.Context, _ *deck.Snapshot, id string) (int, error) {
	pos, ok := f[id]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	return pos, nil
}

func strPtr(s string) *string { return &s }

func newTestServer(t *testing.T, decks *fakeDecks, cards *fakeCards, staticDir string) http.Handler {
	t.Helper()
	srv, err := New(Options{
		Deck:         "RTK",
		StaticDir:    staticDir,
		ReferenceURL: func(k string) string { return "http://ref.example/" + k + "/" },
	}, decks, cards, fakeLinks{"1234": 2})
	require.NoError(t, err)
	return srv.Handler()
}

func defaultFakes() (*fakeDecks, *fakeCards) {
	decks := &fakeDecks{snap: deck.NewSnapshot("RTK", []ankiconnect.NoteID{10, 20}), first: 2}
	cards := &fakeCards{views: map[int]*review.CardView{
		2: {
			Position: 2, Total: 2, Kanji: "浮", Keyword: "float", Story: "<mine>",
			Prev: review.Neighbor{Position: 1, Kanji: "泳", Enabled: true},
			Next: review.Neighbor{Position: 3},
			Bundle: &stories.Bundle{
				Koohii: []stories.KoohiiStory{{Author: "a&b", Score: 7, Story: "<b>bold</b> story"}},
				Heisig: strPtr("<i>heisig</i>"),
			},
		},
	}}
	return decks, cards
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRootRedirectsToFirstUnstoried(t *testing.T) {
	decks, cards := defaultFakes()
	rec := do(t, newTestServer(t, decks, cards, ""), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/card/2", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
}

func TestLegacyLinks(t *testing.T) {
	decks, cards := defaultFakes()
	h := newTestServer(t, decks, cards, "")

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/v4/1234.html", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/card/2", rec.Header().Get("Location"))

	for _, path := range []string{"/v4/999.html", "/v4/1234"} {
		rec = do(t, h, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, msgLegacyNotFound, rec.Body.String(), path)
	}
}

func TestCardView(t *testing.T) {
	decks, cards := defaultFakes()
	rec := do(t, newTestServer(t, decks, cards, ""), httptest.NewRequest(http.MethodGet, "/card/2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, "<title>浮 - float</title>")
	assert.Contains(t, body, `href="http://ref.example/%e6%b5%ae/"`)
	assert.Contains(t, body, `<a id="prev" href="/card/1">&lt;泳</a>`)
	assert.Contains(t, body, `<span id="next" class="disabled">&gt;</span>`)
	assert.Contains(t, body, `value="heisig"/><i>heisig</i>`)
	assert.Contains(t, body, `<b>a&amp;b (7):</b></u> <b>bold</b> story`)
	assert.Contains(t, body, `<textarea rows="5" name="content">&lt;mine&gt;</textarea>`)
	assert.NotContains(t, body, "Heisig Notes")
}

func TestCardNotFound(t *testing.T) {
	decks, cards := defaultFakes()
	rec := do(t, newTestServer(t, decks, cards, ""), httptest.NewRequest(http.MethodGet, "/card/7", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgCardNotFound, rec.Body.String())
}

func TestNonNumericPositionRedirectsHome(t *testing.T) {
	decks, cards := defaultFakes()
	h := newTestServer(t, decks, cards, "")
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := do(t, h, httptest.NewRequest(method, "/card/abc", nil))
		assert.Equal(t, http.StatusFound, rec.Code, method)
		assert.Equal(t, "/", rec.Header().Get("Location"), method)
	}
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestCardSubmit(t *testing.T) {
	decks, cards := defaultFakes()
	h := newTestServer(t, decks, cards, "")

	rec := do(t, h, postForm("/card/2", url.Values{"kanji": {"浮"}, "story": {"0"}, "content": {"ignored"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []review.Submission{{Kanji: "浮", Story: "0", Content: "ignored"}}, cards.submitted)
}

func TestCardSubmitConflict(t *testing.T) {
	decks, cards := defaultFakes()
	cards.submitErr = fmt.Errorf("card 2: %w", apperr.ErrConflict)

	rec := do(t, newTestServer(t, decks, cards, ""), postForm("/card/2", url.Values{"kanji": {"泳"}, "story": {"custom"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgKanjiMismatch, rec.Body.String())
}

func TestUpstreamFailureIs500WithDiagnostic(t *testing.T) {
	decks, cards := defaultFakes()
	cards.submitErr = &apperr.UpstreamError{Action: "updateNoteFields", Message: "collection is not available"}

	rec := do(t, newTestServer(t, decks, cards, ""), postForm("/card/2", url.Values{"kanji": {"浮"}, "story": {"custom"}}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "collection is not available")
}

func TestSnapshotFailure(t *testing.T) {
	decks, cards := defaultFakes()
	decks.err = &apperr.TransportError{Op: "findNotes", URL: "http://127.0.0.1:8765", Err: errors.New("connection refused")}

	rec := do(t, newTestServer(t, decks, cards, ""), httptest.NewRequest(http.MethodGet, "/card/2", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Failed to communicate with AnkiConnect."))
}

func TestSnapshotPerRequest(t *testing.T) {
	decks, cards := defaultFakes()
	h := newTestServer(t, decks, cards, "")
	do(t, h, httptest.NewRequest(http.MethodGet, "/card/2", nil))
	do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 2, decks.calls)
}

func TestStaticFilesSkipAnki(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("body{}"), 0o644))
	decks, cards := defaultFakes()
	decks.err = errors.New("anki down")

	rec := do(t, newTestServer(t, decks, cards, dir), httptest.NewRequest(http.MethodGet, "/style.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())
	assert.Zero(t, decks.calls)
}

func TestNewRequiresDeck(t *testing.T) {
	_, err := New(Options{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestCardViewHeisigNotes(t *testing.T) {
	decks, cards := defaultFakes()
	cards.views[2].Bundle.Primitive = strPtr("as a primitive: <em>buoy</em>")

	rec := do(t, newTestServer(t, decks, cards, ""), httptest.NewRequest(http.MethodGet, "/card/2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h2>Heisig Notes</h2>")
	assert.Contains(t, body, "<p>as a primitive: <em>buoy</em></p>")
}

func TestCardViewWithoutBundle(t *testing.T) {
	decks, cards := defaultFakes()
	cards.views[2].Bundle = nil

	rec := do(t, newTestServer(t, decks, cards, ""), httptest.NewRequest(http.MethodGet, "/card/2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Heisig Notes")
}
