// Package prefetch fills the story cache for every card of a deck ahead of a
// review session.
package prefetch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/japaniel/rtkstories/pkg/ankiconnect"
	"github.com/japaniel/rtkstories/pkg/deck"
	"github.com/japaniel/rtkstories/pkg/logging"
	"github.com/japaniel/rtkstories/pkg/stories"
)

// NoteLister loads notes in bulk.
type NoteLister interface {
	NotesInfo(ctx context.Context, ids []ankiconnect.NoteID) ([]ankiconnect.Note, error)
}

// BundleFetcher is satisfied by *stories.Cache.
type BundleFetcher interface {
	Fetch(ctx context.Context, key string) (*stories.Bundle, error)
}

// Progress is called after each kanji completes.
type Progress func(done, total int, kanji string, err error)

// Report summarizes a Warm run.
type Report struct {
	Total   int
	Fetched int
	Failed  map[string]error
}

// FailedKeys returns the kanji that failed, sorted.
func (r Report) FailedKeys() []string {
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Warmer drives a WorkerPool over the kanji of a deck.
type Warmer struct {
	notes    NoteLister
	bundles  BundleFetcher
	workers  int
	batch    int
	progress Progress
	logger   *slog.Logger
}

// Option configures a Warmer.
type Option func(*Warmer)

// WithWorkers sets the number of concurrent downloads.
func WithWorkers(n int) Option {
	return func(w *Warmer) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithProgress registers a progress callback. It is called from worker
// goroutines, one call at a time.
func WithProgress(p Progress) Option {
	return func(w *Warmer) { w.progress = p }
}

// WithLogger sets the warmer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Warmer) { w.logger = logging.NewComponentLogger(logger, "prefetch") }
}

// NewWarmer creates a Warmer.
func NewWarmer(notes NoteLister, bundles BundleFetcher, opts ...Option) *Warmer {
	w := &Warmer{
		notes:   notes,
		bundles: bundles,
		workers: 4,
		batch:   500,
		logger:  logging.NewComponentLogger(nil, "prefetch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Warm fetches the bundle of every distinct kanji in snap. Per-kanji failures
// are collected in the report; only a failure to list the notes, or ctx being
// canceled, is returned as an error.
func (w *Warmer) Warm(ctx context.Context, snap *deck.Snapshot) (Report, error) {
	kanji, err := w.kanji(ctx, snap)
	if err != nil {
		return Report{}, err
	}
	report := Report{Total: len(kanji), Failed: map[string]error{}}
	log := logging.FromContext(ctx, w.logger)
	log.InfoContext(ctx, "prefetch starting", slog.String("deck", snap.Deck()), slog.Int("kanji", len(kanji)), slog.Int("workers", w.workers))

	var mu sync.Mutex
	done := 0
	pool := NewWorkerPool(w.workers, w.workers*2)
	pool.Start(ctx)

	var submitErr error
	for _, k := range kanji {
		k := k
		err := pool.SubmitCtx(ctx, func(ctx context.Context) {
			_, err := w.bundles.Fetch(ctx, k)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				report.Failed[k] = err
				log.WarnContext(ctx, "prefetch failed", slog.String(logging.FieldKanji, k), logging.Error(err))
			} else {
				report.Fetched++
			}
			if w.progress != nil {
				w.progress(done, report.Total, k, err)
			}
		})
		if err != nil {
			submitErr = err
			break
		}
	}
	pool.Close()

	if submitErr == nil {
		submitErr = ctx.Err()
	}
	if submitErr != nil {
		return report, fmt.Errorf("prefetch %s: %w", snap.Deck(), submitErr)
	}
	log.InfoContext(ctx, "prefetch finished", slog.Int("fetched", report.Fetched), slog.Int("failed", len(report.Failed)))
	return report, nil
}

// kanji lists the distinct non-empty Kanji fields of snap in deck order.
func (w *Warmer) kanji(ctx context.Context, snap *deck.Snapshot) ([]string, error) {
	ids := snap.Notes()
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for start := 0; start < len(ids); start += w.batch {
		end := min(start+w.batch, len(ids))
		notes, err := w.notes.NotesInfo(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("load notes of %s: %w", snap.Deck(), err)
		}
		for _, n := range notes {
			k := n.Value("Kanji")
			if k == "" {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out, nil
}
