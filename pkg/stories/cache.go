package stories

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/japaniel/rtkstories/pkg/logging"
)

// scrapeTimeout bounds a shared download once it no longer follows the
// context of the request that started it.
const scrapeTimeout = 2 * time.Minute

// PageSource downloads kanji pages.
type PageSource interface {
	Page(ctx context.Context, key string) ([]byte, error)
}

// Cache returns bundles from the store, scraping the reference site only for
// kanji it has never seen. Entries are never revalidated; Invalidate is the
// only way to refresh one.
type Cache struct {
	store  Store
	pages  PageSource
	logger *slog.Logger
	group  singleflight.Group
}

// NewCache creates a Cache.
func NewCache(store Store, pages PageSource, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		pages:  pages,
		logger: logging.NewComponentLogger(logger, "stories"),
	}
}

// Fetch returns the bundle for key. A bundle is stored only after the page
// parsed successfully. The cache entry is keyed by the NFC form of key while
// the page is requested with key as given.
func (c *Cache) Fetch(ctx context.Context, key string) (*Bundle, error) {
	norm, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	b, ok, err := c.store.Load(ctx, norm)
	if err != nil {
		return nil, err
	}
	if ok {
		return b, nil
	}

	// Concurrent misses for the same kanji share one download, detached from
	// the callers. Each caller stops waiting when its own ctx is done.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(norm, func() (any, error) {
		sctx, cancel := context.WithTimeout(detached, scrapeTimeout)
		defer cancel()
		return c.scrape(sctx, key, norm)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Bundle), nil
	}
}

func (c *Cache) scrape(ctx context.Context, key, norm string) (*Bundle, error) {
	log := logging.FromContext(ctx, c.logger).With(slog.String(logging.FieldKanji, norm))

	page, err := c.pages.Page(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch stories for %q: %w", key, err)
	}
	b, err := Parse(key, page)
	if err != nil {
		log.WarnContext(ctx, "reference page did not parse", logging.Error(err))
		return nil, err
	}
	if err := c.store.Save(ctx, norm, b); err != nil {
		return nil, fmt.Errorf("cache stories for %q: %w", norm, err)
	}
	log.InfoContext(ctx, "stories cached", slog.Int("koohii", len(b.Koohii)), slog.Bool("heisig", b.Heisig != nil))
	return b, nil
}

// Invalidate drops the cached bundle for key so the next Fetch scrapes again.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	key, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, key)
}
