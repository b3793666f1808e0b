package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/japaniel/rtkstories/pkg/logging"
	"github.com/japaniel/rtkstories/pkg/stories"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CachedBundle is one row of story_bundles.
type CachedBundle struct {
	Kanji       string
	KoohiiCount int
	FetchedAt   time.Time
}

// BundleStore implements stories.Store on top of SQLite.
type BundleStore struct {
	db     DBExecutor
	logger *slog.Logger
}

var _ stories.Store = (*BundleStore)(nil)

// NewBundleStore wraps a migrated connection.
func NewBundleStore(db DBExecutor, logger *slog.Logger) *BundleStore {
	return &BundleStore{db: db, logger: logging.NewComponentLogger(logger, "sqlitestore")}
}

// Load returns the bundle stored for key. Rows whose payload no longer
// decodes are treated as missing.
func (s *BundleStore) Load(ctx context.Context, key string) (*stories.Bundle, bool, error) {
	key, err := stories.NormalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	var payload string
	err = s.db.QueryRowContext(ctx, `SELECT payload FROM story_bundles WHERE kanji = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load bundle %q: %w", key, err)
	}
	var b *stories.Bundle
	if err := json.Unmarshal([]byte(payload), &b); err != nil || b == nil {
		s.logger.WarnContext(ctx, "ignoring unreadable bundle row",
			slog.String(logging.FieldKanji, key),
			logging.Error(err))
		return nil, false, nil
	}
	return b, true, nil
}

// Save upserts the bundle for key; the last writer wins.
func (s *BundleStore) Save(ctx context.Context, key string, b *stories.Bundle) error {
	key, err := stories.NormalizeKey(key)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bundle %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO story_bundles (kanji, payload, koohii_count, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kanji) DO UPDATE SET
		  payload = excluded.payload,
		  koohii_count = excluded.koohii_count,
		  fetched_at = excluded.fetched_at`,
		key, string(payload), len(b.Koohii), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save bundle %q: %w", key, err)
	}
	return nil
}

// Delete removes the row for key, if any.
func (s *BundleStore) Delete(ctx context.Context, key string) error {
	key, err := stories.NormalizeKey(key)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM story_bundles WHERE kanji = ?`, key); err != nil {
		return fmt.Errorf("delete bundle %q: %w", key, err)
	}
	return nil
}

// List returns every cached kanji, most recently fetched first.
func (s *BundleStore) List(ctx context.Context) ([]CachedBundle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kanji, koohii_count, fetched_at FROM story_bundles ORDER BY fetched_at DESC, kanji`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CachedBundle
	for rows.Next() {
		var c CachedBundle
		if err := rows.Scan(&c.Kanji, &c.KoohiiCount, &c.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
