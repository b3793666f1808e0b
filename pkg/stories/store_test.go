package stories

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	got, err := NormalizeKey(" \u30ab\u3099 ")
	require.NoError(t, err)
	assert.Equal(t, "\u30ac", got)

	for _, bad := range []string{"", "  ", "a/b", `a\b`, "..", "."} {
		_, err := NormalizeKey(bad)
		assert.Error(t, err, "key %q", bad)
	}
}

func TestDirStoreSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	store := NewDirStore(dir, nil)

	_, ok, err := store.Load(ctx, "浮")
	require.NoError(t, err)
	assert.False(t, ok)

	heisig := "story"
	in := &Bundle{Koohii: []KoohiiStory{{Author: "a", Score: 2, Story: "b"}}, Heisig: &heisig}
	require.NoError(t, store.Save(ctx, "浮", in))

	out, ok, err := store.Load(ctx, "浮")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)

	require.NoError(t, store.Delete(ctx, "浮"))
	require.NoError(t, store.Delete(ctx, "浮"))
	_, ok, err = store.Load(ctx, "浮")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirStoreNullEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.json"), []byte("null"), 0o644))
	_, ok, err := NewDirStore(dir, nil).Load(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirStoreConcurrentWritersLastWins(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewDirStore(dir, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := &Bundle{Koohii: []KoohiiStory{{Author: "w", Score: i, Story: "s"}}}
			if err := store.Save(ctx, "k", b); err != nil {
				t.Errorf("save: %v", err)
			}
		}(i)
	}
	wg.Wait()

	out, ok, err := store.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, out.Koohii, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp files must not be left behind")
	}
}

func TestDirStoreRejectsBadKeys(t *testing.T) {
	store := NewDirStore(t.TempDir(), nil)
	assert.Error(t, store.Save(context.Background(), "../escape", &Bundle{}))
}
