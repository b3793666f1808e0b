package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const floatPage = `<html><body>
<h2>Heisig story:</h2>
<p>A <i>buoy</i> on the water.</p>
<h2>Koohii stories:</h2>
<p>1) [<a href="http://kanji.koohii.com/profile/x">x</a>] 1-2-2009(5): the first story</p>
<hr>
</body></html>`

type cliEnv struct {
	configPath string
	cacheDir   string
	pageHits   *int64
}

func setupCLIEnv(t *testing.T, backend string) *cliEnv {
	t.Helper()
	var hits int64
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		switch r.URL.Path {
		case "/浮/index.html", "/%E6%B5%AE/index.html":
			fmt.Fprint(w, floatPage)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(site.Close)

	anki := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action string `json:"action"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Action {
		case "findNotes":
			fmt.Fprint(w, `{"result":[1,2],"error":null}`)
		case "notesInfo":
			fmt.Fprint(w, `{"result":[
				{"noteId":1,"fields":{"Kanji":{"value":"浮","order":0}}},
				{"noteId":2,"fields":{"Kanji":{"value":"泳","order":0}}}
			],"error":null}`)
		default:
			fmt.Fprint(w, `{"result":null,"error":"unsupported action"}`)
		}
	}))
	t.Cleanup(anki.Close)

	base := t.TempDir()
	env := &cliEnv{
		configPath: filepath.Join(base, "config.toml"),
		cacheDir:   filepath.Join(base, "cache"),
		pageHits:   &hits,
	}
	cfg := fmt.Sprintf(`
[anki]
url = %q
deck = "RTK"

[reference]
base_url = %q

[cache]
backend = %q
dir = %q
sqlite_path = %q

[logging]
level = "error"
format = "json"
`, anki.URL, site.URL, backend, env.cacheDir, filepath.Join(base, "cache.db"))
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o644))
	return env
}

func runCLI(t *testing.T, env *cliEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestShowScrapesOnceThenServesFromCache(t *testing.T) {
	for _, backend := range []string{"dir", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			env := setupCLIEnv(t, backend)

			out, err := runCLI(t, env, "show", "浮")
			require.NoError(t, err)
			assert.Contains(t, out, "the first story")
			assert.Contains(t, out, "Heisig")
			assert.EqualValues(t, 1, atomic.LoadInt64(env.pageHits))

			_, err = runCLI(t, env, "show", "浮")
			require.NoError(t, err)
			assert.EqualValues(t, 1, atomic.LoadInt64(env.pageHits))

			out, err = runCLI(t, env, "evict", "浮")
			require.NoError(t, err)
			assert.Contains(t, out, "Evicted 浮")

			_, err = runCLI(t, env, "show", "浮")
			require.NoError(t, err)
			assert.EqualValues(t, 2, atomic.LoadInt64(env.pageHits))
		})
	}
}

func TestShowDirBackendWritesJSON(t *testing.T) {
	env := setupCLIEnv(t, "dir")
	_, err := runCLI(t, env, "show", "浮")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(env.cacheDir, "浮.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"koohii"`)
}

func TestPrefetchReportsFailures(t *testing.T) {
	env := setupCLIEnv(t, "dir")
	out, err := runCLI(t, env, "prefetch", "--workers", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 kanji failed")
	assert.Contains(t, out, "Cached 1 of 2 kanji.")
	assert.Contains(t, out, "泳")
}

func TestServeRequiresDeck(t *testing.T) {
	env := setupCLIEnv(t, "dir")
	require.NoError(t, os.WriteFile(env.configPath, []byte("[logging]\nlevel = \"error\"\n"), 0o644))
	_, err := runCLI(t, env, "serve")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no deck given"))
}

func TestBadConfigFails(t *testing.T) {
	env := setupCLIEnv(t, "nosuch")
	_, err := runCLI(t, env, "show", "浮")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.backend")
}

func TestListSQLiteCache(t *testing.T) {
	env := setupCLIEnv(t, "sqlite")

	out, err := runCLI(t, env, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Story cache is empty.")

	_, err = runCLI(t, env, "show", "浮")
	require.NoError(t, err)
	out, err = runCLI(t, env, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "浮")
	assert.Contains(t, out, "Koohii")
}

func TestListNeedsSQLite(t *testing.T) {
	env := setupCLIEnv(t, "dir")
	_, err := runCLI(t, env, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}
