package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/robertmeta/readlist/library"
	"github.com/robertmeta/readlist/model"
	"github.com/robertmeta/readlist/store"
)

type harness struct {
	t  *testing.T
	db string
}

func newHarness(t *testing.T) *harness {
	for _, key := range []string{"READLIST_CONFIG", "READLIST_DRIVER", "READLIST_DB", "READLIST_SORT", "READLIST_LANGUAGE", "READLIST_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	return &harness{t: t, db: filepath.Join(t.TempDir(), "readlist.db")}
}

// run executes one CLI invocation and returns its stdout and stderr.
func (h *harness) run(stdin string, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	app := newApp(strings.NewReader(stdin), &out, &errOut)
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"readlist", "--db", h.db}, args...))
	return out.String(), errOut.String(), err
}

// ok runs a command that must succeed and decodes its JSON output.
func (h *harness) ok(v interface{}, args ...string) {
	h.t.Helper()
	out, _, err := h.run("", args...)
	require.NoError(h.t, err, out)
	if v != nil {
		require.NoError(h.t, json.Unmarshal([]byte(out), v), out)
	}
}

func (h *harness) add(url string, flags ...string) model.URLItem {
	h.t.Helper()
	var res struct {
		Item model.URLItem `json:"item"`
	}
	h.ok(&res, append(append([]string{"add"}, flags...), url)...)
	return res.Item
}

type listResult struct {
	Tab    string          `json:"tab"`
	Sort   string          `json:"sort"`
	Counts map[string]int  `json:"counts"`
	Count  int             `json:"count"`
	Items  []model.URLItem `json:"items"`
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var coder cli.ExitCoder
	require.ErrorAs(t, err, &coder)
	return coder.ExitCode()
}

func TestAddAndList(t *testing.T) {
	h := newHarness(t)

	first := h.add("https://go.dev/blog", "--tag", "go", "--tag", "news")
	assert.Equal(t, "go.dev", first.Title, "title derived from host")
	assert.Equal(t, model.Unread, first.Status)
	second := h.add("https://ziglang.org", "--title", "Zig")

	var list listResult
	h.ok(&list, "list")
	assert.Equal(t, "active", list.Tab)
	assert.Equal(t, "created_desc", list.Sort)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, second.ID, list.Items[0].ID)
	assert.Equal(t, first.ID, list.Items[1].ID)

	h.ok(&list, "list", "--tag", "go", "--tag", "news")
	require.Equal(t, 1, list.Count)
	assert.Equal(t, first.ID, list.Items[0].ID)

	h.ok(&list, "list", "--sort", "title_asc", "--limit", "1")
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "go.dev", list.Items[0].Title)
}

func TestAdd_RequiresURL(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("", "add")
	assert.Equal(t, ExitUsageError, exitCode(t, err))

	_, _, err = h.run("", "add", "  ")
	assert.Equal(t, ExitDataError, exitCode(t, err))
}

func TestStatusMovesBetweenTabs(t *testing.T) {
	h := newHarness(t)
	item := h.add("https://example.com/a")

	var res struct {
		Item model.URLItem `json:"item"`
	}
	h.ok(&res, "status", "--memo", "great read", "--on", "2024-05-01", item.ID, "completed")
	require.NotNil(t, res.Item.CompletedAt)
	require.NotNil(t, res.Item.CompletedMemo)
	assert.Equal(t, "great read", *res.Item.CompletedMemo)

	var list listResult
	h.ok(&list, "list")
	assert.Equal(t, 0, list.Count)
	assert.Equal(t, map[string]int{"active": 0, "completed": 1}, list.Counts)

	h.ok(&list, "list", "--tab", "completed")
	assert.Equal(t, "completed_desc", list.Sort)
	require.Equal(t, 1, list.Count)

	h.ok(&res, "status", item.ID, "reading")
	assert.Nil(t, res.Item.CompletedAt)
	assert.Nil(t, res.Item.CompletedMemo)
}

func TestStatus_InvalidInput(t *testing.T) {
	h := newHarness(t)
	item := h.add("https://example.com/a")

	_, _, err := h.run("", "status", item.ID, "done")
	assert.Equal(t, ExitUsageError, exitCode(t, err))

	_, _, err = h.run("", "status", "missing", "reading")
	assert.Equal(t, ExitDataError, exitCode(t, err))
}

func TestList_CompletedSortOnActiveTab(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("", "list", "--sort", "completed_desc")
	assert.Equal(t, ExitUsageError, exitCode(t, err))

	_, _, err = h.run("", "list", "--since", "soon")
	assert.Equal(t, ExitUsageError, exitCode(t, err))
}

func TestShowMissingItem(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("", "show", "nope")
	assert.Equal(t, ExitDataError, exitCode(t, err))
}

func TestEditKeepsURL(t *testing.T) {
	h := newHarness(t)
	item := h.add("https://example.com/a", "--tag", "old")

	var res struct {
		Item model.URLItem `json:"item"`
	}
	h.ok(&res, "edit", "--title", "Renamed", "--tag", "new", item.ID)
	assert.Equal(t, "Renamed", res.Item.Title)
	assert.Equal(t, "https://example.com/a", res.Item.URL)
	assert.Equal(t, []string{"new"}, res.Item.Tags)

	var shown model.URLItem
	h.ok(&shown, "show", item.ID)
	assert.Equal(t, "Renamed", shown.Title)
}

func TestRemoveItem(t *testing.T) {
	h := newHarness(t)
	item := h.add("https://example.com/a")

	h.ok(nil, "remove", item.ID)

	_, _, err := h.run("", "remove", item.ID)
	assert.Equal(t, ExitDataError, exitCode(t, err))
}

func TestFavoriteAndOpen(t *testing.T) {
	h := newHarness(t)
	item := h.add("https://example.com/a")

	var opened []string
	orig := openInBrowser
	openInBrowser = func(url string) error {
		opened = append(opened, url)
		return nil
	}
	defer func() { openInBrowser = orig }()

	var fav struct {
		IsFavorite bool `json:"is_favorite"`
	}
	h.ok(&fav, "favorite", item.ID)
	assert.True(t, fav.IsFavorite)

	var res struct {
		URL    string `json:"url"`
		Opened bool   `json:"opened"`
	}
	h.ok(&res, "open", item.ID)
	assert.Equal(t, "https://example.com/a", res.URL)
	assert.False(t, res.Opened)
	assert.Empty(t, opened)

	h.ok(&res, "open", "--browser", item.ID)
	assert.True(t, res.Opened)
	assert.Equal(t, []string{"https://example.com/a"}, opened)

	var shown model.URLItem
	h.ok(&shown, "show", item.ID)
	assert.Equal(t, 2, shown.ClickCount)
	assert.True(t, shown.IsFavorite)

	var list listResult
	h.ok(&list, "list", "--favorites")
	assert.Equal(t, 1, list.Count)
}

func TestTags(t *testing.T) {
	h := newHarness(t)
	h.add("https://example.com/a", "--tag", "go")
	h.ok(nil, "tag-add", "later")

	var res struct {
		Count int       `json:"count"`
		Tags  []tagInfo `json:"tags"`
	}
	h.ok(&res, "tags")
	assert.Equal(t, []tagInfo{{Name: "go", Items: 1}, {Name: "later", Items: 0}}, res.Tags)

	_, _, err := h.run("", "tag-add", " ")
	assert.Equal(t, ExitUsageError, exitCode(t, err))
}

type removeTagResult struct {
	Affected int  `json:"affected"`
	Deleted  bool `json:"deleted"`
}

func TestTagRemove_Prompt(t *testing.T) {
	h := newHarness(t)
	item := h.add("https://example.com/a", "--tag", "go")

	out, prompt, err := h.run("n\n", "tag-remove", "go")
	require.NoError(t, err)
	assert.Contains(t, prompt, `Tag "go" is used by 1 item.`)

	var res removeTagResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, removeTagResult{Affected: 1, Deleted: false}, res)

	var shown model.URLItem
	h.ok(&shown, "show", item.ID)
	assert.Equal(t, []string{"go"}, shown.Tags, "declined deletion changes nothing")

	out, _, err = h.run("y\n", "tag-remove", "go")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, removeTagResult{Affected: 1, Deleted: true}, res)

	h.ok(&shown, "show", item.ID)
	assert.Empty(t, shown.Tags)
}

func TestTagRemove_Yes(t *testing.T) {
	h := newHarness(t)
	h.add("https://example.com/a", "--tag", "go")
	h.add("https://example.com/b", "--tag", "go")

	out, prompt, err := h.run("", "tag-remove", "--yes", "go")
	require.NoError(t, err)
	assert.Empty(t, prompt)

	var res removeTagResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, removeTagResult{Affected: 2, Deleted: true}, res)
}

func TestExportImportOPML(t *testing.T) {
	src := newHarness(t)
	src.add("https://go.dev/blog", "--tag", "go")
	src.add("https://example.com/loose")

	file := filepath.Join(t.TempDir(), "list.opml")
	var exported struct {
		Count int `json:"count"`
	}
	src.ok(&exported, "export", "--output", file)
	assert.Equal(t, 2, exported.Count)

	stdout, _, err := src.run("", "export")
	require.NoError(t, err)
	assert.Contains(t, stdout, `url="https://go.dev/blog"`)

	dst := &harness{t: t, db: filepath.Join(t.TempDir(), "other.db")}
	var imported struct {
		Imported int `json:"imported"`
		Skipped  int `json:"skipped"`
		Total    int `json:"total"`
	}
	dst.ok(&imported, "import", file)
	assert.Equal(t, 2, imported.Imported)

	dst.ok(&imported, "import", file)
	assert.Equal(t, 0, imported.Imported)
	assert.Equal(t, 2, imported.Skipped, "existing urls are skipped")

	_, _, err = dst.run("", "import", filepath.Join(t.TempDir(), "missing.opml"))
	assert.Equal(t, ExitDataError, exitCode(t, err))
}

func TestImportFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>Weekly</title>
  <item><title>One</title><link>https://example.com/1</link><category>go</category></item>
  <item><title>Two</title><link>https://example.com/2</link></item>
</channel></rss>`))
	}))
	defer srv.Close()

	h := newHarness(t)
	var res struct {
		Feed     string `json:"feed"`
		Imported int    `json:"imported"`
	}
	h.ok(&res, "import-feed", "--tag", "weekly", srv.URL)
	assert.Equal(t, "Weekly", res.Feed)
	assert.Equal(t, 2, res.Imported)

	var list listResult
	h.ok(&list, "list", "--tag", "weekly", "--sort", "title_asc")
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "One", list.Items[0].Title)
	assert.Equal(t, []string{"go", "weekly"}, list.Items[0].Tags)
}

func TestInfo(t *testing.T) {
	h := newHarness(t)
	h.add("https://example.com/a", "--tag", "go")

	var info struct {
		Driver string `json:"driver"`
		Tags   int    `json:"tags"`
		Keys   []struct {
			Key string `json:"key"`
		} `json:"keys"`
	}
	h.ok(&info, "info")
	assert.Equal(t, "sqlite", info.Driver)
	assert.Equal(t, 1, info.Tags)

	keys := make([]string, 0, len(info.Keys))
	for _, k := range info.Keys {
		keys = append(keys, k.Key)
	}
	assert.ElementsMatch(t, []string{"urlManager", "urlManagerTags"}, keys)
}

func TestInfo_ReportsBackfilledTags(t *testing.T) {
	h := newHarness(t)

	st, err := store.New(h.db)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), library.DefaultItemsKey,
		[]byte(`[{"id":"1","title":"A","url":"https://example.com/a","tags":["go"],"status":"unread","createdAt":"2024-01-01T00:00:00.000Z"}]`)))
	require.NoError(t, st.Close())

	var info struct {
		Keys []struct {
			Key  string `json:"key"`
			Size int    `json:"size"`
		} `json:"keys"`
	}
	h.ok(&info, "info")

	sizes := make(map[string]int, len(info.Keys))
	for _, k := range info.Keys {
		sizes[k.Key] = k.Size
	}
	require.Contains(t, sizes, library.DefaultTagsKey, "the rebuilt registry is on disk before it is listed")
	assert.Positive(t, sizes[library.DefaultTagsKey])
	assert.Positive(t, sizes[library.DefaultItemsKey])
}

func TestMemoryDriver(t *testing.T) {
	h := newHarness(t)

	var out bytes.Buffer
	app := newApp(strings.NewReader(""), &out, &bytes.Buffer{})
	app.ExitErrHandler = func(*cli.Context, error) {}
	require.NoError(t, app.Run([]string{"readlist", "--driver", "memory", "add", "https://example.com/a"}))
	assert.Contains(t, out.String(), `"success": true`)

	_, err := os.Stat(h.db)
	assert.True(t, os.IsNotExist(err), "memory driver never touches the database file")
}

func TestPrompt(t *testing.T) {
	tests := []struct {
		input  string
		expect bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes ", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"sure\n", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got := prompt(strings.NewReader(tt.input), &out, "Delete?")
		assert.Equal(t, tt.expect, got, "input %q", tt.input)
		assert.Equal(t, "Delete? [y/N] ", out.String())
	}
}
