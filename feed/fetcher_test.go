package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rss2 = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test RSS Feed</title>
    <link>https://example.com</link>
    <item>
      <title>First Test Entry</title>
      <link>https://example.com/entry-1</link>
      <guid>entry-1</guid>
      <category>go</category>
      <category>news</category>
      <description>&lt;p&gt;This is the &lt;b&gt;first&lt;/b&gt; test entry &amp;amp; more.&lt;/p&gt;</description>
      <pubDate>Mon, 01 Jan 2024 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Second Test Entry</title>
      <link>https://example.com/entry-2</link>
      <guid>entry-2</guid>
    </item>
    <item>
      <title>Permalink Only</title>
      <guid isPermaLink="true">https://example.com/entry-3</guid>
    </item>
    <item>
      <title>No Link At All</title>
      <guid>entry-4</guid>
    </item>
  </channel>
</rss>`

const atom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Test Atom Feed</title>
  <link href="https://example.org/"/>
  <id>urn:uuid:feed</id>
  <updated>2024-01-02T00:00:00Z</updated>
  <entry>
    <title>First Atom Entry</title>
    <link href="https://example.org/atom-entry-1"/>
    <id>atom-entry-1</id>
    <updated>2024-01-02T00:00:00Z</updated>
    <summary>Short summary</summary>
    <category term="zig"/>
  </entry>
  <entry>
    <title>Second Atom Entry</title>
    <link href="https://example.org/atom-entry-2"/>
    <id>atom-entry-2</id>
    <updated>2024-01-01T00:00:00Z</updated>
  </entry>
</feed>`

func TestFetcher_ParseRSS2(t *testing.T) {
	fetcher := NewFetcher()
	src, drafts, err := fetcher.Parse(rss2)
	require.NoError(t, err)

	assert.Equal(t, "Test RSS Feed", src.Title)
	assert.Equal(t, "https://example.com", src.Link)

	require.Len(t, drafts, 3, "entries without any link are skipped")

	assert.Equal(t, "First Test Entry", drafts[0].Title)
	assert.Equal(t, "https://example.com/entry-1", drafts[0].URL)
	assert.Equal(t, []string{"go", "news"}, drafts[0].Tags)
	assert.Equal(t, "This is the first test entry & more.", drafts[0].Description)

	assert.Equal(t, "Second Test Entry", drafts[1].Title)
	assert.Empty(t, drafts[1].Description)

	assert.Equal(t, "https://example.com/entry-3", drafts[2].URL, "permalink guid used as link")
}

func TestFetcher_ParseAtom(t *testing.T) {
	fetcher := NewFetcher()
	src, drafts, err := fetcher.Parse(atom)
	require.NoError(t, err)

	assert.Equal(t, "Test Atom Feed", src.Title)
	require.Len(t, drafts, 2)

	assert.Equal(t, "First Atom Entry", drafts[0].Title)
	assert.Equal(t, "https://example.org/atom-entry-1", drafts[0].URL)
	assert.Equal(t, "Short summary", drafts[0].Description)
	assert.Equal(t, []string{"zig"}, drafts[0].Tags)
	assert.Equal(t, "Second Atom Entry", drafts[1].Title)
}

func TestFetcher_ParseInvalidFeed(t *testing.T) {
	fetcher := NewFetcher()

	_, _, err := fetcher.Parse("<invalid>xml</broken>")
	assert.Error(t, err, "Should error on invalid XML")

	_, _, err = fetcher.Parse("")
	assert.Error(t, err, "Should error on empty string")

	_, _, err = fetcher.Parse("<?xml version='1.0'?><root><item>not a feed</item></root>")
	assert.Error(t, err, "Should error on non-feed XML")
}

func TestFetcher_FetchURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rss2))
	}))
	defer srv.Close()

	fetcher := NewFetcher()
	src, drafts, err := fetcher.Fetch(context.Background(), srv.URL+"/feed.xml")
	require.NoError(t, err)
	assert.Equal(t, "Test RSS Feed", src.Title)
	assert.Len(t, drafts, 3)

	_, _, err = fetcher.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestFetcher_FetchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewFetcher().Fetch(ctx, "http://127.0.0.1:1/feed.xml")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := summarize(long)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), maxDescription+1)

	assert.Equal(t, "a b", summarize("  <i>a</i>\n\n b "))
}
