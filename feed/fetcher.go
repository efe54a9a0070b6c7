// Package feed turns RSS/Atom feeds into drafts for the reading list.
package feed

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"github.com/robertmeta/readlist/model"
)

// maxDescription bounds the description copied from an entry summary.
const maxDescription = 280

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Source describes the feed the drafts came from.
type Source struct {
	Title string
	Link  string
}

// Fetcher handles fetching and parsing RSS/Atom feeds.
type Fetcher struct {
	parser *gofeed.Parser
}

// NewFetcher creates a new Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		parser: gofeed.NewParser(),
	}
}

// Fetch retrieves a feed and returns one draft per entry that has a link.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Source, []model.Draft, error) {
	parsed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return Source{}, nil, fmt.Errorf("failed to fetch feed from %s: %w", url, err)
	}

	src, drafts := convert(parsed)
	if src.Link == "" {
		src.Link = url
	}
	return src, drafts, nil
}

// Parse parses feed content from a string.
func (f *Fetcher) Parse(content string) (Source, []model.Draft, error) {
	if content == "" {
		return Source{}, nil, fmt.Errorf("feed content is empty")
	}

	parsed, err := f.parser.ParseString(content)
	if err != nil {
		return Source{}, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	src, drafts := convert(parsed)
	return src, drafts, nil
}

func convert(gf *gofeed.Feed) (Source, []model.Draft) {
	src := Source{Title: strings.TrimSpace(gf.Title), Link: gf.Link}

	drafts := make([]model.Draft, 0, len(gf.Items))
	for _, item := range gf.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			// Some feeds only carry a permalink GUID.
			if strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://") {
				link = item.GUID
			} else {
				continue
			}
		}

		draft := model.Draft{
			Title:       strings.TrimSpace(item.Title),
			URL:         link,
			Description: summarize(item.Description),
			Tags:        model.NormalizeTags(item.Categories),
		}
		drafts = append(drafts, draft)
	}

	return src, drafts
}

// summarize strips markup from an entry summary and shortens it.
func summarize(s string) string {
	s = html.UnescapeString(tagPattern.ReplaceAllString(s, " "))
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxDescription {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxDescription])) + "…"
}
