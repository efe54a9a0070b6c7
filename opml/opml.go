// Package opml exports the reading list as OPML and imports link outlines
// from OPML files produced by readers and bookmark managers.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/robertmeta/readlist/model"
)

// OPML represents the root OPML structure.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains metadata about the OPML document.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outline elements.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a link, a feed or a folder. Category is a comma separated tag
// list as in OPML 2.0.
type Outline struct {
	Text        string    `xml:"text,attr,omitempty"`
	Title       string    `xml:"title,attr,omitempty"`
	Type        string    `xml:"type,attr,omitempty"`
	URL         string    `xml:"url,attr,omitempty"`
	HTMLUrl     string    `xml:"htmlUrl,attr,omitempty"`
	XMLUrl      string    `xml:"xmlUrl,attr,omitempty"`
	Description string    `xml:"description,attr,omitempty"`
	Category    string    `xml:"category,attr,omitempty"`
	Created     string    `xml:"created,attr,omitempty"`
	Outlines    []Outline `xml:"outline,omitempty"`
}

// link returns the address the outline points at, preferring the page over
// the feed.
func (o Outline) link() string {
	for _, u := range []string{o.URL, o.HTMLUrl, o.XMLUrl} {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

// Parse reads an OPML file and returns a draft per link outline.
func Parse(r io.Reader) ([]model.Draft, error) {
	var doc OPML
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	return extractDrafts(doc.Body.Outlines, ""), nil
}

// extractDrafts walks outlines recursively. Folder names become a tag on
// every link below them.
func extractDrafts(outlines []Outline, folder string) []model.Draft {
	var drafts []model.Draft

	for _, outline := range outlines {
		if link := outline.link(); link != "" {
			draft := model.Draft{
				Title:       outline.Title,
				URL:         link,
				Description: outline.Description,
				Tags:        splitCategory(outline.Category),
			}
			if draft.Title == "" {
				draft.Title = outline.Text
			}
			if folder != "" {
				draft.Tags = append(draft.Tags, folder)
			}
			draft.Tags = model.NormalizeTags(draft.Tags)
			drafts = append(drafts, draft)
		}

		if len(outline.Outlines) > 0 {
			child := strings.TrimSpace(outline.Text)
			if child == "" {
				child = folder
			}
			drafts = append(drafts, extractDrafts(outline.Outlines, child)...)
		}
	}

	return drafts
}

func splitCategory(category string) []string {
	if category == "" {
		return nil
	}
	var tags []string
	for _, part := range strings.Split(category, ",") {
		// OPML category paths may start with a slash.
		part = strings.Trim(strings.TrimSpace(part), "/")
		if part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

// Generate writes items as OPML. Items are grouped into folders by their
// first tag; untagged items go directly under the body.
func Generate(w io.Writer, items []model.URLItem) error {
	folders := make(map[string][]model.URLItem)
	var untagged []model.URLItem

	for _, item := range items {
		if len(item.Tags) == 0 {
			untagged = append(untagged, item)
			continue
		}
		folders[item.Tags[0]] = append(folders[item.Tags[0]], item)
	}

	names := make([]string, 0, len(folders))
	for name := range folders {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       "readlist",
			DateCreated: time.Now().Format(time.RFC1123),
		},
		Body: Body{
			Outlines: []Outline{},
		},
	}

	for _, name := range names {
		folder := Outline{
			Text:     name,
			Title:    name,
			Outlines: []Outline{},
		}
		for _, item := range folders[name] {
			folder.Outlines = append(folder.Outlines, linkOutline(item))
		}
		doc.Body.Outlines = append(doc.Body.Outlines, folder)
	}

	for _, item := range untagged {
		doc.Body.Outlines = append(doc.Body.Outlines, linkOutline(item))
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}

	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}

	return nil
}

func linkOutline(item model.URLItem) Outline {
	return Outline{
		Type:        "link",
		Text:        item.Title,
		Title:       item.Title,
		URL:         item.URL,
		Description: item.Description,
		Category:    strings.Join(item.Tags, ","),
		Created:     item.CreatedAt.UTC().Format(time.RFC1123Z),
	}
}
