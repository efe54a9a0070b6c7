// Package model defines the core data structures for readlist.
package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ReadingStatus is the categorical reading state of an item.
type ReadingStatus string

const (
	Unread    ReadingStatus = "unread"
	Reading   ReadingStatus = "reading"
	Completed ReadingStatus = "completed"
)

// legacyStatuses maps status strings written by earlier versions of the
// reading list onto the current values.
var legacyStatuses = map[string]ReadingStatus{
	"未読":  Unread,
	"読書中": Reading,
	"完読":  Completed,
}

// Statuses lists every valid status in display order.
func Statuses() []ReadingStatus {
	return []ReadingStatus{Unread, Reading, Completed}
}

// Valid reports whether s is one of the known statuses.
func (s ReadingStatus) Valid() bool {
	switch s {
	case Unread, Reading, Completed:
		return true
	}
	return false
}

// ParseStatus parses a status name, accepting legacy spellings.
func ParseStatus(s string) (ReadingStatus, error) {
	trimmed := strings.TrimSpace(s)
	if st := ReadingStatus(strings.ToLower(trimmed)); st.Valid() {
		return st, nil
	}
	if st, ok := legacyStatuses[trimmed]; ok {
		return st, nil
	}
	names := make([]string, 0, 3)
	for _, st := range Statuses() {
		names = append(names, string(st))
	}
	return "", fmt.Errorf("unknown status: %q (expected one of %s)", s, strings.Join(names, ", "))
}

// URLItem is one bookmarked resource.
type URLItem struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	URL         string        `json:"url"`
	Description string        `json:"description"`
	Tags        []string      `json:"tags"`
	Status      ReadingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty"`
	// CompletedAt and CompletedMemo are only meaningful while Status is Completed.
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CompletedMemo *string    `json:"completed_memo,omitempty"`
	IsFavorite    bool       `json:"is_favorite"`
	ClickCount    int        `json:"click_count"`

	// rawCreatedAt keeps a stored createdAt that could not be parsed so
	// it is written back unchanged.
	rawCreatedAt string
}

// IsCompleted returns true if the item sits in the completed partition.
func (u *URLItem) IsCompleted() bool {
	return u.Status == Completed
}

// HasTag checks if the item has the specified tag.
func (u *URLItem) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAllTags reports whether the item carries every tag in tags.
// An empty tags list matches everything.
func (u *URLItem) HasAllTags(tags []string) bool {
	for _, tag := range tags {
		if !u.HasTag(tag) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers can't alias stored state.
func (u URLItem) Clone() URLItem {
	out := u
	if u.Tags != nil {
		out.Tags = append([]string(nil), u.Tags...)
	}
	if u.UpdatedAt != nil {
		t := *u.UpdatedAt
		out.UpdatedAt = &t
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		out.CompletedAt = &t
	}
	if u.CompletedMemo != nil {
		m := *u.CompletedMemo
		out.CompletedMemo = &m
	}
	return out
}

// Draft holds the caller-supplied fields of a new item.
type Draft struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Normalize trims the draft, derives a missing title from the URL host and
// collapses the tags into a set.
func (d *Draft) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.URL = strings.TrimSpace(d.URL)
	d.Description = strings.TrimSpace(d.Description)
	if d.Title == "" {
		d.Title = TitleFromURL(d.URL)
	}
	d.Tags = NormalizeTags(d.Tags)
}

// Validate checks if the draft has required fields.
func (d *Draft) Validate() error {
	if d.URL == "" {
		return errors.New("url is required")
	}
	if d.Title == "" {
		return errors.New("title is required")
	}
	return nil
}

// TitleFromURL returns the host name of an absolute URL, or "" when raw
// isn't one.
func TitleFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" {
		return ""
	}
	return u.Hostname()
}

// NormalizeTags trims each tag, drops empty ones and removes duplicates,
// keeping the first occurrence.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
