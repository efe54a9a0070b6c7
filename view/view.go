// Package view derives the displayed list from the stored collection:
// tab partition, filters, then a stable sort. Everything here is pure.
package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/robertmeta/readlist/model"
)

// Tab selects one of the two partitions of the collection.
type Tab string

const (
	Active    Tab = "active"
	Completed Tab = "completed"
)

// ParseTab parses a tab name.
func ParseTab(s string) (Tab, error) {
	switch Tab(strings.ToLower(strings.TrimSpace(s))) {
	case Active:
		return Active, nil
	case Completed:
		return Completed, nil
	}
	return "", fmt.Errorf("unknown tab: %q (expected active or completed)", s)
}

// Contains reports whether the item belongs to the tab.
func (t Tab) Contains(item *model.URLItem) bool {
	if t == Completed {
		return item.IsCompleted()
	}
	return !item.IsCompleted()
}

// SortKey names the field to order by.
type SortKey string

const (
	ByCreated   SortKey = "created"
	ByUpdated   SortKey = "updated"
	ByCompleted SortKey = "completed"
	ByTitle     SortKey = "title"
	ByClicks    SortKey = "clicks"
)

// Direction is ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is a key and a direction, written "created_desc".
type Sort struct {
	Key SortKey
	Dir Direction
}

func (s Sort) String() string {
	return string(s.Key) + "_" + string(s.Dir)
}

// ParseSort parses "<key>_<asc|desc>".
func ParseSort(s string) (Sort, error) {
	key, dir, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "_")
	if !ok {
		return Sort{}, fmt.Errorf("invalid sort: %q (expected <key>_<asc|desc>, e.g. created_desc)", s)
	}

	out := Sort{Key: SortKey(key), Dir: Direction(dir)}
	switch out.Key {
	case ByCreated, ByUpdated, ByCompleted, ByTitle, ByClicks:
	default:
		return Sort{}, fmt.Errorf("invalid sort key: %q (expected created, updated, completed, title or clicks)", key)
	}
	switch out.Dir {
	case Asc, Desc:
	default:
		return Sort{}, fmt.Errorf("invalid sort direction: %q (expected asc or desc)", dir)
	}
	return out, nil
}

// SortOptions lists every sort in menu order.
func SortOptions() []Sort {
	return []Sort{
		{ByCreated, Desc}, {ByCreated, Asc},
		{ByUpdated, Desc}, {ByUpdated, Asc},
		{ByCompleted, Desc}, {ByCompleted, Asc},
		{ByTitle, Asc}, {ByTitle, Desc},
		{ByClicks, Desc}, {ByClicks, Asc},
	}
}

// Filter selects items within a tab. Zero values disable each criterion.
type Filter struct {
	Tab Tab
	// Tags must all be present on an item (AND, not OR).
	Tags          []string
	Status        *model.ReadingStatus
	FavoritesOnly bool
	// Since keeps items created at or after the instant.
	Since *time.Time
}

// Match reports whether item passes every criterion of f, tab included.
func (f Filter) Match(item *model.URLItem) bool {
	tab := f.Tab
	if tab == "" {
		tab = Active
	}
	if !tab.Contains(item) {
		return false
	}
	if !item.HasAllTags(f.Tags) {
		return false
	}
	if f.Status != nil && item.Status != *f.Status {
		return false
	}
	if f.FavoritesOnly && !item.IsFavorite {
		return false
	}
	if f.Since != nil && item.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Option configures Apply.
type Option func(*options)

type options struct {
	lang language.Tag
}

// WithLanguage sets the collation used for title ordering.
func WithLanguage(tag language.Tag) Option {
	return func(o *options) { o.lang = tag }
}

// Apply filters items and orders the survivors. Items with equal keys keep
// their collection order. The input slice is not modified.
func Apply(items []model.URLItem, f Filter, s Sort, opts ...Option) []model.URLItem {
	o := options{lang: language.Japanese}
	for _, opt := range opts {
		opt(&o)
	}

	out := make([]model.URLItem, 0, len(items))
	for i := range items {
		if f.Match(&items[i]) {
			out = append(out, items[i])
		}
	}

	cmp := comparator(s.Key, o.lang)
	if cmp == nil {
		return out
	}
	desc := s.Dir == Desc
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return cmp(&out[j], &out[i]) < 0
		}
		return cmp(&out[i], &out[j]) < 0
	})
	return out
}

// Counts returns the size of each tab, for tab labels.
func Counts(items []model.URLItem) (active, completed int) {
	for i := range items {
		if items[i].IsCompleted() {
			completed++
		} else {
			active++
		}
	}
	return active, completed
}

func comparator(key SortKey, lang language.Tag) func(a, b *model.URLItem) int {
	switch key {
	case ByCreated:
		return func(a, b *model.URLItem) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case ByUpdated:
		return func(a, b *model.URLItem) int { return timeOf(a.UpdatedAt).Compare(timeOf(b.UpdatedAt)) }
	case ByCompleted:
		return func(a, b *model.URLItem) int { return timeOf(a.CompletedAt).Compare(timeOf(b.CompletedAt)) }
	case ByTitle:
		// A collator is not safe for concurrent use; one per Apply call.
		c := collate.New(lang)
		return func(a, b *model.URLItem) int { return c.CompareString(a.Title, b.Title) }
	case ByClicks:
		return func(a, b *model.URLItem) int { return a.ClickCount - b.ClickCount }
	}
	return nil
}

// timeOf treats a missing timestamp as the zero instant, which sorts
// before every real one.
func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
