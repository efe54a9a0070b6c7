// Package library implements the reading-list repository: the collection
// of items, the tag registry, and every mutation over them.
//
// A Library keeps the collection in memory and persists it through two
// persist.Cells, one per durable key. Every mutation builds a new
// collection and hands it to the cell, which writes it in the background
// in the order the mutations happened.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robertmeta/readlist/logger"
	"github.com/robertmeta/readlist/model"
	"github.com/robertmeta/readlist/persist"
)

// Durable keys used by earlier versions of the reading list.
const (
	DefaultItemsKey = "urlManager"
	DefaultTagsKey  = "urlManagerTags"
)

var (
	// ErrNotFound means no item has the requested id. The collection is
	// left untouched.
	ErrNotFound = errors.New("item not found")
	// ErrInvalidDraft means a required field is missing.
	ErrInvalidDraft = errors.New("invalid item")
	// ErrInvalidStatus means the status is not one of the known values.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidTag means the tag is empty after trimming.
	ErrInvalidTag = errors.New("invalid tag")
)

const maxIDAttempts = 8

// Option configures a Library.
type Option func(*config)

type config struct {
	log      logger.Logger
	now      func() time.Time
	newID    func() string
	itemsKey string
	tagsKey  string
	cellOpts []persist.Option
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(newID func() string) Option {
	return func(c *config) { c.newID = newID }
}

// WithKeys overrides the durable keys.
func WithKeys(itemsKey, tagsKey string) Option {
	return func(c *config) {
		c.itemsKey = itemsKey
		c.tagsKey = tagsKey
	}
}

// WithCellOptions passes options through to both persistence cells.
func WithCellOptions(opts ...persist.Option) Option {
	return func(c *config) { c.cellOpts = append(c.cellOpts, opts...) }
}

// Library is the repository over the item collection and tag registry.
type Library struct {
	mu    sync.Mutex
	items []model.URLItem

	urls *persist.Cell[[]model.Record]
	tags *persist.Cell[[]string]

	log   logger.Logger
	now   func() time.Time
	newID func() string

	backfillChecked bool
}

// Open loads both keys from backend, migrates the stored records and
// back-fills the tag registry when it predates the items.
func Open(ctx context.Context, backend persist.Backend, opts ...Option) (*Library, error) {
	cfg := config{
		log:      logger.Nop(),
		now:      time.Now,
		newID:    uuid.NewString,
		itemsKey: DefaultItemsKey,
		tagsKey:  DefaultTagsKey,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	l := &Library{
		urls:  persist.New(backend, cfg.itemsKey, []model.Record{}, cfg.log, cfg.cellOpts...),
		tags:  persist.New(backend, cfg.tagsKey, []string{}, cfg.log, cfg.cellOpts...),
		log:   cfg.log,
		now:   cfg.now,
		newID: cfg.newID,
	}

	if err := l.load(ctx); err != nil {
		_ = l.Close(ctx)
		return nil, err
	}

	l.BackfillTags()
	return l, nil
}

func (l *Library) load(ctx context.Context) error {
	if err := l.urls.Load(ctx); err != nil {
		return fmt.Errorf("failed to load items: %w", err)
	}
	if err := l.tags.Load(ctx); err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}

	items, report := model.Migrate(l.urls.Value())
	if report.Changed() {
		l.log.Info("upgraded stored items",
			logger.Int("defaulted_status", report.DefaultedStatus),
			logger.Int("legacy_status", report.LegacyStatus),
			logger.Int("dropped_completion", report.DroppedCompleted),
			logger.Int("bad_timestamps", report.BadTimestamps))
	}

	l.mu.Lock()
	l.items = items
	l.mu.Unlock()

	l.log.Debug("library loaded", logger.Int("items", len(items)), logger.Int("tags", len(l.tags.Value())))
	return nil
}

// URLs returns a copy of the collection, newest first.
func (l *Library) URLs() []model.URLItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.URLItem, 0, len(l.items))
	for _, item := range l.items {
		out = append(out, item.Clone())
	}
	return out
}

// Tags returns a copy of the tag registry.
func (l *Library) Tags() []string {
	return append([]string{}, model.NormalizeTags(l.tags.Value())...)
}

// Get returns the item with the given id.
func (l *Library) Get(id string) (model.URLItem, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(id)
	if idx < 0 {
		return model.URLItem{}, false
	}
	return l.items[idx].Clone(), true
}

// Len returns the number of items.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// AddURL creates an unread item from draft and puts it first. A missing
// title is derived from the url host.
func (l *Library) AddURL(draft model.Draft) (model.URLItem, error) {
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return model.URLItem{}, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := l.uniqueID()
	if err != nil {
		return model.URLItem{}, err
	}

	now := l.now()
	item := model.URLItem{
		ID:          id,
		Title:       draft.Title,
		URL:         draft.URL,
		Description: draft.Description,
		Tags:        draft.Tags,
		Status:      model.Unread,
		CreatedAt:   now,
		UpdatedAt:   &now,
		ClickCount:  0,
	}

	items := make([]model.URLItem, 0, len(l.items)+1)
	items = append(items, item)
	items = append(items, l.items...)
	l.commit(items)
	l.registerTags(item.Tags)

	l.log.Debug("item added", logger.String("id", id), logger.String("url", item.URL))
	return item.Clone(), nil
}

// UpdateURL replaces the stored item that has item.ID. The id, url and
// creation time of the stored item are kept; UpdatedAt is always set to
// now. Entering the Completed status stamps the completion time when the
// item has none; leaving it drops the completion record.
func (l *Library) UpdateURL(item model.URLItem) (model.URLItem, error) {
	return l.update(item.ID, func(stored *model.URLItem) error {
		edit := item.Clone()
		next := stored.Clone()
		next.Title = strings.TrimSpace(edit.Title)
		next.Description = edit.Description
		next.Tags = model.NormalizeTags(edit.Tags)
		next.IsFavorite = edit.IsFavorite
		next.ClickCount = edit.ClickCount
		next.CompletedAt = edit.CompletedAt
		next.CompletedMemo = edit.CompletedMemo
		if edit.Status != "" {
			next.Status = edit.Status
		}

		if next.Title == "" {
			return fmt.Errorf("%w: title is required", ErrInvalidDraft)
		}
		if !next.Status.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, next.Status)
		}
		if next.IsCompleted() {
			if next.CompletedAt == nil {
				at := l.now()
				next.CompletedAt = &at
			}
		} else {
			next.CompletedAt = nil
			next.CompletedMemo = nil
		}
		if next.ClickCount < 0 {
			next.ClickCount = 0
		}

		*stored = next
		l.registerTags(next.Tags)
		return nil
	})
}

// DeleteURL removes the item with the given id.
func (l *Library) DeleteURL(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(id)
	if idx < 0 {
		return l.notFound(id)
	}

	items := make([]model.URLItem, 0, len(l.items)-1)
	items = append(items, l.items[:idx]...)
	items = append(items, l.items[idx+1:]...)
	l.commit(items)

	l.log.Debug("item deleted", logger.String("id", id))
	return nil
}

// StatusOption adds detail to a status change.
type StatusOption func(*statusChange)

type statusChange struct {
	memo        *string
	completedOn time.Time
}

// WithMemo records a completion memo. An empty memo is still recorded.
// It only applies when the new status is Completed.
func WithMemo(memo string) StatusOption {
	return func(c *statusChange) { c.memo = &memo }
}

// CompletedOn sets the completion time instead of now. It only applies
// when the new status is Completed.
func CompletedOn(t time.Time) StatusOption {
	return func(c *statusChange) { c.completedOn = t }
}

// ChangeStatus moves an item to status. Entering Completed stamps the
// completion time and memo; leaving Completed clears both.
func (l *Library) ChangeStatus(id string, status model.ReadingStatus, opts ...StatusOption) (model.URLItem, error) {
	if !status.Valid() {
		return model.URLItem{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var change statusChange
	for _, opt := range opts {
		opt(&change)
	}

	return l.update(id, func(item *model.URLItem) error {
		prior := item.Status
		item.Status = status

		switch {
		case status == model.Completed:
			at := change.completedOn
			if at.IsZero() {
				at = l.now()
			}
			item.CompletedAt = &at
			if change.memo != nil {
				memo := *change.memo
				item.CompletedMemo = &memo
			}
		case prior == model.Completed:
			item.CompletedAt = nil
			item.CompletedMemo = nil
		}
		return nil
	})
}

// ToggleFavorite flips the favorite flag.
func (l *Library) ToggleFavorite(id string) (model.URLItem, error) {
	return l.update(id, func(item *model.URLItem) error {
		item.IsFavorite = !item.IsFavorite
		l.log.Debug("favorite toggled", logger.String("id", id), logger.Bool("favorite", item.IsFavorite))
		return nil
	})
}

// IncrementClickCount records one opening of the item's link.
func (l *Library) IncrementClickCount(id string) (model.URLItem, error) {
	return l.update(id, func(item *model.URLItem) error {
		item.ClickCount++
		return nil
	})
}

// OpenURL is the "open the link" action: it counts the click and returns
// the url to hand to an opener.
func (l *Library) OpenURL(id string) (string, error) {
	item, err := l.IncrementClickCount(id)
	if err != nil {
		return "", err
	}
	return item.URL, nil
}

// Flush waits for every pending write on both keys.
func (l *Library) Flush(ctx context.Context) error {
	return errors.Join(l.urls.Flush(ctx), l.tags.Flush(ctx))
}

// Close flushes and stops the writers.
func (l *Library) Close(ctx context.Context) error {
	return errors.Join(l.urls.Close(ctx), l.tags.Close(ctx))
}

// update applies fn to a copy of the item with id and commits it with a
// fresh UpdatedAt. Callers must not hold l.mu.
func (l *Library) update(id string, fn func(item *model.URLItem) error) (model.URLItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(id)
	if idx < 0 {
		return model.URLItem{}, l.notFound(id)
	}

	item := l.items[idx].Clone()
	if err := fn(&item); err != nil {
		return model.URLItem{}, err
	}
	now := l.now()
	item.UpdatedAt = &now

	items := append([]model.URLItem(nil), l.items...)
	items[idx] = item
	l.commit(items)

	return item.Clone(), nil
}

// commit replaces the collection and queues its persistence. Requires l.mu.
func (l *Library) commit(items []model.URLItem) {
	l.items = items
	l.urls.Set(model.ToRecords(items))
}

func (l *Library) indexOf(id string) int {
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Library) uniqueID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := l.newID()
		if id != "" && l.indexOf(id) < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique id after %d attempts", maxIDAttempts)
}

func (l *Library) notFound(id string) error {
	l.log.Debug("item not found", logger.String("id", id))
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
