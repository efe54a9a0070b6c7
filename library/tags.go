package library

import (
	"fmt"
	"strings"

	"github.com/robertmeta/readlist/logger"
	"github.com/robertmeta/readlist/model"
)

// AddTag registers a tag before any item uses it.
func (l *Library) AddTag(tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ErrInvalidTag
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.registerTags([]string{tag})
	return nil
}

// TagUsage returns how many items carry tag, i.e. how many items a
// DeleteTag would touch.
func (l *Library) TagUsage(tag string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for i := range l.items {
		if l.items[i].HasTag(tag) {
			n++
		}
	}
	return n
}

// DeleteTag strips tag from every item that has it and drops it from the
// registry. Only the items that changed get a new UpdatedAt. It returns
// the number of items changed.
//
// DeleteTag does not ask for confirmation; callers that need one should
// check TagUsage first, or use RemoveTag.
func (l *Library) DeleteTag(tag string) (int, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, ErrInvalidTag
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	affected := 0
	items := make([]model.URLItem, 0, len(l.items))
	for _, item := range l.items {
		if !item.HasTag(tag) {
			items = append(items, item)
			continue
		}

		changed := item.Clone()
		kept := make([]string, 0, len(changed.Tags)-1)
		for _, t := range changed.Tags {
			if t != tag {
				kept = append(kept, t)
			}
		}
		changed.Tags = kept
		now := l.now()
		changed.UpdatedAt = &now

		items = append(items, changed)
		affected++
	}
	if affected > 0 {
		l.commit(items)
	}

	registry := model.NormalizeTags(l.tags.Value())
	kept := make([]string, 0, len(registry))
	for _, t := range registry {
		if t != tag {
			kept = append(kept, t)
		}
	}
	if len(kept) != len(registry) {
		l.tags.Set(kept)
	}

	l.log.Debug("tag deleted", logger.String("tag", tag), logger.Int("affected", affected))
	return affected, nil
}

// Confirm decides whether a tag deletion that touches affected items may
// go ahead.
type Confirm func(tag string, affected int) bool

// RemoveTag sequences the confirmation step between TagUsage and
// DeleteTag. Confirm is only consulted when at least one item carries the
// tag. A declined confirmation changes nothing and reports deleted=false.
func (l *Library) RemoveTag(tag string, confirm Confirm) (affected int, deleted bool, err error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, false, ErrInvalidTag
	}

	if n := l.TagUsage(tag); n > 0 {
		if confirm == nil || !confirm(tag, n) {
			l.log.Debug("tag deletion declined", logger.String("tag", tag), logger.Int("affected", n))
			return n, false, nil
		}
	}

	affected, err = l.DeleteTag(tag)
	if err != nil {
		return affected, false, err
	}
	return affected, true, nil
}

// ConfirmMessage is the prompt shown before deleting a tag in use.
func ConfirmMessage(tag string, affected int) string {
	noun := "items"
	if affected == 1 {
		noun = "item"
	}
	return fmt.Sprintf("Tag %q is used by %d %s. Deleting it removes it from those items too. Delete?", tag, affected, noun)
}

// BackfillTags rebuilds an empty tag registry from the tags the items
// carry, in order of first appearance, and defaults missing statuses. It
// runs at most once per Library so a registry edited afterwards is never
// clobbered. It reports whether the registry was written.
func (l *Library) BackfillTags() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.backfillChecked || !l.urls.Loaded() || !l.tags.Loaded() {
		return false
	}
	l.backfillChecked = true

	if len(l.tags.Value()) > 0 || len(l.items) == 0 {
		return false
	}

	var all []string
	repaired := false
	items := append([]model.URLItem(nil), l.items...)
	for i := range items {
		if !items[i].Status.Valid() {
			items[i].Status = model.Unread
			repaired = true
		}
		all = append(all, items[i].Tags...)
	}
	if repaired {
		l.commit(items)
	}

	tags := model.NormalizeTags(all)
	if len(tags) == 0 {
		return false
	}
	l.tags.Set(tags)

	l.log.Info("rebuilt tag registry from items", logger.Strings("tags", tags))
	return true
}

// registerTags appends unseen tags to the registry. Requires l.mu.
func (l *Library) registerTags(tags []string) {
	registry := model.NormalizeTags(l.tags.Value())
	known := make(map[string]bool, len(registry))
	for _, t := range registry {
		known[t] = true
	}

	added := false
	for _, t := range model.NormalizeTags(tags) {
		if !known[t] {
			known[t] = true
			registry = append(registry, t)
			added = true
		}
	}
	if added {
		l.tags.Set(registry)
	}
}
