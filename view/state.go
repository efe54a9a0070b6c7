package view

import (
	"errors"

	"github.com/robertmeta/readlist/model"
)

// ErrSortUnavailable is returned when a completion-date sort is chosen on
// the active tab, where no item has a completion date.
var ErrSortUnavailable = errors.New("sort is not available on this tab")

// State is the filter and sort selection of the list view.
type State struct {
	Tab           Tab
	Tags          []string
	Status        *model.ReadingStatus
	FavoritesOnly bool
	Sort          Sort
}

// NewState starts on the active tab, newest first.
func NewState() *State {
	return &State{Tab: Active, Sort: DefaultSort(Active)}
}

// DefaultSort is newest-created first on the active tab and
// newest-completed first on the completed tab.
func DefaultSort(tab Tab) Sort {
	if tab == Completed {
		return Sort{Key: ByCompleted, Dir: Desc}
	}
	return Sort{Key: ByCreated, Dir: Desc}
}

// SwitchTab changes tab, clears every filter and resets the sort.
func (s *State) SwitchTab(tab Tab) {
	s.Tab = tab
	s.ClearFilters()
	s.Sort = DefaultSort(tab)
}

// ClearFilters drops the tag, status and favorite filters.
func (s *State) ClearFilters() {
	s.Tags = nil
	s.Status = nil
	s.FavoritesOnly = false
}

// SetSort changes the ordering.
func (s *State) SetSort(sort Sort) error {
	if sort.Key == ByCompleted && s.Tab != Completed {
		return ErrSortUnavailable
	}
	s.Sort = sort
	return nil
}

// SetStatus filters on a status; nil clears it.
func (s *State) SetStatus(status *model.ReadingStatus) {
	s.Status = status
}

// ToggleFavorites flips the favorites-only filter.
func (s *State) ToggleFavorites() {
	s.FavoritesOnly = !s.FavoritesOnly
}

// ToggleTag adds tag to the selection, or removes it if already selected.
func (s *State) ToggleTag(tag string) {
	for _, t := range s.Tags {
		if t == tag {
			s.DropTag(tag)
			return
		}
	}
	s.Tags = append(s.Tags, tag)
}

// DropTag unselects tag, e.g. after it was deleted.
func (s *State) DropTag(tag string) {
	kept := s.Tags[:0:0]
	for _, t := range s.Tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	s.Tags = kept
}

// Filter returns the filter described by the state.
func (s *State) Filter() Filter {
	return Filter{
		Tab:           s.Tab,
		Tags:          append([]string(nil), s.Tags...),
		Status:        s.Status,
		FavoritesOnly: s.FavoritesOnly,
	}
}
