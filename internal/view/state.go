// Package view holds the collection view state machine: a pure reducer over
// State plus a View that runs effects and owns the delete timers.
package view

import (
	"slices"

	"inspirations/internal/domain/models"
)

type UploadKind string

const (
	KindImage UploadKind = "image"
	KindTweet UploadKind = "tweet"
	KindURL   UploadKind = "url"
)

// Upload is the placeholder shown while an ingestion is in flight.
type Upload struct {
	Kind   UploadKind `json:"kind"`
	Label  string     `json:"label"`
	TempID string     `json:"temp_id"`
}

// PendingDeletion is an item removed from the grid whose store delete has not resolved.
type PendingDeletion struct {
	Item  models.Item `json:"item"`
	Index int         `json:"index"`
}

type State struct {
	Collection       string            `json:"collection"`
	Items            []models.Item     `json:"items"`
	SelectedID       string            `json:"selected_id,omitempty"`
	ZoomedID         string            `json:"zoomed_id,omitempty"`
	Uploading        *Upload           `json:"uploading,omitempty"`
	PendingDeletions []PendingDeletion `json:"pending_deletions"`
	NewlyUploadedID  string            `json:"newly_uploaded_id,omitempty"`
	AutoFocusComment bool              `json:"auto_focus_comment"`
}

// NewState builds the initial state for a collection listing, newest first.
func NewState(collection string, items []models.Item) State {
	s := State{
		Collection:       collection,
		Items:            make([]models.Item, 0, len(items)),
		PendingDeletions: []PendingDeletion{},
	}
	for _, it := range items {
		s.Items = append(s.Items, it.Clone())
	}
	return s
}

// Clone returns a deep copy safe to hand out of the view's lock.
func (s State) Clone() State {
	c := s
	c.Items = make([]models.Item, 0, len(s.Items))
	for _, it := range s.Items {
		c.Items = append(c.Items, it.Clone())
	}
	c.PendingDeletions = make([]PendingDeletion, 0, len(s.PendingDeletions))
	for _, p := range s.PendingDeletions {
		c.PendingDeletions = append(c.PendingDeletions, PendingDeletion{Item: p.Item.Clone(), Index: p.Index})
	}
	if s.Uploading != nil {
		u := *s.Uploading
		c.Uploading = &u
	}
	return c
}

func (s State) IndexOf(id string) int {
	return slices.IndexFunc(s.Items, func(it models.Item) bool { return it.ID == id })
}

func (s State) Item(id string) (models.Item, bool) {
	i := s.IndexOf(id)
	if i < 0 {
		return models.Item{}, false
	}
	return s.Items[i], true
}

// Selected returns the selected item, if it is visible.
func (s State) Selected() (models.Item, bool) {
	if s.SelectedID == "" {
		return models.Item{}, false
	}
	return s.Item(s.SelectedID)
}

func (s State) CanUndo() bool {
	return len(s.PendingDeletions) > 0
}

func (s State) pendingIndex(id string) int {
	return slices.IndexFunc(s.PendingDeletions, func(p PendingDeletion) bool { return p.Item.ID == id })
}

// insertAt places item at min(index, len(items)).
func insertAt(items []models.Item, index int, item models.Item) []models.Item {
	index = max(0, min(index, len(items)))
	return slices.Insert(slices.Clone(items), index, item.Clone())
}
