package view

import (
	"slices"

	"inspirations/internal/domain/models"
)

// Reduce returns the state after applying a. It never mutates s.
func Reduce(s State, a Action) State {
	s = s.Clone()

	switch a := a.(type) {
	case Click:
		switch {
		case !s.selectable(a.ID):
		case s.SelectedID != a.ID:
			s.SelectedID = a.ID
			s.ZoomedID = ""
		case s.ZoomedID == a.ID:
			s.ZoomedID = ""
		default:
			s.ZoomedID = a.ID
		}

	case Escape:
		if s.ZoomedID != "" {
			s.ZoomedID = ""
		} else {
			s.SelectedID = ""
		}

	case Blur:
		s.SelectedID = ""
		s.ZoomedID = ""

	case StartUpload:
		u := a.Upload
		s.Uploading = &u
		s.SelectedID = u.TempID
		s.ZoomedID = ""

	case UploadSucceeded:
		if s.Uploading == nil || s.Uploading.TempID != a.TempID {
			return s
		}
		s.Uploading = nil
		if s.IndexOf(a.Item.ID) < 0 {
			s.Items = slices.Insert(s.Items, 0, a.Item.Clone())
		}
		s.SelectedID = a.Item.ID
		s.ZoomedID = ""
		s.NewlyUploadedID = a.Item.ID
		s.AutoFocusComment = true

	case UploadFailed:
		if s.Uploading == nil || s.Uploading.TempID != a.TempID {
			return s
		}
		s.clearUpload()

	case UploadCancelled:
		if s.Uploading != nil {
			s.clearUpload()
		}

	case DeleteRequested:
		i := s.IndexOf(a.ID)
		if i < 0 {
			return s
		}
		s.PendingDeletions = append(s.PendingDeletions, PendingDeletion{Item: s.Items[i], Index: i})
		s.Items = slices.Delete(s.Items, i, i+1)
		s.forget(a.ID)

	case DeleteConfirmed:
		if p := s.pendingIndex(a.ID); p >= 0 {
			s.PendingDeletions = slices.Delete(s.PendingDeletions, p, p+1)
		}
		if i := s.IndexOf(a.ID); i >= 0 {
			s.Items = slices.Delete(s.Items, i, i+1)
		}
		s.forget(a.ID)

	case DeleteFailed:
		p := s.pendingIndex(a.ID)
		if p < 0 {
			return s
		}
		entry := s.PendingDeletions[p]
		s.PendingDeletions = slices.Delete(s.PendingDeletions, p, p+1)
		if s.IndexOf(a.ID) < 0 {
			s.Items = insertAt(s.Items, entry.Index, entry.Item)
		}

	case UndoDelete:
		n := len(s.PendingDeletions)
		if n == 0 {
			return s
		}
		entry := s.PendingDeletions[n-1]
		s.PendingDeletions = s.PendingDeletions[:n-1]
		if s.IndexOf(entry.Item.ID) < 0 {
			s.Items = insertAt(s.Items, entry.Index, entry.Item)
		}

	case UpdateComment:
		s.setText(a.ID, FieldComment, a.Text)

	case UpdateTitle:
		s.setText(a.ID, FieldTitle, a.Text)

	case RevertText:
		s.setText(a.ID, a.Field, a.Value)

	case SetCollections:
		if i := s.IndexOf(a.ID); i >= 0 {
			s.Items[i].Collections = normalizeCollections(a.Collections)
		}

	case HideItem:
		if i := s.IndexOf(a.ID); i >= 0 {
			s.Items = slices.Delete(s.Items, i, i+1)
			s.forget(a.ID)
		}

	case RevertMembership:
		if i := s.IndexOf(a.Item.ID); i >= 0 {
			s.Items[i].Collections = normalizeCollections(a.Item.Collections)
		} else {
			s.Items = insertAt(s.Items, a.Index, a.Item)
		}

	case AutoFocusHandled:
		s.AutoFocusComment = false

	case CommentDone:
		if s.NewlyUploadedID != "" && s.NewlyUploadedID == a.ID {
			s.NewlyUploadedID = ""
			s.SelectedID = ""
			s.ZoomedID = ""
		}

	case CommentCancelled:
		if s.NewlyUploadedID != "" && s.NewlyUploadedID == s.SelectedID {
			s.NewlyUploadedID = ""
			s.SelectedID = ""
			s.ZoomedID = ""
		}
	}

	return s
}

func (s *State) clearUpload() {
	if s.SelectedID == s.Uploading.TempID {
		s.SelectedID = ""
	}
	s.Uploading = nil
}

// forget clears every cursor pointing at id.
func (s *State) forget(id string) {
	if s.SelectedID == id {
		s.SelectedID = ""
	}
	if s.ZoomedID == id {
		s.ZoomedID = ""
	}
	if s.NewlyUploadedID == id {
		s.NewlyUploadedID = ""
		s.AutoFocusComment = false
	}
}

func (s *State) setText(id string, field TextField, value string) {
	i := s.IndexOf(id)
	if i < 0 {
		return
	}
	switch field {
	case FieldComment:
		s.Items[i].Comment = value
	case FieldTitle:
		s.Items[i].Title = value
	}
}

func normalizeCollections(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c != "" && c != models.UncategorizedCollection && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// selectable reports whether id is a visible item or the active temp id.
func (s State) selectable(id string) bool {
	if id == "" {
		return false
	}
	if s.Uploading != nil && s.Uploading.TempID == id {
		return true
	}
	return s.IndexOf(id) >= 0
}
