package dto

import (
	"inspirations/internal/view"

	"github.com/google/uuid"
)

type OpenViewRequest struct {
	Collection string `json:"collection" validate:"required,max=100"`
}

// FileRequest carries a pasted or dropped file. Data is base64 in JSON.
type FileRequest struct {
	Name        string `json:"name" validate:"max=255"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type ViewEventRequest struct {
	Type string       `json:"type" validate:"required"`
	ID   string       `json:"id"`
	Text string       `json:"text"`
	Name string       `json:"name"`
	File *FileRequest `json:"file"`
}

func (r ViewEventRequest) ViewFile() *view.File {
	if r.File == nil {
		return nil
	}
	return &view.File{
		Name:        r.File.Name,
		ContentType: r.File.ContentType,
		Data:        r.File.Data,
	}
}

type PendingDeletionResponse struct {
	Item  ItemResponse `json:"item"`
	Index int          `json:"index"`
}

type ViewResponse struct {
	ViewID           uuid.UUID                 `json:"view_id"`
	Collection       string                    `json:"collection"`
	Items            []ItemResponse            `json:"items"`
	SelectedID       string                    `json:"selected_id,omitempty"`
	ZoomedID         string                    `json:"zoomed_id,omitempty"`
	Uploading        *view.Upload              `json:"uploading,omitempty"`
	PendingDeletions []PendingDeletionResponse `json:"pending_deletions"`
	NewlyUploadedID  string                    `json:"newly_uploaded_id,omitempty"`
	AutoFocusComment bool                      `json:"auto_focus_comment"`
	CanUndo          bool                      `json:"can_undo"`
}

func NewViewResponse(id uuid.UUID, s view.State) ViewResponse {
	pending := make([]PendingDeletionResponse, 0, len(s.PendingDeletions))
	for _, p := range s.PendingDeletions {
		pending = append(pending, PendingDeletionResponse{Item: NewItemResponse(p.Item), Index: p.Index})
	}

	return ViewResponse{
		ViewID:           id,
		Collection:       s.Collection,
		Items:            NewItemListResponse(s.Items),
		SelectedID:       s.SelectedID,
		ZoomedID:         s.ZoomedID,
		Uploading:        s.Uploading,
		PendingDeletions: pending,
		NewlyUploadedID:  s.NewlyUploadedID,
		AutoFocusComment: s.AutoFocusComment,
		CanUndo:          s.CanUndo(),
	}
}
