package dto

import (
	"inspirations/internal/domain/models"
)

type PresignRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required"`
}

type AddImageRequest struct {
	PublicURL string `json:"public_url" validate:"required,url"`
	Filename  string `json:"filename" validate:"required,max=255"`
	Comment   string `json:"comment" validate:"max=5000"`
}

// AddURLRequest is the body of both tweet and link ingestion.
type AddURLRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

type UpdateItemRequest struct {
	Collection string  `json:"collection"`
	Comment    *string `json:"comment" validate:"omitempty,max=5000"`
	Title      *string `json:"title" validate:"omitempty,max=500"`
}

// Updates returns the fields set in the request.
func (r UpdateItemRequest) Updates() map[string]string {
	updates := make(map[string]string, 2)
	if r.Comment != nil {
		updates["comment"] = *r.Comment
	}
	if r.Title != nil {
		updates["title"] = *r.Title
	}
	return updates
}

type CollectionRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type ItemResponse struct {
	ID          string   `json:"id"`
	ImageURL    string   `json:"image_url"`
	VideoURL    string   `json:"video_url,omitempty"`
	Title       string   `json:"title"`
	Comment     string   `json:"comment,omitempty"`
	OriginalURL string   `json:"original_url,omitempty"`
	Collections []string `json:"collections"`
	DateCreated string   `json:"date_created"`
}

func NewItemResponse(item models.Item) ItemResponse {
	collections := item.Collections
	if collections == nil {
		collections = []string{}
	}

	return ItemResponse{
		ID:          item.ID,
		ImageURL:    item.MediaURL,
		VideoURL:    item.VideoURL,
		Title:       item.Title,
		Comment:     item.Comment,
		OriginalURL: item.OriginalURL,
		Collections: collections,
		DateCreated: item.DateCreated(),
	}
}

func NewItemListResponse(items []models.Item) []ItemResponse {
	out := make([]ItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, NewItemResponse(it))
	}
	return out
}

type ObjectListResponse struct {
	Objects []models.ObjectInfo `json:"objects"`
	Count   int                 `json:"count"`
}
