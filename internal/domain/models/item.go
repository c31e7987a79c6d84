package models

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// UncategorizedCollection is the pseudo collection holding items without membership.
const UncategorizedCollection = "uncategorized"

const dateLayout = "Jan 2, 2006"

const (
	MaxTitleLength   = 500
	MaxCommentLength = 5000
)

// Item is one collectible unit: an uploaded image, a tweet or a link preview.
type Item struct {
	ID          string    `json:"id"`
	MediaURL    string    `json:"image_url"`
	VideoURL    string    `json:"video_url,omitempty"`
	Title       string    `json:"title"`
	Comment     string    `json:"comment,omitempty"`
	OriginalURL string    `json:"original_url,omitempty"`
	Collections []string  `json:"collections"`
	CreatedAt   time.Time `json:"created_at"`
}

// Post is the stored row behind an Item.
type Post struct {
	ID          int64     `db:"id"`
	Collections []string  `db:"collections"`
	URL         string    `db:"url"`
	Title       string    `db:"title"`
	ImageURL    string    `db:"image_url"`
	VideoURL    string    `db:"video_url"`
	Comment     string    `db:"comment"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// NewPost is the input for creating a row.
type NewPost struct {
	Collections []string
	URL         string
	Title       string
	ImageURL    string
	VideoURL    string
	Comment     string
}

// ToItem maps a stored row to the item shown in a view.
// Rows whose url is a bare filename were uploads and carry no original url.
func (p Post) ToItem() Item {
	item := Item{
		ID:          strconv.FormatInt(p.ID, 10),
		MediaURL:    p.ImageURL,
		VideoURL:    p.VideoURL,
		Title:       p.Title,
		Comment:     p.Comment,
		Collections: slices.Clone(p.Collections),
		CreatedAt:   p.CreatedAt,
	}
	if item.Title == "" {
		item.Title = p.URL
	}
	if item.Collections == nil {
		item.Collections = []string{}
	}
	if IsRemoteURL(p.URL) {
		item.OriginalURL = p.URL
	}

	return item
}

// DateCreated formats the creation time for display.
func (i Item) DateCreated() string {
	if i.CreatedAt.IsZero() {
		return ""
	}
	return i.CreatedAt.Format(dateLayout)
}

// InCollection reports whether the item is visible in the named collection view.
func (i Item) InCollection(name string) bool {
	if name == UncategorizedCollection {
		return len(i.Collections) == 0
	}
	return slices.Contains(i.Collections, name)
}

// Clone returns a copy that shares no slices with i.
func (i Item) Clone() Item {
	c := i
	c.Collections = slices.Clone(i.Collections)
	if c.Collections == nil {
		c.Collections = []string{}
	}
	return c
}

// IsRemoteURL reports whether s is an absolute http(s) URL.
func IsRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ParseItemID converts a persisted item id. Temporary ids are rejected.
func ParseItemID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// CollectionTags returns the cache tags touched by a write to an item with the given membership.
func CollectionTags(collections ...[]string) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, set := range collections {
		if len(set) == 0 {
			set = []string{UncategorizedCollection}
		}
		for _, c := range set {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			tags = append(tags, c)
		}
	}

	return tags
}

// CollectionSummary is one row of the collection index.
type CollectionSummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Validate checks the fields the store requires.
func (p NewPost) Validate() error {
	var validationErrors []string

	if p.URL == "" {
		validationErrors = append(validationErrors, "url is required")
	}
	if p.ImageURL == "" {
		validationErrors = append(validationErrors, "image url is required")
	}
	validationErrors = append(validationErrors, textErrors(p.Title, p.Comment)...)
	for _, c := range p.Collections {
		if c == "" || c == UncategorizedCollection {
			validationErrors = append(validationErrors, fmt.Sprintf("invalid collection name %q", c))
		}
	}

	if len(validationErrors) > 0 {
		return &ItemValidationError{Errors: validationErrors}
	}

	return nil
}

// ValidateUpdates checks a comment/title update before it reaches the store.
func ValidateUpdates(updates map[string]string) error {
	var validationErrors []string

	if len(updates) == 0 {
		validationErrors = append(validationErrors, "comment or title is required")
	}
	for field, value := range updates {
		switch field {
		case "title":
			validationErrors = append(validationErrors, textErrors(value, "")...)
		case "comment":
			validationErrors = append(validationErrors, textErrors("", value)...)
		default:
			validationErrors = append(validationErrors, fmt.Sprintf("field %q can't be updated", field))
		}
	}

	if len(validationErrors) > 0 {
		slices.Sort(validationErrors)
		return &ItemValidationError{Errors: validationErrors}
	}

	return nil
}

func textErrors(title, comment string) []string {
	var out []string
	if utf8.RuneCountInString(title) > MaxTitleLength {
		out = append(out, fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		out = append(out, fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}
	return out
}

// ItemValidationError collects every problem found in a NewPost or an update.
type ItemValidationError struct {
	Errors []string
}

func (e *ItemValidationError) Error() string {
	return fmt.Sprintf("item validation failed: %s", strings.Join(e.Errors, "; "))
}

// IsItemValidationError reports whether err is an ItemValidationError.
func IsItemValidationError(err error) bool {
	var target *ItemValidationError
	return errors.As(err, &target)
}
