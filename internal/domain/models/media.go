package models

import "time"

// UploadTarget is issued to a client before it transfers bytes to the media store.
type UploadTarget struct {
	UploadURL string    `json:"upload_url"`
	Key       string    `json:"key"`
	PublicURL string    `json:"public_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoredObject is the result of a server side upload.
type StoredObject struct {
	Key       string `json:"key"`
	PublicURL string `json:"public_url"`
	Size      int64  `json:"size"`
}

// ObjectInfo describes one object in the bucket listing.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Tweet is the normalized form of a social post.
type Tweet struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	ImageURLs []string `json:"image_urls"`
	VideoURLs []string `json:"video_urls"`
	Author    Author   `json:"author"`
	CreatedAt string   `json:"created_at"`
	Likes     int      `json:"likes"`
	Replies   int      `json:"replies"`
}

// Author of a tweet.
type Author struct {
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

// PreviewImage returns the first photo, falling back to the author's avatar.
func (t Tweet) PreviewImage() string {
	if len(t.ImageURLs) > 0 {
		return t.ImageURLs[0]
	}
	return t.Author.ProfileImageURL
}

// PreviewVideo returns the first video, if any.
func (t Tweet) PreviewVideo() string {
	if len(t.VideoURLs) > 0 {
		return t.VideoURLs[0]
	}
	return ""
}

// LinkPreview is the normalized Open Graph data for a page.
type LinkPreview struct {
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	ImageURL    string        `json:"image_url"`
	Image       *RemoteObject `json:"-"`
}

// RemoteObject holds bytes downloaded from a third party.
type RemoteObject struct {
	SourceURL   string
	ContentType string
	Data        []byte
}
