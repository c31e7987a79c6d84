package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode"

	"inspirations/internal/domain/models"
	"inspirations/internal/storage"
)

const (
	defaultFilename   = "upload.bin"
	maxFilenameLength = 120
)

// MediaStore keeps the binary objects (images, mirrored previews) items point at.
type MediaStore interface {
	PresignUpload(ctx context.Context, filename, contentType string) (models.UploadTarget, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string) (models.StoredObject, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string, limit int) ([]models.ObjectInfo, error)
	PublicURL(key string) string
	KeyFromURL(rawURL string) (string, error)
}

// ObjectKey builds the key an upload is stored under: "<unix millis>-<sanitized name>".
func ObjectKey(filename string, now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), SanitizeFilename(filename))
}

// SanitizeFilename replaces whitespace with dashes and keeps only [A-Za-z0-9._-].
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte('-')
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), ".")
	if len(out) > maxFilenameLength {
		out = out[len(out)-maxFilenameLength:]
	}
	if out == "" {
		return defaultFilename
	}

	return out
}

// PublicURL joins a public base and a key.
func PublicURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}

// KeyFromURL extracts the object key from a URL under base.
// URLs pointing elsewhere return storage.ErrObjectKeyNotOwned.
func KeyFromURL(base, rawURL string) (string, error) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", storage.ErrObjectKeyNotOwned
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", storage.ErrInvalidObjectKey
	}
	u.RawQuery = ""
	u.Fragment = ""

	key, err := url.PathUnescape(strings.TrimPrefix(u.String(), prefix))
	if err != nil {
		return "", storage.ErrInvalidObjectKey
	}
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	return key, nil
}

// ValidateKey rejects keys that are empty or could escape the bucket root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return storage.ErrInvalidObjectKey
	}
	return nil
}
