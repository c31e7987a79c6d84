package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"inspirations/internal/domain/models"
	"inspirations/internal/storage"
)

// LocalFileStorage keeps objects on disk and serves them from the http server.
// Presigned uploads point back at the server's own PUT route and carry an HMAC signature.
type LocalFileStorage struct {
	baseDir    string
	baseURL    string
	secret     []byte
	presignTTL time.Duration
	maxSize    int64
	now        func() time.Time
}

func NewLocalFileStorage(baseDir, baseURL, secret string, presignTTL time.Duration, maxSize int64) (*LocalFileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	return &LocalFileStorage{
		baseDir:    baseDir,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		secret:     []byte(secret),
		presignTTL: presignTTL,
		maxSize:    maxSize,
		now:        time.Now,
	}, nil
}

func (s *LocalFileStorage) PresignUpload(ctx context.Context, filename, contentType string) (models.UploadTarget, error) {
	if err := ctx.Err(); err != nil {
		return models.UploadTarget{}, err
	}

	now := s.now()
	key := ObjectKey(filename, now)
	expires := now.Add(s.presignTTL)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires.Unix(), 10))
	q.Set("signature", s.sign(key, expires.Unix()))

	return models.UploadTarget{
		UploadURL: PublicURL(s.baseURL, key) + "?" + q.Encode(),
		Key:       key,
		PublicURL: PublicURL(s.baseURL, key),
		ExpiresAt: expires,
	}, nil
}

// VerifyUpload checks the signature issued by PresignUpload.
func (s *LocalFileStorage) VerifyUpload(key, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return storage.ErrUploadNotAuthorized
	}
	if s.now().Unix() > exp {
		return fmt.Errorf("upload url expired: %w", storage.ErrUploadNotAuthorized)
	}
	if !hmac.Equal([]byte(s.sign(key, exp)), []byte(signature)) {
		return fmt.Errorf("bad upload signature: %w", storage.ErrUploadNotAuthorized)
	}
	return nil
}

func (s *LocalFileStorage) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *LocalFileStorage) Put(ctx context.Context, key string, body io.Reader, contentType string) (models.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return models.StoredObject{}, err
	}
	if err := ValidateKey(key); err != nil {
		return models.StoredObject{}, err
	}

	filePath := s.GetFullPath(key)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return models.StoredObject{}, fmt.Errorf("failed to create directories: %w", err)
	}

	dst, err := os.Create(filePath)
	if err != nil {
		return models.StoredObject{}, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	done := make(chan struct{})
	var size int64
	var copyErr error

	go func() {
		size, copyErr = io.Copy(dst, io.LimitReader(body, s.maxSize+1))
		close(done)
	}()

	select {
	case <-done:
		if copyErr != nil {
			_ = os.Remove(filePath)
			return models.StoredObject{}, fmt.Errorf("failed to copy file: %w", copyErr)
		}
		if size > s.maxSize {
			_ = os.Remove(filePath)
			return models.StoredObject{}, storage.ErrFileTooLarge
		}
	case <-ctx.Done():
		// unblock the copy and wait for it before removing the file
		if c, ok := body.(io.Closer); ok {
			_ = c.Close()
		}
		_ = dst.Close()
		<-done
		_ = os.Remove(filePath)
		return models.StoredObject{}, ctx.Err()
	}

	return models.StoredObject{
		Key:       key,
		PublicURL: s.PublicURL(key),
		Size:      size,
	}, nil
}

func (s *LocalFileStorage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	err := os.Remove(s.GetFullPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrFileNotFound
	}
	return err
}

// List returns objects whose key starts with prefix, newest first.
func (s *LocalFileStorage) List(ctx context.Context, prefix string, limit int) ([]models.ObjectInfo, error) {
	objects := []models.ObjectInfo{}

	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, models.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	if limit > 0 && len(objects) > limit {
		objects = objects[:limit]
	}

	return objects, nil
}

func (s *LocalFileStorage) PublicURL(key string) string {
	return PublicURL(s.baseURL, key)
}

func (s *LocalFileStorage) KeyFromURL(rawURL string) (string, error) {
	return KeyFromURL(s.baseURL, rawURL)
}

// GetFullPath returns the path of key on disk.
func (s *LocalFileStorage) GetFullPath(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}
