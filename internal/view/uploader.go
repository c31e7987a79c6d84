package view

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPUploader transfers bytes to a presigned upload URL.
type HTTPUploader struct {
	client *http.Client
}

func NewHTTPUploader(client *http.Client) *HTTPUploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPUploader{client: client}
}

func (u *HTTPUploader) Upload(ctx context.Context, uploadURL string, data []byte, contentType string) error {
	const op = "view.HTTPUploader.Upload"

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = int64(len(data))

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: upload rejected with status %d", op, resp.StatusCode)
	}

	return nil
}
