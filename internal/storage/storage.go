package storage

import "errors"

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrInvalidItemID     = errors.New("invalid item id")
	ErrCollectionMissing = errors.New("collection name is required")
	ErrInvalidCollection = errors.New("invalid collection name")
	ErrCacheMiss         = errors.New("cache miss")
)

var (
	ErrFileTooLarge        = errors.New("file size exceeds limit")
	ErrInvalidFileType     = errors.New("invalid file type")
	ErrFileNotFound        = errors.New("file not found")
	ErrObjectKeyNotOwned   = errors.New("url does not belong to the media store")
	ErrInvalidObjectKey    = errors.New("invalid object key")
	ErrPresignUnsupported  = errors.New("presigned uploads are not supported by this driver")
	ErrUploadNotAuthorized = errors.New("upload url is invalid or expired")
)
