package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"inspirations/internal/domain/models"
	"inspirations/internal/storage"
	filestorage "inspirations/internal/storage/filestorage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Options configure an S3 compatible bucket such as Cloudflare R2.
type Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
	PresignTTL      time.Duration
}

// S3Client is the subset of the s3 client the store uses.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// PresignFunc returns a URL the client can PUT the object to.
type PresignFunc func(ctx context.Context, in *s3.PutObjectInput, ttl time.Duration) (string, error)

type R2Store struct {
	client     S3Client
	presign    PresignFunc
	bucket     string
	publicURL  string
	presignTTL time.Duration
	now        func() time.Time
}

func New(ctx context.Context, opts Options) (*R2Store, error) {
	const op = "objectstore.New"

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load AWS config: %w", op, err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = true
	})
	presignClient := s3.NewPresignClient(client)

	presign := func(ctx context.Context, in *s3.PutObjectInput, ttl time.Duration) (string, error) {
		req, err := presignClient.PresignPutObject(ctx, in, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	}

	return NewWithClient(client, presign, opts), nil
}

// NewWithClient builds a store around an existing client. A nil presign makes
// PresignUpload fail with storage.ErrPresignUnsupported.
func NewWithClient(client S3Client, presign PresignFunc, opts Options) *R2Store {
	return &R2Store{
		client:     client,
		presign:    presign,
		bucket:     opts.Bucket,
		publicURL:  strings.TrimSuffix(opts.PublicURL, "/"),
		presignTTL: opts.PresignTTL,
		now:        time.Now,
	}
}

func (s *R2Store) PresignUpload(ctx context.Context, filename, contentType string) (models.UploadTarget, error) {
	const op = "objectstore.R2Store.PresignUpload"

	if s.presign == nil {
		return models.UploadTarget{}, fmt.Errorf("%s: %w", op, storage.ErrPresignUnsupported)
	}

	now := s.now()
	key := filestorage.ObjectKey(filename, now)

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	uploadURL, err := s.presign(ctx, in, s.presignTTL)
	if err != nil {
		return models.UploadTarget{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.UploadTarget{
		UploadURL: uploadURL,
		Key:       key,
		PublicURL: s.PublicURL(key),
		ExpiresAt: now.Add(s.presignTTL),
	}, nil
}

func (s *R2Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (models.StoredObject, error) {
	const op = "objectstore.R2Store.Put"

	if err := filestorage.ValidateKey(key); err != nil {
		return models.StoredObject{}, fmt.Errorf("%s: %w", op, err)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return models.StoredObject{}, fmt.Errorf("%s: %w", op, err)
	}

	in := &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return models.StoredObject{}, fmt.Errorf("%s: failed to upload: %w", op, err)
	}

	return models.StoredObject{
		Key:       key,
		PublicURL: s.PublicURL(key),
		Size:      int64(len(data)),
	}, nil
}

func (s *R2Store) Delete(ctx context.Context, key string) error {
	const op = "objectstore.R2Store.Delete"

	if err := filestorage.ValidateKey(key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return fmt.Errorf("%s: %w", op, storage.ErrFileNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// List returns up to limit objects under prefix, newest first.
func (s *R2Store) List(ctx context.Context, prefix string, limit int) ([]models.ObjectInfo, error) {
	const op = "objectstore.R2Store.List"

	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	if limit > 0 {
		in.MaxKeys = aws.Int32(int32(limit))
	}

	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	objects := make([]models.ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		info := models.ObjectInfo{
			Key:  aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
		}
		if obj.LastModified != nil {
			info.LastModified = obj.LastModified.UTC()
		}
		objects = append(objects, info)
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	return objects, nil
}

func (s *R2Store) PublicURL(key string) string {
	return filestorage.PublicURL(s.publicURL, key)
}

func (s *R2Store) KeyFromURL(rawURL string) (string, error) {
	return filestorage.KeyFromURL(s.publicURL, rawURL)
}
