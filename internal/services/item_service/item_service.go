package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"inspirations/internal/domain/models"
	"inspirations/internal/lib/logger/sl"
	"inspirations/internal/metrics"
	"inspirations/internal/repository"
	"inspirations/internal/storage"
	filestorage "inspirations/internal/storage/filestorage"
)

const commentLimit = 100

type TweetResolver interface {
	Resolve(ctx context.Context, urlOrID string) (models.Tweet, error)
}

type LinkPreviewer interface {
	Preview(ctx context.Context, rawURL string) (models.LinkPreview, error)
}

// ItemService is the server side of the gallery: it persists items, keeps the
// listing cache coherent and owns the media objects items point at.
type ItemService struct {
	log    *slog.Logger
	repo   repository.ItemRepository
	cache  repository.CacheRepository
	media  filestorage.MediaStore
	tweets TweetResolver
	links  LinkPreviewer
	now    func() time.Time
}

func NewItemService(
	log *slog.Logger,
	repo repository.ItemRepository,
	cache repository.CacheRepository,
	media filestorage.MediaStore,
	tweets TweetResolver,
	links LinkPreviewer,
) *ItemService {
	return &ItemService{
		log:    log,
		repo:   repo,
		cache:  cache,
		media:  media,
		tweets: tweets,
		links:  links,
		now:    time.Now,
	}
}

// ListCollection returns the items of a collection, newest first. The name
// "uncategorized" lists the items without any collection.
func (s *ItemService) ListCollection(ctx context.Context, name string) ([]models.Item, error) {
	const op = "service.ItemService.ListCollection"

	log := s.log.With(
		slog.String("op", op),
		slog.String("collection", name),
	)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrCollectionMissing)
	}

	items, err := s.cache.GetCollectionItems(ctx, name)
	if err == nil {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return items, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	if !errors.Is(err, storage.ErrCacheMiss) {
		log.Warn("cache read failed", sl.Err(err))
	}

	var posts []models.Post
	if name == models.UncategorizedCollection {
		posts, err = s.repo.ListUncategorized(ctx)
	} else {
		posts, err = s.repo.ListByCollection(ctx, name)
	}
	if err != nil {
		log.Error("failed to list items", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	items = make([]models.Item, 0, len(posts))
	for _, p := range posts {
		items = append(items, p.ToItem())
	}

	if err := s.cache.SetCollectionItems(ctx, name, items); err != nil {
		log.Warn("cache write failed", sl.Err(err))
	}

	return items, nil
}

// Collections returns every collection name with its item count.
func (s *ItemService) Collections(ctx context.Context) ([]models.CollectionSummary, error) {
	const op = "service.ItemService.Collections"

	log := s.log.With(slog.String("op", op))

	summaries, err := s.cache.GetCollectionIndex(ctx)
	if err == nil {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return summaries, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	if !errors.Is(err, storage.ErrCacheMiss) {
		log.Warn("cache read failed", sl.Err(err))
	}

	summaries, err = s.repo.CollectionSummaries(ctx)
	if err != nil {
		log.Error("failed to load collections", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.SetCollectionIndex(ctx, summaries); err != nil {
		log.Warn("cache write failed", sl.Err(err))
	}

	return summaries, nil
}

// UploadURL issues credentials for a direct image upload.
func (s *ItemService) UploadURL(ctx context.Context, filename, contentType string) (models.UploadTarget, error) {
	const op = "service.ItemService.UploadURL"

	log := s.log.With(
		slog.String("op", op),
		slog.String("filename", filename),
	)

	if !isImageType(contentType) {
		return models.UploadTarget{}, fmt.Errorf("%s: %w", op, storage.ErrInvalidFileType)
	}

	target, err := s.media.PresignUpload(ctx, filename, contentType)
	if err != nil {
		log.Error("failed to presign upload", sl.Err(err))
		return models.UploadTarget{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("upload url issued", slog.String("key", target.Key))

	return target, nil
}

// SaveImage registers an uploaded image as a new item.
func (s *ItemService) SaveImage(ctx context.Context, collection, publicURL, filename string) (models.Item, error) {
	return s.AddImage(ctx, collection, publicURL, filename, "")
}

func (s *ItemService) AddImage(ctx context.Context, collection, publicURL, filename, comment string) (models.Item, error) {
	const op = "service.ItemService.AddImage"

	if _, err := s.media.KeyFromURL(publicURL); err != nil {
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}

	return s.create(ctx, op, "image", collection, models.NewPost{
		URL:      filestorage.SanitizeFilename(filename),
		Title:    filename,
		ImageURL: publicURL,
		Comment:  comment,
	})
}

// AddTweet resolves a tweet and stores it. The author becomes the title and
// the start of the text the comment.
func (s *ItemService) AddTweet(ctx context.Context, collection, tweetURL string) (models.Item, error) {
	const op = "service.ItemService.AddTweet"

	tweet, err := s.tweets.Resolve(ctx, tweetURL)
	if err != nil {
		metrics.IngestionsTotal.WithLabelValues("tweet", metrics.OutcomeFailure).Inc()
		s.log.Error("failed to resolve tweet", slog.String("op", op), slog.String("url", tweetURL), sl.Err(err))
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}

	return s.create(ctx, op, "tweet", collection, models.NewPost{
		URL:      tweetURL,
		Title:    tweet.Author.Name,
		ImageURL: tweet.PreviewImage(),
		VideoURL: tweet.PreviewVideo(),
		Comment:  truncateRunes(tweet.Text, commentLimit),
	})
}

// AddLink builds a preview of rawURL, mirrors its image into the media store
// and stores the result.
func (s *ItemService) AddLink(ctx context.Context, collection, rawURL string) (models.Item, error) {
	const op = "service.ItemService.AddLink"

	log := s.log.With(
		slog.String("op", op),
		slog.String("url", rawURL),
	)

	preview, err := s.links.Preview(ctx, rawURL)
	if err != nil {
		metrics.IngestionsTotal.WithLabelValues("url", metrics.OutcomeFailure).Inc()
		log.Error("failed to build link preview", sl.Err(err))
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}

	imageURL := preview.ImageURL
	if preview.Image != nil {
		key := filestorage.ObjectKey(mirrorFilename(preview.Image), s.now())
		stored, err := s.media.Put(ctx, key, bytes.NewReader(preview.Image.Data), preview.Image.ContentType)
		if err != nil {
			log.Warn("failed to mirror preview image, keeping remote url", sl.Err(err))
		} else {
			imageURL = stored.PublicURL
		}
	}

	return s.create(ctx, op, "url", collection, models.NewPost{
		URL:      preview.URL,
		Title:    preview.Title,
		ImageURL: imageURL,
	})
}

func (s *ItemService) create(ctx context.Context, op, kind, collection string, post models.NewPost) (models.Item, error) {
	log := s.log.With(
		slog.String("op", op),
		slog.String("collection", collection),
	)

	collections, err := membershipFor(collection)
	if err != nil {
		metrics.IngestionsTotal.WithLabelValues(kind, metrics.OutcomeFailure).Inc()
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}
	post.Collections = collections

	if err := post.Validate(); err != nil {
		metrics.IngestionsTotal.WithLabelValues(kind, metrics.OutcomeFailure).Inc()
		log.Error("item validation failed", sl.Err(err))
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}

	created, err := s.repo.CreatePost(ctx, post)
	metrics.IngestionsTotal.WithLabelValues(kind, metrics.Outcome(err)).Inc()
	if err != nil {
		log.Error("failed to create item", sl.Err(err))
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, log, models.CollectionTags(created.Collections)...)

	item := created.ToItem()
	log.Info("item created", slog.String("item_id", item.ID), slog.String("kind", kind))

	return item, nil
}

func (s *ItemService) UpdateComment(ctx context.Context, id, comment string) error {
	_, err := s.UpdateFields(ctx, id, map[string]string{"comment": comment})
	return err
}

func (s *ItemService) UpdateTitle(ctx context.Context, id, title string) error {
	_, err := s.UpdateFields(ctx, id, map[string]string{"title": title})
	return err
}

// UpdateFields sets the comment and/or title of an item.
func (s *ItemService) UpdateFields(ctx context.Context, id string, updates map[string]string) (models.Item, error) {
	const op = "service.ItemService.UpdateFields"

	log := s.log.With(
		slog.String("op", op),
		slog.String("item_id", id),
	)

	postID, ok := models.ParseItemID(id)
	if !ok {
		return models.Item{}, fmt.Errorf("%s: %w", op, storage.ErrInvalidItemID)
	}

	if err := models.ValidateUpdates(updates); err != nil {
		log.Warn("update rejected", sl.Err(err))
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}

	updated, err := s.repo.UpdatePostFields(ctx, postID, updates)
	if err != nil {
		log.Error("failed to update item", sl.Err(err))
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, log, models.CollectionTags(updated.Collections)...)

	return updated.ToItem(), nil
}

func (s *ItemService) AddToCollection(ctx context.Context, id, name string) error {
	const op = "service.ItemService.AddToCollection"
	return s.changeMembership(ctx, op, id, name, s.repo.AddCollection)
}

func (s *ItemService) RemoveFromCollection(ctx context.Context, id, name string) error {
	const op = "service.ItemService.RemoveFromCollection"
	return s.changeMembership(ctx, op, id, name, s.repo.RemoveCollection)
}

type membershipChange func(ctx context.Context, id int64, name string) ([]string, []string, error)

func (s *ItemService) changeMembership(ctx context.Context, op, id, name string, change membershipChange) error {
	log := s.log.With(
		slog.String("op", op),
		slog.String("item_id", id),
		slog.String("name", name),
	)

	postID, ok := models.ParseItemID(id)
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrInvalidItemID)
	}
	name, err := collectionName(name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	before, after, err := change(ctx, postID, name)
	if err != nil {
		log.Error("failed to change membership", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, log, models.CollectionTags(before, after)...)

	return nil
}

// DeleteItem removes an item and then, best effort, the media objects it owned.
func (s *ItemService) DeleteItem(ctx context.Context, id string) error {
	const op = "service.ItemService.DeleteItem"

	log := s.log.With(
		slog.String("op", op),
		slog.String("item_id", id),
	)

	postID, ok := models.ParseItemID(id)
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrInvalidItemID)
	}

	deleted, err := s.repo.DeletePost(ctx, postID)
	if err != nil {
		log.Error("failed to delete item", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, log, models.CollectionTags(deleted.Collections)...)

	for _, objectURL := range []string{deleted.ImageURL, deleted.VideoURL} {
		if objectURL == "" {
			continue
		}
		key, err := s.media.KeyFromURL(objectURL)
		if err != nil {
			// foreign urls (tweet media, remote previews) are not ours to delete
			continue
		}
		if err := s.media.Delete(ctx, key); err != nil {
			log.Warn("failed to delete media object", slog.String("key", key), sl.Err(err))
		}
	}

	log.Info("item deleted")

	return nil
}

// ListObjects returns the media store listing, newest first.
func (s *ItemService) ListObjects(ctx context.Context, limit int) ([]models.ObjectInfo, error) {
	const op = "service.ItemService.ListObjects"

	objects, err := s.media.List(ctx, "", limit)
	if err != nil {
		s.log.Error("failed to list media objects", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return objects, nil
}

func (s *ItemService) invalidate(ctx context.Context, log *slog.Logger, tags ...string) {
	err := s.cache.Invalidate(ctx, tags...)
	metrics.CacheInvalidationsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		log.Warn("cache invalidation failed", slog.Any("tags", tags), sl.Err(err))
	}
}

func membershipFor(collection string) ([]string, error) {
	collection = strings.TrimSpace(collection)
	switch collection {
	case "":
		return nil, storage.ErrCollectionMissing
	case models.UncategorizedCollection:
		return []string{}, nil
	}
	return []string{collection}, nil
}

func collectionName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch name {
	case "":
		return "", storage.ErrCollectionMissing
	case models.UncategorizedCollection:
		return "", storage.ErrInvalidCollection
	}
	return name, nil
}

func isImageType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

// mirrorFilename names a downloaded preview image after its source path.
func mirrorFilename(obj *models.RemoteObject) string {
	name := "preview"
	if u, err := url.Parse(obj.SourceURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			name = base
		}
	}
	if path.Ext(name) == "" {
		if exts, _ := mime.ExtensionsByType(obj.ContentType); len(exts) > 0 {
			name += exts[0]
		}
	}
	return name
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
