package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"inspirations/internal/domain/models"
	"inspirations/internal/storage"
	redisapp "inspirations/internal/storage/redis"

	"github.com/redis/go-redis/v9"
)

const collectionIndexKey = "all-collection-slugs"

type RedisCacheRepo struct {
	Client *redisapp.Client
	ttl    time.Duration
}

func NewRedisCacheRepo(client *redisapp.Client, ttl time.Duration) *RedisCacheRepo {
	return &RedisCacheRepo{Client: client, ttl: ttl}
}

// GetCollectionItems returns the cached listing for a collection or storage.ErrCacheMiss.
func (r *RedisCacheRepo) GetCollectionItems(ctx context.Context, name string) ([]models.Item, error) {
	const op = "repository.RedisCacheRepo.GetCollectionItems"

	var items []models.Item
	if err := r.getJSON(ctx, collectionKey(name), &items); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return items, nil
}

func (r *RedisCacheRepo) SetCollectionItems(ctx context.Context, name string, items []models.Item) error {
	const op = "repository.RedisCacheRepo.SetCollectionItems"

	if err := r.setJSON(ctx, collectionKey(name), items); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisCacheRepo) GetCollectionIndex(ctx context.Context) ([]models.CollectionSummary, error) {
	const op = "repository.RedisCacheRepo.GetCollectionIndex"

	var summaries []models.CollectionSummary
	if err := r.getJSON(ctx, collectionIndexKey, &summaries); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return summaries, nil
}

func (r *RedisCacheRepo) SetCollectionIndex(ctx context.Context, summaries []models.CollectionSummary) error {
	const op = "repository.RedisCacheRepo.SetCollectionIndex"

	if err := r.setJSON(ctx, collectionIndexKey, summaries); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Invalidate drops the listings of the given collections together with the collection index.
func (r *RedisCacheRepo) Invalidate(ctx context.Context, collections ...string) error {
	keys := make([]string, 0, len(collections)+1)
	for _, c := range collections {
		keys = append(keys, collectionKey(c))
	}
	keys = append(keys, collectionIndexKey)

	return r.Client.Del(ctx, keys...).Err()
}

func (r *RedisCacheRepo) getJSON(ctx context.Context, key string, dst any) error {
	val, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return storage.ErrCacheMiss
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(val, dst)
}

func (r *RedisCacheRepo) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return r.Client.Set(ctx, key, data, r.ttl).Err()
}

func collectionKey(name string) string {
	return "collection:" + name
}
