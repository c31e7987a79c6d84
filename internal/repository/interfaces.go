package repository

import (
	"context"

	"inspirations/internal/domain/models"
)

type ItemRepository interface {
	CreatePost(ctx context.Context, post models.NewPost) (models.Post, error)
	UpdatePostFields(ctx context.Context, id int64, updates map[string]string) (models.Post, error)
	AddCollection(ctx context.Context, id int64, name string) (before, after []string, err error)
	RemoveCollection(ctx context.Context, id int64, name string) (before, after []string, err error)
	DeletePost(ctx context.Context, id int64) (models.Post, error)
	ListByCollection(ctx context.Context, name string) ([]models.Post, error)
	ListUncategorized(ctx context.Context) ([]models.Post, error)
	CollectionSummaries(ctx context.Context) ([]models.CollectionSummary, error)
}

type CacheRepository interface {
	GetCollectionItems(ctx context.Context, name string) ([]models.Item, error)
	SetCollectionItems(ctx context.Context, name string, items []models.Item) error
	GetCollectionIndex(ctx context.Context) ([]models.CollectionSummary, error)
	SetCollectionIndex(ctx context.Context, summaries []models.CollectionSummary) error
	Invalidate(ctx context.Context, collections ...string) error
}
