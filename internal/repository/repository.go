package repository

import (
	"time"

	redisapp "inspirations/internal/storage/redis"

	"github.com/jackc/pgx/v4/pgxpool"
)

type Repository struct {
	Item  ItemRepository
	Cache CacheRepository
}

func NewRepository(db *pgxpool.Pool, client *redisapp.Client, cacheTTL time.Duration) *Repository {
	return &Repository{
		Item:  NewItemRepository(db),
		Cache: NewRedisCacheRepo(client, cacheTTL),
	}
}
