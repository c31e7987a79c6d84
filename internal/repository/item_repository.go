package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"inspirations/internal/domain/models"
	"inspirations/internal/storage"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lib/pq"
)

const postsTable = "posts"

var postColumns = []string{
	"id",
	"collections",
	"url",
	"title",
	"image_url",
	"video_url",
	"comment",
	"created_at",
	"updated_at",
}

type ItemRepo struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

func NewItemRepository(db *pgxpool.Pool) *ItemRepo {
	return &ItemRepo{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (models.Post, error) {
	var p models.Post
	err := row.Scan(
		&p.ID,
		&p.Collections,
		&p.URL,
		&p.Title,
		&p.ImageURL,
		&p.VideoURL,
		&p.Comment,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if p.Collections == nil {
		p.Collections = []string{}
	}

	return p, err
}

// CreatePost inserts a row and returns it as stored.
func (r *ItemRepo) CreatePost(ctx context.Context, post models.NewPost) (models.Post, error) {
	const op = "repository.ItemRepo.CreatePost"

	collections := post.Collections
	if collections == nil {
		collections = []string{}
	}

	query, args, err := r.sb.Insert(postsTable).
		Columns(
			"collections",
			"url",
			"title",
			"image_url",
			"video_url",
			"comment",
		).
		Values(
			pq.Array(collections),
			post.URL,
			post.Title,
			post.ImageURL,
			post.VideoURL,
			post.Comment,
		).
		Suffix("RETURNING " + columnList()).
		ToSql()
	if err != nil {
		return models.Post{}, fmt.Errorf("%s: %w", op, err)
	}

	created, err := scanPost(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Post{}, fmt.Errorf("%s: %w", op, err)
	}

	return created, nil
}

// UpdatePostFields sets text columns on a row. Only "comment" and "title" are accepted.
func (r *ItemRepo) UpdatePostFields(ctx context.Context, id int64, updates map[string]string) (models.Post, error) {
	const op = "repository.ItemRepo.UpdatePostFields"

	if len(updates) == 0 {
		return models.Post{}, fmt.Errorf("%s: no fields to update", op)
	}

	builder := r.sb.Update(postsTable)
	for field, value := range updates {
		switch field {
		case "comment", "title":
			builder = builder.Set(field, value)
		default:
			return models.Post{}, fmt.Errorf("%s: field %q can't be updated", op, field)
		}
	}

	query, args, err := builder.
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + columnList()).
		ToSql()
	if err != nil {
		return models.Post{}, fmt.Errorf("%s: %w", op, err)
	}

	updated, err := scanPost(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, fmt.Errorf("%s: %w", op, storage.ErrItemNotFound)
		}
		return models.Post{}, fmt.Errorf("%s: %w", op, err)
	}

	return updated, nil
}

// AddCollection adds name to the row's membership. It returns the membership
// before and after the change; adding an existing member changes nothing.
func (r *ItemRepo) AddCollection(ctx context.Context, id int64, name string) ([]string, []string, error) {
	const op = "repository.ItemRepo.AddCollection"

	return r.changeMembership(ctx, op, id, func(current []string) []string {
		if slices.Contains(current, name) {
			return current
		}
		return append(slices.Clone(current), name)
	})
}

// RemoveCollection drops name from the row's membership.
func (r *ItemRepo) RemoveCollection(ctx context.Context, id int64, name string) ([]string, []string, error) {
	const op = "repository.ItemRepo.RemoveCollection"

	return r.changeMembership(ctx, op, id, func(current []string) []string {
		return slices.DeleteFunc(slices.Clone(current), func(c string) bool { return c == name })
	})
}

func (r *ItemRepo) changeMembership(ctx context.Context, op string, id int64, change func([]string) []string) ([]string, []string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer tx.Rollback(ctx)

	var before []string
	err = tx.QueryRow(ctx,
		`SELECT collections FROM posts WHERE id = $1 FOR UPDATE`,
		id).Scan(&before)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%s: %w", op, storage.ErrItemNotFound)
		}
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if before == nil {
		before = []string{}
	}

	after := change(before)
	if slices.Equal(before, after) {
		return before, after, nil
	}

	query, args, err := r.sb.Update(postsTable).
		Set("collections", pq.Array(after)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("%s failed to commit transaction: %w", op, err)
	}

	return before, after, nil
}

// DeletePost removes a row and returns what was deleted so blobs can be cleaned up.
func (r *ItemRepo) DeletePost(ctx context.Context, id int64) (models.Post, error) {
	const op = "repository.ItemRepo.DeletePost"

	query, args, err := r.sb.Delete(postsTable).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + columnList()).
		ToSql()
	if err != nil {
		return models.Post{}, fmt.Errorf("%s: %w", op, err)
	}

	deleted, err := scanPost(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, fmt.Errorf("%s: %w", op, storage.ErrItemNotFound)
		}
		return models.Post{}, fmt.Errorf("%s: %w", op, err)
	}

	return deleted, nil
}

// ListByCollection returns the rows tagged with name, newest first.
func (r *ItemRepo) ListByCollection(ctx context.Context, name string) ([]models.Post, error) {
	const op = "repository.ItemRepo.ListByCollection"

	if name == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrCollectionMissing)
	}

	return r.list(ctx, op, r.sb.Select(postColumns...).
		From(postsTable).
		Where("collections @> ?", pq.Array([]string{name})))
}

// ListUncategorized returns the rows without any collection, newest first.
func (r *ItemRepo) ListUncategorized(ctx context.Context) ([]models.Post, error) {
	const op = "repository.ItemRepo.ListUncategorized"

	return r.list(ctx, op, r.sb.Select(postColumns...).
		From(postsTable).
		Where("COALESCE(array_length(collections, 1), 0) = 0"))
}

func (r *ItemRepo) list(ctx context.Context, op string, builder squirrel.SelectBuilder) ([]models.Post, error) {
	query, args, err := builder.OrderBy("created_at DESC", "id DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: row scanning failed: %w", op, err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration error: %w", op, err)
	}

	return posts, nil
}

// CollectionSummaries returns every distinct collection name with its item count.
func (r *ItemRepo) CollectionSummaries(ctx context.Context) ([]models.CollectionSummary, error) {
	const op = "repository.ItemRepo.CollectionSummaries"

	query, args, err := r.sb.Select("c.name", "COUNT(*)").
		From("posts, unnest(posts.collections) AS c(name)").
		GroupBy("c.name").
		OrderBy("c.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	summaries := []models.CollectionSummary{}
	for rows.Next() {
		var s models.CollectionSummary
		if err := rows.Scan(&s.Name, &s.Count); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return summaries, nil
}

func columnList() string {
	return strings.Join(postColumns, ", ")
}
