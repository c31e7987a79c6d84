package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"inspirations/internal/domain/models"
	"inspirations/internal/lib/logger/sl"
	"inspirations/internal/scrape/linkpreview"
	"inspirations/internal/scrape/netguard"
	"inspirations/internal/scrape/twitter"
	viewsvc "inspirations/internal/services/view_service"
	"inspirations/internal/storage"
	"inspirations/internal/transport/http/dto"
	"inspirations/internal/transport/http/dto/response"
	"inspirations/internal/view"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const defaultObjectLimit = 1000

type ItemService interface {
	Collections(ctx context.Context) ([]models.CollectionSummary, error)
	ListCollection(ctx context.Context, name string) ([]models.Item, error)
	UploadURL(ctx context.Context, filename, contentType string) (models.UploadTarget, error)
	ListObjects(ctx context.Context, limit int) ([]models.ObjectInfo, error)
	AddImage(ctx context.Context, collection, publicURL, filename, comment string) (models.Item, error)
	AddTweet(ctx context.Context, collection, tweetURL string) (models.Item, error)
	AddLink(ctx context.Context, collection, rawURL string) (models.Item, error)
	UpdateFields(ctx context.Context, id string, updates map[string]string) (models.Item, error)
	AddToCollection(ctx context.Context, id, name string) error
	RemoveFromCollection(ctx context.Context, id, name string) error
	DeleteItem(ctx context.Context, id string) error
}

type ViewService interface {
	Open(ctx context.Context, collection string) (uuid.UUID, view.State, error)
	State(id uuid.UUID) (view.State, error)
	Close(id uuid.UUID) error
	Dispatch(id uuid.UUID, ev viewsvc.Event) (view.State, error)
}

// LocalMedia is the disk backed media store. It is nil when objects live in a bucket.
type LocalMedia interface {
	VerifyUpload(key, expires, signature string) error
	Put(ctx context.Context, key string, body io.Reader, contentType string) (models.StoredObject, error)
	GetFullPath(key string) string
}

type Routers struct {
	log         *slog.Logger
	ItemService ItemService
	ViewService ViewService
	LocalMedia  LocalMedia
}

func NewRouter(log *slog.Logger, itemService ItemService, viewService ViewService, localMedia LocalMedia) *Routers {
	return &Routers{
		log:         log,
		ItemService: itemService,
		ViewService: viewService,
		LocalMedia:  localMedia,
	}
}

// ListCollections returns every collection with its item count.
func (r *Routers) ListCollections(c echo.Context) error {
	const op = "http.routers.ListCollections"

	summaries, err := r.ItemService.Collections(c.Request().Context())
	if err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(summaries))
}

// ListItems returns the items of a collection, newest first.
func (r *Routers) ListItems(c echo.Context) error {
	const op = "http.routers.ListItems"

	items, err := r.ItemService.ListCollection(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.NewItemListResponse(items)))
}

// PresignUpload issues the credentials for a direct image upload.
func (r *Routers) PresignUpload(c echo.Context) error {
	const op = "http.routers.PresignUpload"

	var req dto.PresignRequest
	if errResp := bind(c, &req); errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}

	target, err := r.ItemService.UploadURL(c.Request().Context(), req.Filename, req.ContentType)
	if err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(target))
}

// ListObjects returns the media store listing.
func (r *Routers) ListObjects(c echo.Context) error {
	const op = "http.routers.ListObjects"

	limit := defaultObjectLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", "limit must be a positive integer"))
		}
		limit = n
	}

	objects, err := r.ItemService.ListObjects(c.Request().Context(), limit)
	if err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.ObjectListResponse{
		Objects: objects,
		Count:   len(objects),
	}))
}

func (r *Routers) AddImage(c echo.Context) error {
	const op = "http.routers.AddImage"

	var req dto.AddImageRequest
	if errResp := bind(c, &req); errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}

	item, err := r.ItemService.AddImage(c.Request().Context(), c.Param("slug"), req.PublicURL, req.Filename, req.Comment)
	if err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(dto.NewItemResponse(item)))
}

func (r *Routers) AddTweet(c echo.Context) error {
	const op = "http.routers.AddTweet"

	var req dto.AddURLRequest
	if errResp := bind(c, &req); errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}
	if !twitter.IsTweetURL(req.URL) {
		return c.JSON(http.StatusBadRequest, response.ErrorWithCause(response.ErrInvalidRequestFormat, twitter.ErrInvalidTweetURL))
	}

	item, err := r.ItemService.AddTweet(c.Request().Context(), c.Param("slug"), req.URL)
	if err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(dto.NewItemResponse(item)))
}

func (r *Routers) AddLink(c echo.Context) error {
	const op = "http.routers.AddLink"

	var req dto.AddURLRequest
	if errResp := bind(c, &req); errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}

	item, err := r.ItemService.AddLink(c.Request().Context(), c.Param("slug"), req.URL)
	if err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(dto.NewItemResponse(item)))
}

// UpdateItem sets the comment and/or title of an item.
func (r *Routers) UpdateItem(c echo.Context) error {
	const op = "http.routers.UpdateItem"

	var req dto.UpdateItemRequest
	if errResp := bind(c, &req); errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}

	updates := req.Updates()
	if len(updates) == 0 {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", "comment or title is required"))
	}

	item, err := r.ItemService.UpdateFields(c.Request().Context(), c.Param("id"), updates)
	if err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.NewItemResponse(item)))
}

func (r *Routers) AddItemCollection(c echo.Context) error {
	const op = "http.routers.AddItemCollection"

	var req dto.CollectionRequest
	if errResp := bind(c, &req); errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}

	if err := r.ItemService.AddToCollection(c.Request().Context(), c.Param("id"), req.Name); err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusOK, response.MessageResponse("collection added"))
}

func (r *Routers) RemoveItemCollection(c echo.Context) error {
	const op = "http.routers.RemoveItemCollection"

	if err := r.ItemService.RemoveFromCollection(c.Request().Context(), c.Param("id"), c.Param("name")); err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusOK, response.MessageResponse("collection removed"))
}

func (r *Routers) DeleteItem(c echo.Context) error {
	const op = "http.routers.DeleteItem"

	if err := r.ItemService.DeleteItem(c.Request().Context(), c.Param("id")); err != nil {
		return r.fail(c, op, err)
	}

	r.log.Info("item deleted",
		slog.String("op", op),
		slog.String("item_id", c.Param("id")),
		slog.String("collection", c.QueryParam("collection")),
	)

	return c.JSON(http.StatusOK, response.MessageResponse("item deleted"))
}

// bind decodes and validates the request body.
func bind(c echo.Context, req interface{}) *response.ErrorResponse {
	if err := c.Bind(req); err != nil {
		errResp := response.ErrInvalidRequestFormat
		return &errResp
	}

	if err := c.Validate(req); err != nil {
		errResp := response.ErrorWithCause(response.ErrInvalidRequestFormat, err)
		return &errResp
	}

	return nil
}

// fail maps a service error to a status code and writes it.
func (r *Routers) fail(c echo.Context, op string, err error) error {
	status, body := errorStatus(err)

	log := r.log.With(slog.String("op", op))
	if status >= http.StatusInternalServerError {
		log.Error("request failed", sl.Err(err))
	} else {
		log.Warn("request rejected", sl.Err(err))
	}

	return c.JSON(status, body)
}

func errorStatus(err error) (int, response.ErrorResponse) {
	switch {
	case errors.Is(err, storage.ErrItemNotFound),
		errors.Is(err, storage.ErrFileNotFound),
		errors.Is(err, twitter.ErrTweetNotFound),
		errors.Is(err, viewsvc.ErrViewNotFound):
		return http.StatusNotFound, response.ErrorWithCause(response.ErrNotFound, err)

	case errors.Is(err, storage.ErrInvalidItemID),
		errors.Is(err, storage.ErrCollectionMissing),
		errors.Is(err, storage.ErrInvalidCollection),
		errors.Is(err, storage.ErrInvalidFileType),
		errors.Is(err, storage.ErrObjectKeyNotOwned),
		errors.Is(err, storage.ErrInvalidObjectKey),
		errors.Is(err, twitter.ErrInvalidTweetURL),
		errors.Is(err, netguard.ErrInvalidURL),
		errors.Is(err, netguard.ErrDisallowedHost),
		errors.Is(err, viewsvc.ErrUnknownEvent),
		models.IsItemValidationError(err):
		return http.StatusBadRequest, response.ErrorWithCause(response.ErrInvalidRequestFormat, err)

	case errors.Is(err, storage.ErrUploadNotAuthorized):
		return http.StatusForbidden, response.ErrUnauthorizedUpload

	case errors.Is(err, storage.ErrFileTooLarge), errors.Is(err, linkpreview.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, response.ErrPayloadTooLarge

	case errors.Is(err, linkpreview.ErrNoPreviewImage):
		return http.StatusUnprocessableEntity, response.ErrNoPreview

	case errors.Is(err, view.ErrClosed):
		return http.StatusGone, response.ErrViewClosed
	}

	return http.StatusInternalServerError, response.ErrInternal
}
