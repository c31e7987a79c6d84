package http

import (
	"net/http"

	filestorage "inspirations/internal/storage/filestorage"
	"inspirations/internal/transport/http/dto/response"

	"github.com/labstack/echo/v4"
)

// UploadLocalMedia is the upload target issued by the local media store.
func (r *Routers) UploadLocalMedia(c echo.Context) error {
	const op = "http.routers.UploadLocalMedia"

	if r.LocalMedia == nil {
		return c.JSON(http.StatusNotFound, response.ErrNotFound)
	}

	key := c.Param("*")
	if err := filestorage.ValidateKey(key); err != nil {
		return r.fail(c, op, err)
	}

	if err := r.LocalMedia.VerifyUpload(key, c.QueryParam("expires"), c.QueryParam("signature")); err != nil {
		return r.fail(c, op, err)
	}

	stored, err := r.LocalMedia.Put(c.Request().Context(), key, c.Request().Body, c.Request().Header.Get(echo.HeaderContentType))
	if err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(stored))
}

// ServeLocalMedia serves objects of the local media store.
func (r *Routers) ServeLocalMedia(c echo.Context) error {
	const op = "http.routers.ServeLocalMedia"

	if r.LocalMedia == nil {
		return c.JSON(http.StatusNotFound, response.ErrNotFound)
	}

	key := c.Param("*")
	if err := filestorage.ValidateKey(key); err != nil {
		return r.fail(c, op, err)
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	return c.File(r.LocalMedia.GetFullPath(key))
}
