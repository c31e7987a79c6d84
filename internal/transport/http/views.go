package http

import (
	"log/slog"
	"net/http"
	"slices"

	"inspirations/internal/lib/logger/sl"
	viewsvc "inspirations/internal/services/view_service"
	"inspirations/internal/transport/http/dto"
	"inspirations/internal/transport/http/dto/response"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	SessionName     = "inspirations"
	sessionViewsKey = "views"
	maxSessionViews = 16
)

func sessionViews(sess *sessions.Session) []string {
	ids, _ := sess.Values[sessionViewsKey].([]string)
	return ids
}

// ownsView reports whether the browser session opened the view.
func ownsView(c echo.Context, id uuid.UUID) bool {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return false
	}
	return slices.Contains(sessionViews(sess), id.String())
}

func saveSessionViews(c echo.Context, update func([]string) []string) error {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	ids := update(sessionViews(sess))
	if len(ids) > maxSessionViews {
		ids = ids[len(ids)-maxSessionViews:]
	}
	sess.Values[sessionViewsKey] = ids
	return sess.Save(c.Request(), c.Response())
}

// viewID parses the :view_id param of a view owned by the caller's session.
func viewID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("view_id"))
	if err != nil || !ownsView(c, id) {
		return uuid.Nil, false
	}
	return id, true
}

// OpenView starts a view over a collection and binds it to the session.
func (r *Routers) OpenView(c echo.Context) error {
	const op = "http.routers.OpenView"

	var req dto.OpenViewRequest
	if errResp := bind(c, &req); errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}

	id, state, err := r.ViewService.Open(c.Request().Context(), req.Collection)
	if err != nil {
		return r.fail(c, op, err)
	}

	err = saveSessionViews(c, func(ids []string) []string {
		return append(ids, id.String())
	})
	if err != nil {
		_ = r.ViewService.Close(id)
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(dto.NewViewResponse(id, state)))
}

func (r *Routers) GetView(c echo.Context) error {
	const op = "http.routers.GetView"

	id, ok := viewID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, response.ErrNotFound)
	}

	state, err := r.ViewService.State(id)
	if err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.NewViewResponse(id, state)))
}

// CloseView stops the view's timers. Deletes still in their grace period are dropped.
func (r *Routers) CloseView(c echo.Context) error {
	const op = "http.routers.CloseView"

	id, ok := viewID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, response.ErrNotFound)
	}

	if err := r.ViewService.Close(id); err != nil {
		return r.fail(c, op, err)
	}

	err := saveSessionViews(c, func(ids []string) []string {
		return slices.DeleteFunc(ids, func(s string) bool { return s == id.String() })
	})
	if err != nil {
		r.log.Warn("failed to update session", slog.String("op", op), sl.Err(err))
	}

	return c.JSON(http.StatusOK, response.MessageResponse("view closed"))
}

// ViewEvent applies a user event to the view and returns the new state.
func (r *Routers) ViewEvent(c echo.Context) error {
	const op = "http.routers.ViewEvent"

	id, ok := viewID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, response.ErrNotFound)
	}

	var req dto.ViewEventRequest
	if errResp := bind(c, &req); errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}

	state, err := r.ViewService.Dispatch(id, viewsvc.Event{
		Type: req.Type,
		ID:   req.ID,
		Text: req.Text,
		Name: req.Name,
		File: req.ViewFile(),
	})
	if err != nil {
		return r.fail(c, op, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.NewViewResponse(id, state)))
}
