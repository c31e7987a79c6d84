package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"inspirations/internal/domain/models"
	"inspirations/internal/lib/logger/sl"
	"inspirations/internal/metrics"
	"inspirations/internal/view"

	"github.com/google/uuid"
)

var (
	ErrViewNotFound = errors.New("view not found")
	ErrUnknownEvent = errors.New("unknown event type")
)

// Event types accepted by Dispatch.
const (
	EventClick            = "click"
	EventEscape           = "escape"
	EventBlur             = "blur"
	EventUndo             = "undo"
	EventPaste            = "paste"
	EventDrop             = "drop"
	EventCancelUpload     = "cancel_upload"
	EventDelete           = "delete"
	EventDeleteNow        = "delete_now"
	EventComment          = "comment"
	EventCommentCancel    = "comment_cancel"
	EventTitle            = "title"
	EventAutoFocusHandled = "auto_focus_handled"
	EventAddCollection    = "add_collection"
	EventRemoveCollection = "remove_collection"
)

// Event is one user input addressed to an open view.
type Event struct {
	Type string
	ID   string
	Text string
	Name string
	File *view.File
}

type ItemLister interface {
	ListCollection(ctx context.Context, name string) ([]models.Item, error)
}

// ViewService keeps the open collection views and closes the idle ones.
type ViewService struct {
	log      *slog.Logger
	lister   ItemLister
	backend  view.Backend
	uploader view.Uploader
	opts     view.Options
	idleTTL  time.Duration
	now      func() time.Time

	mu    sync.Mutex
	views map[uuid.UUID]*view.View
}

func NewViewService(
	log *slog.Logger,
	lister ItemLister,
	backend view.Backend,
	uploader view.Uploader,
	opts view.Options,
	idleTTL time.Duration,
) *ViewService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &ViewService{
		log:      log,
		lister:   lister,
		backend:  backend,
		uploader: uploader,
		opts:     opts,
		idleTTL:  idleTTL,
		now:      now,
		views:    make(map[uuid.UUID]*view.View),
	}
}

// Open loads a collection listing and starts a view over it.
func (s *ViewService) Open(ctx context.Context, collection string) (uuid.UUID, view.State, error) {
	const op = "service.ViewService.Open"

	log := s.log.With(
		slog.String("op", op),
		slog.String("collection", collection),
	)

	items, err := s.lister.ListCollection(ctx, collection)
	if err != nil {
		log.Error("failed to load collection", sl.Err(err))
		return uuid.Nil, view.State{}, fmt.Errorf("%s: %w", op, err)
	}

	id := uuid.New()
	v := view.New(s.log.With(slog.String("view_id", id.String())), s.backend, s.uploader, collection, items, s.opts)

	s.mu.Lock()
	s.views[id] = v
	s.mu.Unlock()
	metrics.OpenViews.Inc()

	log.Info("view opened", slog.String("view_id", id.String()), slog.Int("items", len(items)))

	return id, v.State(), nil
}

func (s *ViewService) get(id uuid.UUID) (*view.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.views[id]
	if !ok {
		return nil, ErrViewNotFound
	}
	return v, nil
}

func (s *ViewService) State(id uuid.UUID) (view.State, error) {
	const op = "service.ViewService.State"

	v, err := s.get(id)
	if err != nil {
		return view.State{}, fmt.Errorf("%s: %w", op, err)
	}
	return v.State(), nil
}

// Close stops the view's timers and forgets it. Pending deletes that did not
// fire are dropped with it.
func (s *ViewService) Close(id uuid.UUID) error {
	const op = "service.ViewService.Close"

	s.mu.Lock()
	v, ok := s.views[id]
	delete(s.views, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", op, ErrViewNotFound)
	}

	v.Close()
	metrics.OpenViews.Dec()
	s.log.Info("view closed", slog.String("op", op), slog.String("view_id", id.String()))

	return nil
}

// Dispatch applies an event to a view and returns the resulting state.
func (s *ViewService) Dispatch(id uuid.UUID, ev Event) (view.State, error) {
	const op = "service.ViewService.Dispatch"

	v, err := s.get(id)
	if err != nil {
		return view.State{}, fmt.Errorf("%s: %w", op, err)
	}

	var state view.State
	switch ev.Type {
	case EventClick:
		state, err = v.Click(ev.ID)
	case EventEscape:
		state, err = v.Escape()
	case EventBlur:
		state, err = v.Blur()
	case EventUndo:
		state, err = v.Undo()
	case EventPaste:
		state, err = v.Paste(view.Input{Text: ev.Text, File: ev.File})
	case EventDrop:
		state, err = v.Drop(view.Input{Text: ev.Text, File: ev.File})
	case EventCancelUpload:
		state, err = v.CancelUpload()
	case EventDelete:
		state, err = v.Delete(ev.ID)
	case EventDeleteNow:
		state, err = v.DeleteNow(ev.ID)
	case EventComment:
		state, err = v.Comment(ev.ID, ev.Text)
	case EventCommentCancel:
		state, err = v.CommentCancel()
	case EventTitle:
		state, err = v.Title(ev.ID, ev.Text)
	case EventAutoFocusHandled:
		state, err = v.AutoFocusHandled()
	case EventAddCollection:
		state, err = v.AddCollection(ev.ID, ev.Name)
	case EventRemoveCollection:
		state, err = v.RemoveCollection(ev.ID, ev.Name)
	default:
		return v.State(), fmt.Errorf("%s: %w: %q", op, ErrUnknownEvent, ev.Type)
	}
	if err != nil {
		return state, fmt.Errorf("%s: %w", op, err)
	}

	return state, nil
}

// Sweep closes every view idle for longer than the idle TTL.
func (s *ViewService) Sweep() int {
	const op = "service.ViewService.Sweep"

	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	var idle []uuid.UUID
	for id, v := range s.views {
		if v.LastActive().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	s.mu.Unlock()

	closed := 0
	for _, id := range idle {
		if err := s.Close(id); err == nil {
			closed++
		}
	}
	if closed > 0 {
		s.log.Info("idle views closed", slog.String("op", op), slog.Int("count", closed))
	}

	return closed
}

// Run sweeps idle views until ctx is done, then closes the rest.
func (s *ViewService) Run(ctx context.Context) {
	interval := s.idleTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *ViewService) CloseAll() {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.Close(id)
	}
}

// Len reports how many views are open.
func (s *ViewService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}
