package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"inspirations/internal/domain/models"
	"inspirations/internal/lib/logger/sl"
)

const DefaultDeleteGrace = 3 * time.Second

var ErrClosed = errors.New("view is closed")

// Backend is the server side of every optimistic transition.
type Backend interface {
	UploadURL(ctx context.Context, filename, contentType string) (models.UploadTarget, error)
	SaveImage(ctx context.Context, collection, publicURL, filename string) (models.Item, error)
	AddTweet(ctx context.Context, collection, tweetURL string) (models.Item, error)
	AddLink(ctx context.Context, collection, rawURL string) (models.Item, error)
	UpdateComment(ctx context.Context, id, comment string) error
	UpdateTitle(ctx context.Context, id, title string) error
	AddToCollection(ctx context.Context, id, name string) error
	RemoveFromCollection(ctx context.Context, id, name string) error
	DeleteItem(ctx context.Context, id string) error
}

// Uploader transfers file bytes to an issued upload URL.
type Uploader interface {
	Upload(ctx context.Context, uploadURL string, data []byte, contentType string) error
}

type Options struct {
	DeleteGrace time.Duration
	Scheduler   Scheduler
	Run         Runner
	Now         func() time.Time
}

type scheduled struct {
	timer Timer
	gen   uint64
}

// View is one open collection view. Every transition goes through its lock;
// effects run through the Runner and come back as follow-up actions.
type View struct {
	log      *slog.Logger
	backend  Backend
	uploader Uploader

	grace     time.Duration
	scheduler Scheduler
	run       Runner
	now       func() time.Time

	mu         sync.Mutex
	state      State
	snapshot   map[string]models.Item
	timers     map[string]scheduled
	gen        uint64
	lastTemp   int64
	lastActive time.Time
	closed     bool
}

func New(log *slog.Logger, backend Backend, uploader Uploader, collection string, items []models.Item, opts Options) *View {
	if opts.DeleteGrace <= 0 {
		opts.DeleteGrace = DefaultDeleteGrace
	}
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler
	}
	if opts.Run == nil {
		opts.Run = GoRunner
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	snapshot := make(map[string]models.Item, len(items))
	for _, it := range items {
		snapshot[it.ID] = it.Clone()
	}

	return &View{
		log:        log.With(slog.String("collection", collection)),
		backend:    backend,
		uploader:   uploader,
		grace:      opts.DeleteGrace,
		scheduler:  opts.Scheduler,
		run:        opts.Run,
		now:        opts.Now,
		state:      NewState(collection, items),
		snapshot:   snapshot,
		timers:     make(map[string]scheduled),
		lastActive: opts.Now(),
	}
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Clone()
}

func (v *View) Collection() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Collection
}

// LastActive reports when the view last received an event.
func (v *View) LastActive() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastActive
}

// do runs fn under the lock and then hands the returned effect to the runner.
func (v *View) do(fn func() func()) (State, error) {
	v.mu.Lock()
	if v.closed {
		s := v.state.Clone()
		v.mu.Unlock()
		return s, ErrClosed
	}
	v.lastActive = v.now()
	effect := fn()
	s := v.state.Clone()
	v.mu.Unlock()

	if effect != nil {
		v.run(effect)
	}
	return s, nil
}

// apply must be called with mu held.
func (v *View) apply(a Action) {
	v.state = Reduce(v.state, a)
}

// dispatch applies a follow-up action from an effect. Results that arrive
// after Close are dropped.
func (v *View) dispatch(a Action) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.apply(a)
}

func (v *View) Click(id string) (State, error) {
	return v.do(func() func() {
		v.apply(Click{ID: id})
		return nil
	})
}

func (v *View) Escape() (State, error) {
	return v.do(func() func() {
		v.apply(Escape{})
		return nil
	})
}

func (v *View) Blur() (State, error) {
	return v.do(func() func() {
		v.apply(Blur{})
		return nil
	})
}

func (v *View) AutoFocusHandled() (State, error) {
	return v.do(func() func() {
		v.apply(AutoFocusHandled{})
		return nil
	})
}

// Paste ingests an image file, tweet link or URL. It is a no-op while another
// ingestion is in flight or when the input matches nothing.
func (v *View) Paste(in Input) (State, error) {
	return v.do(func() func() { return v.ingest(in) })
}

// Drop follows the same policy as Paste.
func (v *View) Drop(in Input) (State, error) {
	return v.do(func() func() { return v.ingest(in) })
}

func (v *View) ingest(in Input) func() {
	if v.state.Uploading != nil {
		return nil
	}
	ing, ok := Classify(in)
	if !ok {
		return nil
	}

	tempID := v.newTempID()
	v.apply(StartUpload{Upload: Upload{Kind: ing.Kind, Label: ing.Label, TempID: tempID}})
	collection := v.state.Collection

	return func() {
		const op = "view.View.ingest"

		log := v.log.With(
			slog.String("op", op),
			slog.String("kind", string(ing.Kind)),
			slog.String("temp_id", tempID),
		)

		item, err := v.runIngestion(context.Background(), collection, ing)
		if err != nil {
			log.Error("ingestion failed", sl.Err(err))
			v.dispatch(UploadFailed{TempID: tempID})
			return
		}

		log.Info("ingestion committed", slog.String("item_id", item.ID))

		v.mu.Lock()
		defer v.mu.Unlock()
		if v.closed {
			return
		}
		v.snapshot[item.ID] = item.Clone()
		v.apply(UploadSucceeded{TempID: tempID, Item: item})
	}
}

func (v *View) runIngestion(ctx context.Context, collection string, ing Ingestion) (models.Item, error) {
	switch ing.Kind {
	case KindImage:
		target, err := v.backend.UploadURL(ctx, ing.File.Name, ing.File.ContentType)
		if err != nil {
			return models.Item{}, fmt.Errorf("upload url: %w", err)
		}
		if err := v.uploader.Upload(ctx, target.UploadURL, ing.File.Data, ing.File.ContentType); err != nil {
			return models.Item{}, fmt.Errorf("transfer: %w", err)
		}
		return v.backend.SaveImage(ctx, collection, target.PublicURL, ing.File.Name)
	case KindTweet:
		return v.backend.AddTweet(ctx, collection, ing.URL)
	case KindURL:
		return v.backend.AddLink(ctx, collection, ing.URL)
	}
	return models.Item{}, fmt.Errorf("unknown ingestion kind %q", ing.Kind)
}

// newTempID returns temp-<unix millis>, bumped so ids never repeat within a view.
func (v *View) newTempID() string {
	ms := v.now().UnixMilli()
	if ms <= v.lastTemp {
		ms = v.lastTemp + 1
	}
	v.lastTemp = ms
	return fmt.Sprintf("temp-%d", ms)
}

// CancelUpload drops the placeholder. A late result for it is ignored.
func (v *View) CancelUpload() (State, error) {
	return v.do(func() func() {
		v.apply(UploadCancelled{})
		return nil
	})
}

// Delete removes an item from the grid and commits the store delete after the
// grace period unless it is undone. An empty id means the selected item.
func (v *View) Delete(id string) (State, error) {
	return v.do(func() func() {
		if id == "" {
			selected, ok := v.state.Selected()
			if !ok {
				return nil
			}
			id = selected.ID
		}
		if v.state.IndexOf(id) < 0 {
			return nil
		}
		v.apply(DeleteRequested{ID: id})
		v.schedule(id)
		return nil
	})
}

// DeleteNow deletes without a grace period. The item is put back if the store fails.
func (v *View) DeleteNow(id string) (State, error) {
	return v.do(func() func() {
		switch {
		case v.state.IndexOf(id) >= 0:
			v.apply(DeleteRequested{ID: id})
		case v.state.pendingIndex(id) >= 0:
		default:
			return nil
		}
		v.unschedule(id)
		return func() { v.commitDelete(id) }
	})
}

// Undo restores the most recently deleted item. If its store call is already
// in flight the response reconciles: success removes it again, failure keeps it.
func (v *View) Undo() (State, error) {
	return v.do(func() func() {
		n := len(v.state.PendingDeletions)
		if n == 0 {
			return nil
		}
		v.unschedule(v.state.PendingDeletions[n-1].Item.ID)
		v.apply(UndoDelete{})
		return nil
	})
}

// schedule must be called with mu held.
func (v *View) schedule(id string) {
	v.unschedule(id)
	v.gen++
	gen := v.gen
	t := v.scheduler.AfterFunc(v.grace, func() { v.fire(id, gen) })
	v.timers[id] = scheduled{timer: t, gen: gen}
}

// unschedule must be called with mu held.
func (v *View) unschedule(id string) {
	if s, ok := v.timers[id]; ok {
		s.timer.Stop()
		delete(v.timers, id)
	}
}

func (v *View) fire(id string, gen uint64) {
	v.mu.Lock()
	s, ok := v.timers[id]
	if !ok || s.gen != gen || v.closed {
		v.mu.Unlock()
		return
	}
	delete(v.timers, id)
	pending := v.state.pendingIndex(id) >= 0
	v.mu.Unlock()

	if pending {
		v.run(func() { v.commitDelete(id) })
	}
}

func (v *View) commitDelete(id string) {
	const op = "view.View.commitDelete"

	log := v.log.With(slog.String("op", op), slog.String("item_id", id))

	err := v.backend.DeleteItem(context.Background(), id)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}

	if err != nil {
		log.Error("delete failed, restoring item", sl.Err(err))
		// a newer delete request for the same item owns the outcome
		if _, rescheduled := v.timers[id]; rescheduled {
			return
		}
		v.apply(DeleteFailed{ID: id})
		return
	}

	log.Info("item deleted")
	v.unschedule(id)
	delete(v.snapshot, id)
	v.apply(DeleteConfirmed{ID: id})
}

// Comment sets an item's comment. Confirming the comment of the newly
// uploaded item also ends the post-upload focus.
func (v *View) Comment(id, text string) (State, error) {
	return v.do(func() func() {
		if v.state.IndexOf(id) < 0 {
			return nil
		}
		v.apply(UpdateComment{ID: id, Text: text})
		v.apply(CommentDone{ID: id})
		return func() {
			if err := v.backend.UpdateComment(context.Background(), id, text); err != nil {
				v.revertText(id, FieldComment, err)
			}
		}
	})
}

func (v *View) CommentCancel() (State, error) {
	return v.do(func() func() {
		v.apply(CommentCancelled{})
		return nil
	})
}

func (v *View) Title(id, text string) (State, error) {
	return v.do(func() func() {
		if v.state.IndexOf(id) < 0 {
			return nil
		}
		v.apply(UpdateTitle{ID: id, Text: text})
		return func() {
			if err := v.backend.UpdateTitle(context.Background(), id, text); err != nil {
				v.revertText(id, FieldTitle, err)
			}
		}
	})
}

func (v *View) revertText(id string, field TextField, cause error) {
	const op = "view.View.revertText"

	v.log.Error("text update failed, reverting",
		slog.String("op", op),
		slog.String("item_id", id),
		slog.String("field", string(field)),
		sl.Err(cause),
	)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}

	snap, ok := v.snapshot[id]
	if !ok {
		return
	}
	value := snap.Comment
	if field == FieldTitle {
		value = snap.Title
	}
	v.apply(RevertText{ID: id, Field: field, Value: value})
}

func (v *View) AddCollection(id, name string) (State, error) {
	name = strings.TrimSpace(name)
	return v.do(func() func() {
		i := v.state.IndexOf(id)
		if i < 0 || name == "" || name == models.UncategorizedCollection {
			return nil
		}
		orig := v.state.Items[i].Clone()
		if slices.Contains(orig.Collections, name) {
			return nil
		}
		next := append(slices.Clone(orig.Collections), name)
		return v.changeMembership(orig, i, next, func(ctx context.Context) error {
			return v.backend.AddToCollection(ctx, id, name)
		})
	})
}

func (v *View) RemoveCollection(id, name string) (State, error) {
	name = strings.TrimSpace(name)
	return v.do(func() func() {
		i := v.state.IndexOf(id)
		if i < 0 {
			return nil
		}
		orig := v.state.Items[i].Clone()
		if !slices.Contains(orig.Collections, name) {
			return nil
		}
		next := slices.DeleteFunc(slices.Clone(orig.Collections), func(c string) bool { return c == name })
		return v.changeMembership(orig, i, next, func(ctx context.Context) error {
			return v.backend.RemoveFromCollection(ctx, id, name)
		})
	})
}

// changeMembership must be called with mu held.
func (v *View) changeMembership(orig models.Item, index int, next []string, call func(context.Context) error) func() {
	v.apply(SetCollections{ID: orig.ID, Collections: next})
	if updated, ok := v.state.Item(orig.ID); ok && !updated.InCollection(v.state.Collection) {
		v.apply(HideItem{ID: orig.ID})
	}

	return func() {
		const op = "view.View.changeMembership"

		if err := call(context.Background()); err != nil {
			v.log.Error("membership update failed, reverting",
				slog.String("op", op),
				slog.String("item_id", orig.ID),
				sl.Err(err),
			)
			v.dispatch(RevertMembership{Item: orig, Index: index})
		}
	}
}

// Close stops every delete timer. Later events fail with ErrClosed.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closed = true
	for id, s := range v.timers {
		s.timer.Stop()
		delete(v.timers, id)
	}
}

// PendingTimers reports how many delete timers are armed.
func (v *View) PendingTimers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}
