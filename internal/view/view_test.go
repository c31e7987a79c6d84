package view_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inspirations/internal/domain/models"
	"inspirations/internal/lib/logger/sl"
	"inspirations/internal/view"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) UploadURL(ctx context.Context, filename, contentType string) (models.UploadTarget, error) {
	args := m.Called(ctx, filename, contentType)
	return args.Get(0).(models.UploadTarget), args.Error(1)
}

func (m *MockBackend) SaveImage(ctx context.Context, collection, publicURL, filename string) (models.Item, error) {
	args := m.Called(ctx, collection, publicURL, filename)
	return args.Get(0).(models.Item), args.Error(1)
}

func (m *MockBackend) AddTweet(ctx context.Context, collection, tweetURL string) (models.Item, error) {
	args := m.Called(ctx, collection, tweetURL)
	return args.Get(0).(models.Item), args.Error(1)
}

func (m *MockBackend) AddLink(ctx context.Context, collection, rawURL string) (models.Item, error) {
	args := m.Called(ctx, collection, rawURL)
	return args.Get(0).(models.Item), args.Error(1)
}

func (m *MockBackend) UpdateComment(ctx context.Context, id, comment string) error {
	return m.Called(ctx, id, comment).Error(0)
}

func (m *MockBackend) UpdateTitle(ctx context.Context, id, title string) error {
	return m.Called(ctx, id, title).Error(0)
}

func (m *MockBackend) AddToCollection(ctx context.Context, id, name string) error {
	return m.Called(ctx, id, name).Error(0)
}

func (m *MockBackend) RemoveFromCollection(ctx context.Context, id, name string) error {
	return m.Called(ctx, id, name).Error(0)
}

func (m *MockBackend) DeleteItem(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, uploadURL string, data []byte, contentType string) error {
	return m.Called(ctx, uploadURL, data, contentType).Error(0)
}

// fakeScheduler records timers and fires them on demand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) view.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// FireAll runs every timer that is neither stopped nor already fired.
func (s *fakeScheduler) FireAll() {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (s *fakeScheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// queueRunner holds effects until the test drains them.
type queueRunner struct {
	mu    sync.Mutex
	queue []func()
}

func (r *queueRunner) Run(effect func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, effect)
}

func (r *queueRunner) Drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		next()
	}
}

func (r *queueRunner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

type harness struct {
	view      *view.View
	backend   *MockBackend
	uploader  *MockUploader
	scheduler *fakeScheduler
	runner    *queueRunner
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, collection string, items ...models.Item) *harness {
	t.Helper()

	h := &harness{
		backend:   new(MockBackend),
		uploader:  new(MockUploader),
		scheduler: &fakeScheduler{},
		runner:    &queueRunner{},
	}
	h.view = view.New(sl.Discard(), h.backend, h.uploader, collection, items, view.Options{
		DeleteGrace: 3 * time.Second,
		Scheduler:   h.scheduler,
		Run:         h.runner.Run,
		Now:         func() time.Time { return fixedNow },
	})
	t.Cleanup(func() {
		h.view.Close()
		h.backend.AssertExpectations(t)
		h.uploader.AssertExpectations(t)
	})

	return h
}

func TestView_PasteURL(t *testing.T) {
	h := newHarness(t, "design", item("1", "design"))

	created := item("7", "design")
	created.OriginalURL = "https://example.com/article"
	h.backend.On("AddLink", mock.Anything, "design", "https://example.com/article").Return(created, nil).Once()

	s, err := h.view.Paste(view.Input{Text: "example.com/article"})
	require.NoError(t, err)
	require.NotNil(t, s.Uploading)
	assert.Equal(t, view.KindURL, s.Uploading.Kind)
	assert.Equal(t, "https://example.com/article", s.Uploading.Label)
	assert.Equal(t, "temp-1714564800000", s.Uploading.TempID)
	assert.Equal(t, s.Uploading.TempID, s.SelectedID)
	assert.Equal(t, []string{"1"}, ids(s))

	h.runner.Drain()

	s = h.view.State()
	assert.Nil(t, s.Uploading)
	assert.Equal(t, []string{"7", "1"}, ids(s))
	assert.Equal(t, "7", s.SelectedID)
	assert.Equal(t, "7", s.NewlyUploadedID)
	assert.True(t, s.AutoFocusComment)
}

func TestView_PasteTweet(t *testing.T) {
	h := newHarness(t, "design")

	created := item("8", "design")
	created.VideoURL = "https://video.twimg.com/high.mp4"
	h.backend.On("AddTweet", mock.Anything, "design", "https://x.com/jack/status/20").Return(created, nil).Once()

	s, err := h.view.Paste(view.Input{Text: "  https://x.com/jack/status/20 "})
	require.NoError(t, err)
	require.NotNil(t, s.Uploading)
	assert.Equal(t, view.KindTweet, s.Uploading.Kind)

	h.runner.Drain()

	s = h.view.State()
	assert.Equal(t, []string{"8"}, ids(s))
	assert.Equal(t, "https://video.twimg.com/high.mp4", s.Items[0].VideoURL)
}

func TestView_PasteImage(t *testing.T) {
	data := []byte("png bytes")

	t.Run("credentials, transfer, register", func(t *testing.T) {
		h := newHarness(t, "design")

		target := models.UploadTarget{UploadURL: "https://upload.example.com/k?sig=1", Key: "k", PublicURL: "https://media.example.com/k"}
		h.backend.On("UploadURL", mock.Anything, "cat.png", "image/png").Return(target, nil).Once()
		h.uploader.On("Upload", mock.Anything, target.UploadURL, data, "image/png").Return(nil).Once()
		h.backend.On("SaveImage", mock.Anything, "design", target.PublicURL, "cat.png").Return(item("5", "design"), nil).Once()

		s, err := h.view.Paste(view.Input{File: &view.File{Name: "cat.png", ContentType: "image/png", Data: data}, Text: "https://example.com"})
		require.NoError(t, err)
		require.NotNil(t, s.Uploading)
		assert.Equal(t, view.KindImage, s.Uploading.Kind)
		assert.Equal(t, "cat.png", s.Uploading.Label)

		h.runner.Drain()
		assert.Equal(t, []string{"5"}, ids(h.view.State()))
	})

	t.Run("transfer failure leaves items unchanged", func(t *testing.T) {
		h := newHarness(t, "design", item("1", "design"))

		target := models.UploadTarget{UploadURL: "https://upload.example.com/k", PublicURL: "https://media.example.com/k"}
		h.backend.On("UploadURL", mock.Anything, "cat.png", "image/png").Return(target, nil).Once()
		h.uploader.On("Upload", mock.Anything, target.UploadURL, data, "image/png").Return(errors.New("network down")).Once()

		_, err := h.view.Drop(view.Input{File: &view.File{Name: "cat.png", ContentType: "image/png", Data: data}})
		require.NoError(t, err)
		h.runner.Drain()

		s := h.view.State()
		assert.Nil(t, s.Uploading)
		assert.Empty(t, s.SelectedID)
		assert.Equal(t, []string{"1"}, ids(s))
		h.backend.AssertNotCalled(t, "SaveImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestView_DropNonImageIgnored(t *testing.T) {
	h := newHarness(t, "design", item("1", "design"))

	s, err := h.view.Drop(view.Input{File: &view.File{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}})
	require.NoError(t, err)
	assert.Nil(t, s.Uploading)
	assert.Zero(t, h.runner.Len())

	s, err = h.view.Paste(view.Input{Text: "just some words"})
	require.NoError(t, err)
	assert.Nil(t, s.Uploading)
	assert.Zero(t, h.runner.Len())
}

func TestView_AtMostOneIngestion(t *testing.T) {
	h := newHarness(t, "design")

	h.backend.On("AddLink", mock.Anything, "design", "https://first.example.com").Return(item("1", "design"), nil).Once()

	first, err := h.view.Paste(view.Input{Text: "https://first.example.com"})
	require.NoError(t, err)
	require.NotNil(t, first.Uploading)

	second, err := h.view.Paste(view.Input{Text: "https://second.example.com"})
	require.NoError(t, err)
	assert.Equal(t, first.Uploading, second.Uploading)
	assert.Equal(t, 1, h.runner.Len())

	h.runner.Drain()

	// a new ingestion is accepted once the first resolved
	h.backend.On("AddLink", mock.Anything, "design", "https://second.example.com").Return(item("2", "design"), nil).Once()
	third, err := h.view.Paste(view.Input{Text: "https://second.example.com"})
	require.NoError(t, err)
	require.NotNil(t, third.Uploading)
	assert.NotEqual(t, first.Uploading.TempID, third.Uploading.TempID)
	h.runner.Drain()

	assert.Equal(t, []string{"2", "1"}, ids(h.view.State()))
}

func TestView_CancelUpload(t *testing.T) {
	h := newHarness(t, "design")

	h.backend.On("AddLink", mock.Anything, "design", "https://example.com").Return(item("1", "design"), nil).Once()

	_, err := h.view.Paste(view.Input{Text: "https://example.com"})
	require.NoError(t, err)

	s, err := h.view.CancelUpload()
	require.NoError(t, err)
	assert.Nil(t, s.Uploading)

	h.runner.Drain()

	s = h.view.State()
	assert.Empty(t, s.Items)
	assert.Empty(t, s.SelectedID)
}

func TestView_DeleteWithoutSelection(t *testing.T) {
	h := newHarness(t, "design", item("1"), item("2"))

	s, err := h.view.Delete("")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(s))
	assert.Empty(t, s.PendingDeletions)
	assert.Zero(t, h.scheduler.Armed())
}

func TestView_DeleteThenUndo(t *testing.T) {
	h := newHarness(t, "design", item("1"), item("2"), item("3"))

	_, err := h.view.Click("2")
	require.NoError(t, err)

	s, err := h.view.Delete("")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids(s))
	assert.Empty(t, s.SelectedID)
	assert.Equal(t, 1, h.scheduler.Armed())
	require.Len(t, h.scheduler.timers, 1)
	assert.Equal(t, 3*time.Second, h.scheduler.timers[0].d)

	s, err = h.view.Undo()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(s))
	assert.Empty(t, s.PendingDeletions)
	assert.Zero(t, h.scheduler.Armed())

	// the cancelled timer never reaches the store
	h.scheduler.FireAll()
	h.runner.Drain()
	h.backend.AssertNotCalled(t, "DeleteItem", mock.Anything, mock.Anything)
}

func TestView_DeleteCommits(t *testing.T) {
	h := newHarness(t, "design", item("1"), item("2"))

	h.backend.On("DeleteItem", mock.Anything, "1").Return(nil).Once()

	_, err := h.view.Delete("1")
	require.NoError(t, err)

	h.scheduler.FireAll()
	h.runner.Drain()

	s := h.view.State()
	assert.Equal(t, []string{"2"}, ids(s))
	assert.Empty(t, s.PendingDeletions)
	assert.Zero(t, h.view.PendingTimers())
}

func TestView_DeleteFailureRestores(t *testing.T) {
	h := newHarness(t, "design", item("1"), item("2"), item("3"))

	h.backend.On("DeleteItem", mock.Anything, "3").Return(errors.New("db down")).Once()
	h.backend.On("DeleteItem", mock.Anything, "1").Return(nil).Once()

	_, err := h.view.Delete("3")
	require.NoError(t, err)
	_, err = h.view.Delete("1")
	require.NoError(t, err)

	h.scheduler.FireAll()
	h.runner.Drain()

	s := h.view.State()
	assert.Equal(t, []string{"2", "3"}, ids(s))
	assert.Empty(t, s.PendingDeletions)
}

func TestView_UndoIsLIFO(t *testing.T) {
	h := newHarness(t, "design", item("1"), item("2"), item("3"))

	h.backend.On("DeleteItem", mock.Anything, "1").Return(nil).Once()

	_, _ = h.view.Delete("1")
	_, _ = h.view.Delete("3")

	s, err := h.view.Undo()
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids(s))
	assert.Equal(t, 1, h.scheduler.Armed())

	h.scheduler.FireAll()
	h.runner.Drain()
	assert.Equal(t, []string{"2", "3"}, ids(h.view.State()))
}

func TestView_UndoWhileInFlight(t *testing.T) {
	t.Run("success removes the item again", func(t *testing.T) {
		h := newHarness(t, "design", item("1"), item("2"))
		h.backend.On("DeleteItem", mock.Anything, "1").Return(nil).Once()

		_, _ = h.view.Delete("1")
		h.scheduler.FireAll()
		require.Equal(t, 1, h.runner.Len())

		s, err := h.view.Undo()
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, ids(s))

		h.runner.Drain()
		assert.Equal(t, []string{"2"}, ids(h.view.State()))
	})

	t.Run("failure keeps the restored item", func(t *testing.T) {
		h := newHarness(t, "design", item("1"), item("2"))
		h.backend.On("DeleteItem", mock.Anything, "1").Return(errors.New("timeout")).Once()

		_, _ = h.view.Delete("1")
		h.scheduler.FireAll()
		_, _ = h.view.Undo()
		h.runner.Drain()

		s := h.view.State()
		assert.Equal(t, []string{"1", "2"}, ids(s))
		assert.Empty(t, s.PendingDeletions)
	})
}

func TestView_DeleteNow(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newHarness(t, "design", item("1"), item("2"))
		h.backend.On("DeleteItem", mock.Anything, "2").Return(nil).Once()

		s, err := h.view.DeleteNow("2")
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, ids(s))
		assert.Zero(t, h.scheduler.Armed())

		h.runner.Drain()
		assert.Empty(t, h.view.State().PendingDeletions)
	})

	t.Run("failure rolls back to the original index", func(t *testing.T) {
		h := newHarness(t, "design", item("1"), item("2"), item("3"))
		h.backend.On("DeleteItem", mock.Anything, "2").Return(errors.New("nope")).Once()

		_, _ = h.view.DeleteNow("2")
		h.runner.Drain()
		assert.Equal(t, []string{"1", "2", "3"}, ids(h.view.State()))
	})

	t.Run("commits a pending delete early", func(t *testing.T) {
		h := newHarness(t, "design", item("1"))
		h.backend.On("DeleteItem", mock.Anything, "1").Return(nil).Once()

		_, _ = h.view.Delete("1")
		_, _ = h.view.DeleteNow("1")
		assert.Zero(t, h.scheduler.Armed())

		h.runner.Drain()
		h.scheduler.FireAll()
		h.runner.Drain()
		assert.Empty(t, h.view.State().Items)
	})
}

func TestView_TextRollbackToSnapshot(t *testing.T) {
	h := newHarness(t, "design", item("1"))

	h.backend.On("UpdateTitle", mock.Anything, "1", "first edit").Return(nil).Once()
	h.backend.On("UpdateTitle", mock.Anything, "1", "second edit").Return(errors.New("db down")).Once()

	s, err := h.view.Title("1", "first edit")
	require.NoError(t, err)
	assert.Equal(t, "first edit", s.Items[0].Title)
	h.runner.Drain()

	s, err = h.view.Title("1", "second edit")
	require.NoError(t, err)
	assert.Equal(t, "second edit", s.Items[0].Title)
	h.runner.Drain()

	assert.Equal(t, "title 1", h.view.State().Items[0].Title)
}

func TestView_CommentRollbackUsesIngestedSnapshot(t *testing.T) {
	h := newHarness(t, "design")

	created := item("4", "design")
	created.Comment = "from server"
	h.backend.On("AddLink", mock.Anything, "design", "https://example.com").Return(created, nil).Once()
	h.backend.On("UpdateComment", mock.Anything, "4", "typed").Return(errors.New("boom")).Once()

	_, _ = h.view.Paste(view.Input{Text: "https://example.com"})
	h.runner.Drain()

	s, err := h.view.Comment("4", "typed")
	require.NoError(t, err)
	assert.Equal(t, "typed", s.Items[0].Comment)
	assert.Empty(t, s.NewlyUploadedID)
	assert.Empty(t, s.SelectedID)

	h.runner.Drain()
	assert.Equal(t, "from server", h.view.State().Items[0].Comment)
}

func TestView_MembershipVisibility(t *testing.T) {
	t.Run("removing the viewed collection hides the item", func(t *testing.T) {
		h := newHarness(t, "design", item("1", "design"), item("2", "design", "type"), item("3", "design"))
		h.backend.On("RemoveFromCollection", mock.Anything, "2", "design").Return(nil).Once()

		_, _ = h.view.Click("2")
		s, err := h.view.RemoveCollection("2", "design")
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "3"}, ids(s))
		assert.Empty(t, s.SelectedID)

		h.runner.Drain()
		assert.Equal(t, []string{"1", "3"}, ids(h.view.State()))
	})

	t.Run("failure restores item and visibility", func(t *testing.T) {
		h := newHarness(t, "design", item("1", "design"), item("2", "design"), item("3", "design"))
		h.backend.On("RemoveFromCollection", mock.Anything, "2", "design").Return(errors.New("boom")).Once()

		_, _ = h.view.RemoveCollection("2", "design")
		h.runner.Drain()

		s := h.view.State()
		assert.Equal(t, []string{"1", "2", "3"}, ids(s))
		assert.Equal(t, []string{"design"}, s.Items[1].Collections)
	})

	t.Run("adding another collection keeps it visible", func(t *testing.T) {
		h := newHarness(t, "design", item("1", "design"))
		h.backend.On("AddToCollection", mock.Anything, "1", "type").Return(nil).Once()

		s, err := h.view.AddCollection("1", " type ")
		require.NoError(t, err)
		assert.Equal(t, []string{"design", "type"}, s.Items[0].Collections)
		h.runner.Drain()
	})

	t.Run("categorizing hides from uncategorized", func(t *testing.T) {
		h := newHarness(t, models.UncategorizedCollection, item("1"), item("2"))
		h.backend.On("AddToCollection", mock.Anything, "1", "type").Return(errors.New("boom")).Once()

		s, _ := h.view.AddCollection("1", "type")
		assert.Equal(t, []string{"2"}, ids(s))

		h.runner.Drain()
		s = h.view.State()
		assert.Equal(t, []string{"1", "2"}, ids(s))
		assert.Empty(t, s.Items[0].Collections)
	})

	t.Run("no-op edits skip the store", func(t *testing.T) {
		h := newHarness(t, "design", item("1", "design"))

		_, _ = h.view.AddCollection("1", "design")
		_, _ = h.view.AddCollection("1", "")
		_, _ = h.view.AddCollection("1", models.UncategorizedCollection)
		_, _ = h.view.RemoveCollection("1", "missing")
		_, _ = h.view.AddCollection("404", "type")
		assert.Zero(t, h.runner.Len())
	})
}

func TestView_Close(t *testing.T) {
	h := newHarness(t, "design", item("1"), item("2"))

	_, _ = h.view.Delete("1")
	_, _ = h.view.Delete("2")
	assert.Equal(t, 2, h.view.PendingTimers())

	h.view.Close()
	assert.Zero(t, h.view.PendingTimers())
	assert.Zero(t, h.scheduler.Armed())

	_, err := h.view.Click("1")
	assert.ErrorIs(t, err, view.ErrClosed)

	h.scheduler.FireAll()
	h.runner.Drain()
	h.backend.AssertNotCalled(t, "DeleteItem", mock.Anything, mock.Anything)
}

func TestView_CloseDropsLateIngestion(t *testing.T) {
	h := newHarness(t, "design", item("1", "design"))

	h.backend.On("AddLink", mock.Anything, "design", "https://example.com/article").Return(item("7", "design"), nil).Once()

	_, err := h.view.Paste(view.Input{Text: "https://example.com/article"})
	require.NoError(t, err)

	h.view.Close()
	h.runner.Drain()

	s := h.view.State()
	assert.Equal(t, []string{"1"}, ids(s))
	require.NotNil(t, s.Uploading)
	h.backend.AssertExpectations(t)
}

func TestView_LastActive(t *testing.T) {
	h := newHarness(t, "design", item("1"))
	assert.Equal(t, fixedNow, h.view.LastActive())
	assert.Equal(t, "design", h.view.Collection())
}
