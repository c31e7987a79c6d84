package view

import "inspirations/internal/domain/models"

// Action is an intent or outcome fed to Reduce.
type Action interface {
	isAction()
}

type (
	// Click applies the select/zoom cycle to an item.
	Click struct{ ID string }
	Escape struct{}
	Blur   struct{}

	StartUpload struct{ Upload Upload }
	// UploadSucceeded is ignored unless TempID matches the active upload.
	UploadSucceeded struct {
		TempID string
		Item   models.Item
	}
	UploadFailed    struct{ TempID string }
	UploadCancelled struct{}

	DeleteRequested struct{ ID string }
	// DeleteConfirmed is idempotent. It also drops the item if an undo restored it
	// while the store call was in flight.
	DeleteConfirmed struct{ ID string }
	DeleteFailed    struct{ ID string }
	UndoDelete      struct{}

	UpdateComment struct{ ID, Text string }
	UpdateTitle   struct{ ID, Text string }
	// RevertText puts a snapshot value back after a failed text edit.
	RevertText struct {
		ID    string
		Field TextField
		Value string
	}

	SetCollections struct {
		ID          string
		Collections []string
	}
	HideItem struct{ ID string }
	// RevertMembership restores the collections of Item, re-inserting it at
	// min(Index, len(items)) when it had been hidden.
	RevertMembership struct {
		Item  models.Item
		Index int
	}

	AutoFocusHandled struct{}
	CommentDone      struct{ ID string }
	CommentCancelled struct{}
)

type TextField string

const (
	FieldComment TextField = "comment"
	FieldTitle   TextField = "title"
)

func (Click) isAction()            {}
func (Escape) isAction()           {}
func (Blur) isAction()             {}
func (StartUpload) isAction()      {}
func (UploadSucceeded) isAction()  {}
func (UploadFailed) isAction()     {}
func (UploadCancelled) isAction()  {}
func (DeleteRequested) isAction()  {}
func (DeleteConfirmed) isAction()  {}
func (DeleteFailed) isAction()     {}
func (UndoDelete) isAction()       {}
func (UpdateComment) isAction()    {}
func (UpdateTitle) isAction()      {}
func (RevertText) isAction()       {}
func (SetCollections) isAction()   {}
func (HideItem) isAction()         {}
func (RevertMembership) isAction() {}
func (AutoFocusHandled) isAction() {}
func (CommentDone) isAction()      {}
func (CommentCancelled) isAction() {}
