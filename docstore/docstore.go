// Package docstore is the boundary to the document collections the dashboard
// reads. A Store delivers full replacement snapshots of a collection to its
// watchers and accepts single-attempt writes.
package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskadmin/model"
	"taskadmin/store"
)

// ErrNotFound is returned by Update and Delete when no document has the id.
var ErrNotFound = store.ErrNotFound

// Snapshot is the complete contents of a collection at one point in time.
// Receivers must not modify Docs.
type Snapshot struct {
	Collection string
	Docs       []model.Document
	At         time.Time
}

// Subscription is the handle returned by Watch. Unsubscribe stops delivery
// and waits for the watcher goroutine to exit. It is safe to call more than
// once but must not be called from inside the snapshot callback.
type Subscription interface {
	Unsubscribe()
}

// Handler receives snapshots and, optionally, watch errors. OnError may be
// nil. Both are called from the watcher goroutine.
type Handler struct {
	OnSnapshot func(Snapshot)
	OnError    func(collection string, err error)
}

func (h Handler) snapshot(s Snapshot) {
	if h.OnSnapshot != nil {
		h.OnSnapshot(s)
	}
}

func (h Handler) fail(collection string, err error) {
	if h.OnError != nil {
		h.OnError(collection, err)
	}
}

type Store interface {
	// Watch delivers the current snapshot, then a new one after every change.
	Watch(ctx context.Context, collection string, h Handler) (Subscription, error)
	// Insert stores doc and returns its id. A missing "id" gets a new UUID.
	Insert(ctx context.Context, collection string, doc model.Document) (string, error)
	// Update sets the given fields; a nil value removes the field.
	Update(ctx context.Context, collection, id string, fields model.Document) error
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

// assignID pulls the id out of doc, minting one if absent, and returns the
// body without it.
func assignID(doc model.Document) (string, model.Document) {
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	body := make(model.Document, len(doc))
	for k, v := range doc {
		if k == model.IDField || k == "_id" {
			continue
		}
		body[k] = v
	}
	return id, body
}

func wrap(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("docstore %s %s: %w", op, collection, err)
}
