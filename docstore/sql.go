package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskadmin/model"
	"taskadmin/store"
)

// SQLStore keeps documents in the documents table. Local writes wake the
// collection's watchers at once; a revision poll picks up other writers.
type SQLStore struct {
	db       *store.DB
	interval time.Duration
	log      logrus.FieldLogger

	mu       sync.Mutex
	watchers map[string]map[*sqlWatch]struct{}
}

func NewSQLStore(db *store.DB, pollInterval time.Duration, log logrus.FieldLogger) *SQLStore {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &SQLStore{
		db:       db,
		interval: pollInterval,
		log:      log,
		watchers: make(map[string]map[*sqlWatch]struct{}),
	}
}

type sqlWatch struct {
	s          *SQLStore
	collection string
	h          Handler
	wake       chan struct{}
	stop       chan struct{}
	done       chan struct{}
	once       sync.Once
}

func (s *SQLStore) Watch(ctx context.Context, collection string, h Handler) (Subscription, error) {
	w := &sqlWatch{
		s:          s,
		collection: collection,
		h:          h,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.mu.Lock()
	set, ok := s.watchers[collection]
	if !ok {
		set = make(map[*sqlWatch]struct{})
		s.watchers[collection] = set
	}
	set[w] = struct{}{}
	s.mu.Unlock()

	go w.run(ctx)
	return w, nil
}

func (w *sqlWatch) Unsubscribe() {
	w.once.Do(func() {
		w.s.mu.Lock()
		delete(w.s.watchers[w.collection], w)
		w.s.mu.Unlock()
		close(w.stop)
	})
	<-w.done
}

func (w *sqlWatch) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.s.interval)
	defer ticker.Stop()

	lastRev := int64(-1)
	for {
		rev, err := w.s.db.CollectionRevision(w.collection)
		switch {
		case err != nil:
			w.s.log.Warnf("revision %s: %v", w.collection, err)
			w.h.fail(w.collection, err)
		case rev != lastRev:
			docs, err := w.s.db.ListDocuments(w.collection)
			if err != nil {
				w.s.log.Warnf("list %s: %v", w.collection, err)
				w.h.fail(w.collection, err)
				break
			}
			lastRev = rev
			w.h.snapshot(Snapshot{Collection: w.collection, Docs: docs, At: time.Now()})
		}

		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-w.wake:
		case <-ticker.C:
		}
	}
}

func (s *SQLStore) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers[collection] {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (s *SQLStore) Insert(_ context.Context, collection string, doc model.Document) (string, error) {
	id, body := assignID(doc)
	if err := s.db.InsertDocument(collection, id, body); err != nil {
		return "", wrap("insert", collection, err)
	}
	s.notify(collection)
	return id, nil
}

func (s *SQLStore) Update(_ context.Context, collection, id string, fields model.Document) error {
	if err := s.db.UpdateDocument(collection, id, fields); err != nil {
		return wrap("update", collection, err)
	}
	s.notify(collection)
	return nil
}

func (s *SQLStore) Delete(_ context.Context, collection, id string) error {
	if err := s.db.DeleteDocument(collection, id); err != nil {
		return wrap("delete", collection, err)
	}
	s.notify(collection)
	return nil
}

// Close is a no-op; the *store.DB belongs to the caller.
func (s *SQLStore) Close() error { return nil }
