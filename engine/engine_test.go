package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"taskadmin/config"
	"taskadmin/docstore"
	"taskadmin/logging"
	"taskadmin/messaging"
	"taskadmin/model"
	"taskadmin/report"
)

// fakeStore delivers snapshots synchronously from the writing goroutine.
type fakeStore struct {
	mu       sync.Mutex
	docs     map[string][]model.Document
	handlers map[string]map[*fakeSub]docstore.Handler
	failNext error
	nextID   int
	quiet    bool // Watch registers without an initial snapshot
}

type fakeSub struct {
	s    *fakeStore
	coll string
}

func (f *fakeSub) Unsubscribe() {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.handlers[f.coll], f)
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string][]model.Document), handlers: make(map[string]map[*fakeSub]docstore.Handler)}
}

func (f *fakeStore) watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

func (f *fakeStore) Watch(_ context.Context, coll string, h docstore.Handler) (docstore.Subscription, error) {
	f.mu.Lock()
	sub := &fakeSub{s: f, coll: coll}
	if f.handlers[coll] == nil {
		f.handlers[coll] = make(map[*fakeSub]docstore.Handler)
	}
	f.handlers[coll][sub] = h
	quiet := f.quiet
	f.mu.Unlock()
	if !quiet {
		f.push(coll)
	}
	return sub, nil
}

func (f *fakeStore) push(coll string) {
	f.mu.Lock()
	docs := append([]model.Document(nil), f.docs[coll]...)
	var hs []docstore.Handler
	for _, h := range f.handlers[coll] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h.OnSnapshot(docstore.Snapshot{Collection: coll, Docs: docs, At: time.Now()})
	}
}

func (f *fakeStore) fail(coll string, err error) {
	f.mu.Lock()
	var hs []docstore.Handler
	for _, h := range f.handlers[coll] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h.OnError(coll, err)
	}
}

func (f *fakeStore) set(coll string, docs ...model.Document) {
	f.mu.Lock()
	f.docs[coll] = docs
	f.mu.Unlock()
	f.push(coll)
}

func (f *fakeStore) takeErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeStore) Insert(_ context.Context, coll string, doc model.Document) (string, error) {
	if err := f.takeErr(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.nextID++
	id := doc.ID()
	if id == "" {
		id = fmt.Sprintf("gen%d", f.nextID)
	}
	d := model.Document{"id": id}
	for k, v := range doc {
		d[k] = v
	}
	f.docs[coll] = append(f.docs[coll], d)
	f.mu.Unlock()
	f.push(coll)
	return id, nil
}

func (f *fakeStore) Update(_ context.Context, coll, id string, fields model.Document) error {
	if err := f.takeErr(); err != nil {
		return err
	}
	f.mu.Lock()
	found := false
	for _, d := range f.docs[coll] {
		if d.ID() == id {
			for k, v := range fields {
				d[k] = v
			}
			found = true
		}
	}
	f.mu.Unlock()
	if !found {
		return docstore.ErrNotFound
	}
	f.push(coll)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, coll, id string) error {
	f.mu.Lock()
	kept := f.docs[coll][:0:0]
	for _, d := range f.docs[coll] {
		if d.ID() != id {
			kept = append(kept, d)
		}
	}
	found := len(kept) != len(f.docs[coll])
	f.docs[coll] = kept
	f.mu.Unlock()
	if !found {
		return docstore.ErrNotFound
	}
	f.push(coll)
	return nil
}

func (f *fakeStore) Close() error { return nil }

type audit struct{ entityType, entityID, action, oldValue, newValue, actor string }

type fakeJournal struct {
	mu     sync.Mutex
	audits []audit
	outbox []string
}

func (j *fakeJournal) AppendAudit(entityType, entityID, action, oldValue, newValue, actor string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.audits = append(j.audits, audit{entityType, entityID, action, oldValue, newValue, actor})
	return nil
}

func (j *fakeJournal) EnqueueOutbox(topic string, payload []byte, msgType, eventID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	env, err := messaging.DecodeEnvelope(payload)
	if err != nil || env.MsgID != eventID {
		return errors.New("bad envelope")
	}
	j.outbox = append(j.outbox, topic+" "+msgType)
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	loaded *report.Views
	saved  int
}

func (c *fakeCache) Save(_ context.Context, _ *report.Views) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved++
	return nil
}

func (c *fakeCache) Load(context.Context) (*report.Views, error) { return c.loaded, nil }

var june1 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func testEngine(t *testing.T, st *fakeStore, j Journal, cache ViewCache) *Engine {
	t.Helper()
	cfg := config.Defaults()
	cfg.Report.TimeZone = "UTC"
	cfg.Report.RefreshSchedule = "@every 1h"
	cfg.Messaging.Backend = "kafka"
	e := New(Config{
		AppConfig: cfg,
		Docs:      st,
		Journal:   j,
		Cache:     cache,
		Log:       logging.Discard(),
		Clock:     func() time.Time { return june1 },
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return e
}

func TestSnapshotsDriveDashboard(t *testing.T) {
	defer goleak.VerifyNone(t)
	st := newFakeStore()
	e := testEngine(t, st, nil, nil)
	defer e.Stop()

	st.set("tasks",
		model.Document{"id": "t1", "createdBy": "u1", "dueDate": "2024-06-05", "completed": true, "category": "c1"},
		model.Document{"id": "t2", "createdBy": "u1", "dueDate": "2024-06-10", "completed": false, "category": nil},
	)
	st.set("category", model.Document{"id": "c1", "title": "Work", "color": "#fff"})
	st.set("users", model.Document{"id": "u1", "name": "An"})

	if !e.Ready() {
		t.Error("engine should be ready after all three snapshots")
	}
	d := e.Dashboard()
	if d.KPIs.AvgCompletionRateDueThisMonth != 50 || d.KPIs.TotalUsers != 1 {
		t.Errorf("KPIs = %+v", d.KPIs)
	}
	want := []report.Slice{
		{Label: "Work", Count: 1, Color: "#fff"},
		{Label: report.UncategorizedLabel, Count: 1, Color: report.UncategorizedColor},
	}
	if diff := cmp.Diff(want, d.Distribution); diff != "" {
		t.Errorf("distribution mismatch (-want +got):\n%s", diff)
	}
	if len(d.Leaderboard) != 1 || d.Leaderboard[0].Name != "An" {
		t.Errorf("leaderboard = %+v", d.Leaderboard)
	}

	e.Stop()
	if n := st.watchers(); n != 0 {
		t.Errorf("watchers after Stop = %d, want 0", n)
	}
	if e.Ready() {
		t.Error("Stop should drop snapshots")
	}
}

func TestViewsUpdatedEventPerSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)
	st := newFakeStore()
	e := testEngine(t, st, nil, nil)
	defer e.Stop()

	var mu sync.Mutex
	var triggers []string
	id := e.Events.SubscribeTypes(func(evt Event) {
		mu.Lock()
		triggers = append(triggers, evt.Payload.(ViewsUpdatedEvent).Trigger)
		mu.Unlock()
	}, EventViewsUpdated)
	defer e.Events.Unsubscribe(id)

	st.set("users", model.Document{"id": "u1"})
	e.Refresh()
	st.set("unrelated", model.Document{"id": "x"})

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"users", "refresh"}, triggers); diff != "" {
		t.Errorf("triggers mismatch (-want +got):\n%s", diff)
	}
}

func TestLabelCRUD(t *testing.T) {
	defer goleak.VerifyNone(t)
	st := newFakeStore()
	j := &fakeJournal{}
	e := testEngine(t, st, j, nil)
	defer e.Stop()
	ctx := context.Background()

	label, err := e.CreateLabel(ctx, LabelInput{Name: "  Study  ", Color: "#ffc107"}, "admin@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if label.Title != "Study" {
		t.Errorf("title = %q, want trimmed Study", label.Title)
	}
	if rows := e.Labels(); len(rows) != 1 || rows[0].Title != "Study" {
		t.Fatalf("labels after create = %+v", rows)
	}

	if _, err := e.UpdateLabel(ctx, label.ID, LabelInput{Name: "Exams", Color: "#000"}, "admin@example.com"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rows := e.Labels(); rows[0].Title != "Exams" {
		t.Errorf("title after update = %q", rows[0].Title)
	}

	if err := e.DeleteLabel(ctx, label.ID, "admin@example.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rows := e.Labels(); len(rows) != 0 {
		t.Errorf("labels after delete = %+v", rows)
	}
	if err := e.DeleteLabel(ctx, label.ID, "admin@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	var actions []string
	for _, a := range j.audits {
		actions = append(actions, a.entityType+":"+a.action)
	}
	if diff := cmp.Diff([]string{"label:created", "label:updated", "label:deleted"}, actions); diff != "" {
		t.Errorf("audit mismatch (-want +got):\n%s", diff)
	}
	if j.audits[1].oldValue == "" || !strings.Contains(j.audits[1].oldValue, "Study") {
		t.Errorf("update audit old value = %q", j.audits[1].oldValue)
	}
	wantOutbox := []string{
		"taskadmin.events label.created",
		"taskadmin.events label.updated",
		"taskadmin.events label.deleted",
	}
	if diff := cmp.Diff(wantOutbox, j.outbox); diff != "" {
		t.Errorf("outbox mismatch (-want +got):\n%s", diff)
	}
}

func TestLabelValidation(t *testing.T) {
	defer goleak.VerifyNone(t)
	st := newFakeStore()
	j := &fakeJournal{}
	e := testEngine(t, st, j, nil)
	defer e.Stop()

	tests := []struct {
		name string
		in   LabelInput
		ok   bool
	}{
		{"blank name", LabelInput{Name: "   ", Color: "#fff"}, false},
		{"bad color", LabelInput{Name: "Work", Color: "red"}, false},
		{"no hash", LabelInput{Name: "Work", Color: "ffffff"}, false},
		{"missing color", LabelInput{Name: "Work"}, false},
		{"51 runes", LabelInput{Name: strings.Repeat("ă", 51), Color: "#fff"}, false},
		{"50 runes", LabelInput{Name: strings.Repeat("ă", 50), Color: "#fff"}, true},
		{"long hex", LabelInput{Name: "Work", Color: "#1E88E5"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateLabel(context.Background(), tt.in, "admin")
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidLabel) {
				t.Errorf("err = %v, want ErrInvalidLabel", err)
			}
		})
	}
}

func TestWriteFailureIsReturnedOnce(t *testing.T) {
	defer goleak.VerifyNone(t)
	st := newFakeStore()
	j := &fakeJournal{}
	e := testEngine(t, st, j, nil)
	defer e.Stop()

	st.failNext = errors.New("permission denied")
	if _, err := e.CreateLabel(context.Background(), LabelInput{Name: "Work", Color: "#fff"}, "admin"); err == nil {
		t.Fatal("store error should surface")
	}
	if len(e.Labels()) != 0 || len(j.audits) != 0 {
		t.Errorf("failed write should leave no label and no audit: %v / %v", e.Labels(), j.audits)
	}
}

func TestUserStatus(t *testing.T) {
	defer goleak.VerifyNone(t)
	st := newFakeStore()
	j := &fakeJournal{}
	e := testEngine(t, st, j, nil)
	defer e.Stop()
	ctx := context.Background()
	st.set("users", model.Document{"id": "u1", "name": "An", "status": "Active"})

	u, err := e.ToggleUserStatus(ctx, "u1", "admin")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if u.Status != model.StatusBanned {
		t.Errorf("status = %s, want Banned", u.Status)
	}
	if page := e.Users(report.UserQuery{Status: model.StatusBanned}); page.Total != 1 {
		t.Errorf("banned users = %d, want 1", page.Total)
	}

	if _, err := e.SetUserStatus(ctx, "u1", "Deleted", "admin"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("err = %v, want ErrInvalidStatus", err)
	}
	if _, err := e.ToggleUserStatus(ctx, "ghost", "admin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("toggle unknown err = %v, want ErrNotFound", err)
	}
	if _, err := e.SetUserStatus(ctx, "ghost", model.StatusActive, "admin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("set unknown err = %v, want ErrNotFound", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	want := []audit{{"user", "u1", "status", "Active", "Banned", "admin"}}
	if diff := cmp.Diff(want, j.audits, cmp.AllowUnexported(audit{})); diff != "" {
		t.Errorf("audit mismatch (-want +got):\n%s", diff)
	}
	if len(j.outbox) != 1 || j.outbox[0] != "taskadmin.events user.status_changed" {
		t.Errorf("outbox = %v", j.outbox)
	}
}

func TestCachedViewsServedBeforeSnapshots(t *testing.T) {
	defer goleak.VerifyNone(t)
	cache := &fakeCache{loaded: &report.Views{Dashboard: report.Dashboard{
		KPIs:        report.KPIs{TotalUsers: 42},
		GeneratedAt: time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC),
	}}}
	st := newFakeStore()
	st.quiet = true
	e := testEngine(t, st, nil, cache)
	defer e.Stop()

	if got := e.Dashboard().KPIs.TotalUsers; got != 42 {
		t.Errorf("TotalUsers = %d, want 42 from cache", got)
	}
	e.Refresh()
	if got := e.Dashboard().KPIs.TotalUsers; got != 0 {
		t.Errorf("TotalUsers after refresh = %d, want 0", got)
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.saved != 1 {
		t.Errorf("cache saves = %d, want 1", cache.saved)
	}
}

func TestWatchErrorEvent(t *testing.T) {
	defer goleak.VerifyNone(t)
	st := newFakeStore()
	e := testEngine(t, st, nil, nil)
	defer e.Stop()

	var got []WatchErrorEvent
	id := e.Events.SubscribeTypes(func(evt Event) {
		got = append(got, evt.Payload.(WatchErrorEvent))
	}, EventWatchError)
	defer e.Events.Unsubscribe(id)

	st.fail("tasks", errors.New("stream closed"))
	if len(got) != 1 || got[0].Collection != "tasks" {
		t.Errorf("watch errors = %+v", got)
	}
}

func TestStartTwice(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := testEngine(t, newFakeStore(), nil, nil)
	defer e.Stop()
	if err := e.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
}

func TestBadScheduleReleasesWatches(t *testing.T) {
	defer goleak.VerifyNone(t)
	st := newFakeStore()
	cfg := config.Defaults()
	cfg.Report.RefreshSchedule = "every now and then"
	e := New(Config{AppConfig: cfg, Docs: st, Log: logging.Discard()})
	defer e.Stop()
	if err := e.Start(context.Background()); err == nil {
		t.Fatal("bad schedule should fail Start")
	}
	if n := st.watchers(); n != 0 {
		t.Errorf("watchers = %d, want 0 after failed Start", n)
	}
}
