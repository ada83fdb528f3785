package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskadmin/config"
	"taskadmin/model"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

// --- Document tests ---

func TestDocumentCRUD(t *testing.T) {
	db := testDB(t)

	if err := db.InsertDocument("category", "c1", model.Document{"title": "Work", "color": "#ff0000"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.InsertDocument("category", "c2", model.Document{"title": "Home"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	docs, err := db.ListDocuments("category")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len = %d, want 2", len(docs))
	}
	if docs[0].ID() != "c1" || docs[1].ID() != "c2" {
		t.Errorf("order = %s, %s, want c1, c2", docs[0].ID(), docs[1].ID())
	}

	if err := db.UpdateDocument("category", "c1", model.Document{"title": "Office", "color": nil}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := db.GetDocument("category", "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["title"] != "Office" {
		t.Errorf("title = %v, want Office", got["title"])
	}
	if _, ok := got["color"]; ok {
		t.Error("nil field should remove color")
	}

	if err := db.DeleteDocument("category", "c2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := db.DeleteDocument("category", "c2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	if err := db.UpdateDocument("category", "missing", model.Document{"title": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing err = %v, want ErrNotFound", err)
	}
	if _, err := db.GetDocument("category", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get missing err = %v, want ErrNotFound", err)
	}
}

func TestDocumentNumbersKeepPrecision(t *testing.T) {
	db := testDB(t)
	ms := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC).UnixMilli()
	if err := db.InsertDocument("tasks", "t1", model.Document{"createdAt": ms, "completed": "true"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	docs, err := db.ListDocuments("tasks")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	n, ok := docs[0]["createdAt"].(json.Number)
	if !ok {
		t.Fatalf("createdAt type = %T, want json.Number", docs[0]["createdAt"])
	}
	if got, _ := n.Int64(); got != ms {
		t.Errorf("createdAt = %d, want %d", got, ms)
	}
	task := model.DecodeTask(docs[0], time.UTC)
	if task.CreatedAt == nil || task.CreatedAt.UnixMilli() != ms || !task.Completed {
		t.Errorf("decoded task = %+v", task)
	}
}

func TestCollectionRevision(t *testing.T) {
	db := testDB(t)

	rev, err := db.CollectionRevision("users")
	if err != nil || rev != 0 {
		t.Fatalf("initial rev = %d, %v; want 0", rev, err)
	}
	db.InsertDocument("users", "u1", model.Document{"name": "An"})
	db.UpdateDocument("users", "u1", model.Document{"status": "Banned"})
	rev, _ = db.CollectionRevision("users")
	if rev != 2 {
		t.Errorf("rev = %d, want 2", rev)
	}
	if other, _ := db.CollectionRevision("tasks"); other != 0 {
		t.Errorf("tasks rev = %d, want 0", other)
	}

	// A failed write leaves the revision alone.
	db.DeleteDocument("users", "nope")
	if rev, _ = db.CollectionRevision("users"); rev != 2 {
		t.Errorf("rev after failed delete = %d, want 2", rev)
	}
}

func TestDuplicateDocumentID(t *testing.T) {
	db := testDB(t)
	if err := db.InsertDocument("category", "c1", model.Document{}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.InsertDocument("category", "c1", model.Document{}); err == nil {
		t.Error("duplicate insert should fail")
	}
	// Same id in another collection is fine.
	if err := db.InsertDocument("tasks", "c1", model.Document{}); err != nil {
		t.Errorf("insert in other collection: %v", err)
	}
}

// --- Admin user tests ---

func TestAdminUsers(t *testing.T) {
	db := testDB(t)

	exists, err := db.AdminUserExists()
	if err != nil || exists {
		t.Fatalf("exists = %v, %v; want false", exists, err)
	}
	if err := db.CreateAdminUser("admin@example.com", "Administrator", "hash"); err != nil {
		t.Fatalf("create: %v", err)
	}
	u, err := db.GetAdminUser("admin@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Name != "Administrator" || u.PasswordHash != "hash" {
		t.Errorf("user = %+v", u)
	}
	if u.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if _, err := db.GetAdminUser("nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user err = %v, want ErrNotFound", err)
	}
	if err := db.CreateAdminUser("admin@example.com", "Again", "hash"); err == nil {
		t.Error("duplicate email should fail")
	}
}

// --- Audit tests ---

func TestAuditLog(t *testing.T) {
	db := testDB(t)
	db.AppendAudit("label", "c1", "created", "", `{"title":"Work"}`, "admin@example.com")
	db.AppendAudit("user", "u1", "status", "Active", "Banned", "admin@example.com")
	db.AppendAudit("label", "c1", "deleted", `{"title":"Work"}`, "", "admin@example.com")

	all, err := db.ListAuditLog(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Action != "deleted" {
		t.Errorf("audit = %d entries, first %q; want 3, deleted", len(all), all[0].Action)
	}

	label, err := db.ListEntityAudit("label", "c1")
	if err != nil {
		t.Fatalf("entity: %v", err)
	}
	if len(label) != 2 {
		t.Errorf("label entries = %d, want 2", len(label))
	}
}

// --- Outbox tests ---

func TestOutbox(t *testing.T) {
	db := testDB(t)
	db.EnqueueOutbox("taskadmin.events", []byte(`{"a":1}`), "label.created", "e1")
	db.EnqueueOutbox("taskadmin.events", []byte(`{"a":2}`), "label.deleted", "e2")

	msgs, err := db.ListPendingOutbox(10, 3)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(msgs) != 2 || msgs[0].EventID != "e1" || string(msgs[1].Payload) != `{"a":2}` {
		t.Fatalf("pending = %+v", msgs)
	}

	if err := db.AckOutbox(msgs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	for i := 0; i < 3; i++ {
		db.IncrementOutboxRetries(msgs[1].ID)
	}
	msgs, _ = db.ListPendingOutbox(10, 3)
	if len(msgs) != 0 {
		t.Errorf("pending after ack and retries = %d, want 0", len(msgs))
	}

	n, err := db.PurgeSentOutbox(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
}

func TestRebind(t *testing.T) {
	got := Rebind(`SELECT * FROM documents WHERE collection=? AND id=?`)
	want := `SELECT * FROM documents WHERE collection=$1 AND id=$2`
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}
}
