package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taskadmin/model"
)

// stampLayout is fixed width so SQLite's TEXT ordering matches time order.
const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func stamp(t time.Time) string { return t.UTC().Format(stampLayout) }

// ListDocuments returns every document in a collection in insertion order.
// The row key is always present in the result under "id".
func (db *DB) ListDocuments(collection string) ([]model.Document, error) {
	rows, err := db.Query(db.Q(`SELECT id, body FROM documents WHERE collection=? ORDER BY created_at, id`), collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		d, err := decodeBody(body)
		if err != nil {
			// One bad row must not hide the rest of the collection.
			d = model.Document{}
		}
		if _, ok := d[model.IDField]; !ok {
			d[model.IDField] = id
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (db *DB) GetDocument(collection, id string) (model.Document, error) {
	var body []byte
	err := db.QueryRow(db.Q(`SELECT body FROM documents WHERE collection=? AND id=?`), collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	d, err := decodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	if _, ok := d[model.IDField]; !ok {
		d[model.IDField] = id
	}
	return d, nil
}

func (db *DB) InsertDocument(collection, id string, body model.Document) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	now := stamp(time.Now())
	return db.inTx(collection, func(tx *sql.Tx) error {
		_, err := tx.Exec(db.Q(`INSERT INTO documents (collection, id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
			collection, id, string(raw), now, now)
		if err != nil {
			return fmt.Errorf("insert %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

// UpdateDocument merges fields into the stored body. A nil value removes
// the key.
func (db *DB) UpdateDocument(collection, id string, fields model.Document) error {
	return db.inTx(collection, func(tx *sql.Tx) error {
		var body []byte
		err := tx.QueryRow(db.Q(`SELECT body FROM documents WHERE collection=? AND id=?`), collection, id).Scan(&body)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, id, err)
		}
		d, err := decodeBody(body)
		if err != nil {
			d = model.Document{}
		}
		for k, v := range fields {
			if v == nil {
				delete(d, k)
				continue
			}
			d[k] = v
		}
		raw, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, id, err)
		}
		_, err = tx.Exec(db.Q(`UPDATE documents SET body=?, updated_at=? WHERE collection=? AND id=?`),
			string(raw), stamp(time.Now()), collection, id)
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

func (db *DB) DeleteDocument(collection, id string) error {
	return db.inTx(collection, func(tx *sql.Tx) error {
		res, err := tx.Exec(db.Q(`DELETE FROM documents WHERE collection=? AND id=?`), collection, id)
		if err != nil {
			return fmt.Errorf("delete %s/%s: %w", collection, id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
		}
		return nil
	})
}

// CollectionRevision returns a counter bumped by every write to the
// collection, or 0 if it was never written.
func (db *DB) CollectionRevision(collection string) (int64, error) {
	var rev int64
	err := db.QueryRow(db.Q(`SELECT revision FROM collection_revisions WHERE collection=?`), collection).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return rev, err
}

// inTx runs fn and bumps the collection revision in the same transaction.
func (db *DB) inTx(collection string, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	bump := `INSERT INTO collection_revisions (collection, revision) VALUES (?, 1) ` +
		db.dialect.Upsert("collection", "revision = collection_revisions.revision + 1, updated_at = "+db.dialect.Now())
	if _, err := tx.Exec(db.Q(bump), collection); err != nil {
		return fmt.Errorf("bump revision %s: %w", collection, err)
	}
	return tx.Commit()
}

func decodeBody(body []byte) (model.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var d model.Document
	if err := dec.Decode(&d); err != nil {
		return nil, err
	}
	if d == nil {
		d = model.Document{}
	}
	return d, nil
}
