package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"taskadmin/timeval"
)

// Document is one raw record as delivered by the document store. No field
// is guaranteed to exist.
type Document map[string]any

const IDField = "id"

// ID returns the document id, accepting both "id" and "_id".
func (d Document) ID() string {
	return stringField(d, IDField, "_id")
}

func DecodeUser(d Document, loc *time.Location) User {
	u := User{
		ID:     d.ID(),
		Name:   stringField(d, "name", "displayName", "username"),
		Email:  stringField(d, "email"),
		Status: ParseUserStatus(stringField(d, "status")),
	}
	for _, key := range []string{"createdAt", "registrationTimestamp", "registeredAt", "reg_date"} {
		if t, ok := timeval.Normalize(d[key], loc); ok {
			u.RegisteredAt = &t
			break
		}
	}
	return u
}

func DecodeCategory(d Document) Category {
	return Category{
		ID:    d.ID(),
		Title: stringField(d, "title", "name"),
		Color: stringField(d, "color"),
	}
}

func DecodeTask(d Document, loc *time.Location) Task {
	t := Task{
		ID:        d.ID(),
		Title:     stringField(d, "title", "name"),
		CreatedBy: stringField(d, "createdBy", "userId"),
		Category:  decodeCategoryRef(d["category"]),
		Completed: isTrue(d["completed"]),
	}
	if v, ok := timeval.Normalize(d["createdAt"], loc); ok {
		t.CreatedAt = &v
	}
	if v, ok := timeval.Normalize(d["dueDate"], loc); ok {
		t.DueAt = &v
	}
	if v, ok := timeval.Combine(d["dueDate"], d["dueTime"], loc); ok {
		t.Deadline = &v
	}
	if v, ok := timeval.Normalize(d["completedAt"], loc); ok {
		t.CompletedAt = &v
	}
	return t
}

func decodeCategoryRef(v any) CategoryRef {
	switch x := v.(type) {
	case nil:
		return Absent()
	case string:
		if s := strings.TrimSpace(x); s != "" {
			return Reference(s)
		}
		return Absent()
	case map[string]any:
		d := Document(x)
		id, title := d.ID(), stringField(d, "title", "name")
		if id == "" && title == "" {
			return Absent()
		}
		return Embedded(id, title, stringField(d, "color"))
	case json.Number:
		return Reference(x.String())
	case float64, int, int64:
		return Reference(fmt.Sprint(x))
	}
	return Absent()
}

func isTrue(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "true"
	}
	return false
}

// stringField returns the first non-blank string-like value among keys.
func stringField(d Document, keys ...string) string {
	for _, k := range keys {
		switch x := d[k].(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				return s
			}
		case json.Number:
			return x.String()
		case fmt.Stringer:
			if s := x.String(); s != "" {
				return s
			}
		case float64, int, int64:
			return fmt.Sprint(x)
		}
	}
	return ""
}

func DecodeUsers(docs []Document, loc *time.Location) []User {
	out := make([]User, 0, len(docs))
	for _, d := range docs {
		out = append(out, DecodeUser(d, loc))
	}
	return out
}

func DecodeTasks(docs []Document, loc *time.Location) []Task {
	out := make([]Task, 0, len(docs))
	for _, d := range docs {
		out = append(out, DecodeTask(d, loc))
	}
	return out
}

func DecodeCategories(docs []Document) []Category {
	out := make([]Category, 0, len(docs))
	for _, d := range docs {
		out = append(out, DecodeCategory(d))
	}
	return out
}
