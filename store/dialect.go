package store

import (
	"fmt"
	"strings"
	"time"
)

// Dialect covers the SQL that differs between drivers beyond placeholders.
type Dialect interface {
	Now() string
	// Upsert returns the suffix turning an INSERT into an upsert on key.
	Upsert(key, set string) string
}

type sqliteDialect struct{}

func (d sqliteDialect) Now() string { return "datetime('now','localtime')" }
func (d sqliteDialect) Upsert(key, set string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET %s", key, set)
}

type postgresDialect struct{}

func (d postgresDialect) Now() string { return "NOW()" }
func (d postgresDialect) Upsert(key, set string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", key, set)
}

// parseTime converts a scanned timestamp value to time.Time.
// Handles both SQLite (returns string) and Postgres (returns time.Time).
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return parseTime(string(t))
	case string:
		if t == "" {
			return time.Time{}
		}
		for _, layout := range []string{
			"2006-01-02 15:04:05",
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05-07:00",
			"2006-01-02 15:04:05.999999-07:00",
		} {
			if parsed, err := time.ParseInLocation(layout, t, time.Local); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}

// Rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func Rebind(query string) string {
	n := 0
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(fmt.Sprintf("$%d", n))
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
