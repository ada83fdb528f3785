// Package model holds the typed views of the users, tasks and category
// documents, decoded once at ingestion so aggregation never looks at raw
// document shapes.
package model

import (
	"time"
)

type UserStatus string

const (
	StatusActive UserStatus = "Active"
	StatusBanned UserStatus = "Banned"
)

// ParseUserStatus maps stored values onto the two statuses. Unknown or
// missing values are Active.
func ParseUserStatus(s string) UserStatus {
	switch s {
	case "Banned", "banned", "BANNED":
		return StatusBanned
	default:
		return StatusActive
	}
}

// Toggle flips Active and Banned.
func (s UserStatus) Toggle() UserStatus {
	if s == StatusBanned {
		return StatusActive
	}
	return StatusBanned
}

func (s UserStatus) Valid() bool {
	return s == StatusActive || s == StatusBanned
}

type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	Status       UserStatus `json:"status"`
}

type Category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Color string `json:"color"`
}

// RefKind tags the shape a task's category field was stored in.
type RefKind int

const (
	RefAbsent RefKind = iota
	RefReference
	RefEmbedded
)

// CategoryRef is the resolved form of a task's category field: a string
// reference (id or title), an embedded category object, or nothing.
type CategoryRef struct {
	Kind  RefKind `json:"kind"`
	Value string  `json:"value,omitempty"` // Reference: the stored string
	ID    string  `json:"id,omitempty"`    // Embedded
	Title string  `json:"title,omitempty"` // Embedded
	Color string  `json:"color,omitempty"` // Embedded
}

func Reference(v string) CategoryRef { return CategoryRef{Kind: RefReference, Value: v} }

func Embedded(id, title, color string) CategoryRef {
	return CategoryRef{Kind: RefEmbedded, ID: id, Title: title, Color: color}
}

func Absent() CategoryRef { return CategoryRef{Kind: RefAbsent} }

type Task struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	CreatedBy   string      `json:"created_by"`
	Category    CategoryRef `json:"category"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
	DueAt       *time.Time  `json:"due_at,omitempty"`   // dueDate alone
	Deadline    *time.Time  `json:"deadline,omitempty"` // dueDate combined with dueTime
	Completed   bool        `json:"completed"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}
