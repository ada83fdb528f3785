package engine

import (
	"time"

	"taskadmin/model"
)

const (
	EventViewsUpdated EventType = iota + 1
	EventLabelChanged
	EventUserStatusChanged
	EventWatchError
)

// --- Event payloads ---

// ViewsUpdatedEvent follows every recomputation. Trigger is the collection
// whose snapshot caused it, or "refresh" for the clock.
type ViewsUpdatedEvent struct {
	Trigger     string
	GeneratedAt time.Time
}

type LabelChangedEvent struct {
	Action string // created, updated, deleted
	Label  model.Category
	Old    *model.Category
	Actor  string
}

type UserStatusChangedEvent struct {
	UserID    string
	OldStatus model.UserStatus
	NewStatus model.UserStatus
	Actor     string
}

type WatchErrorEvent struct {
	Collection string
	Err        string
}
