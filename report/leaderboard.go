package report

import (
	"sort"
	"time"

	"taskadmin/model"
)

const DefaultLeaderboardSize = 5

type LeaderboardEntry struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	TasksDue       int    `json:"tasks_due"`
	CompletedDue   int    `json:"completed_due"`
	CompletionRate int    `json:"completion_rate"`
	Known          bool   `json:"known"`
}

// Leaderboard ranks creators of tasks due this month by completed count.
// Ties keep first-seen order. Creators with no matching user still get an
// entry under a placeholder name.
func Leaderboard(users []model.User, tasks []model.Task, now time.Time, size int) []LeaderboardEntry {
	if size <= 0 {
		size = DefaultLeaderboardSize
	}
	month := MonthOf(now)
	names := userIndex(users)

	var order []string
	byUser := make(map[string]*LeaderboardEntry)
	for i := range tasks {
		t := &tasks[i]
		if !month.Contains(t.DueAt) {
			continue
		}
		e, ok := byUser[t.CreatedBy]
		if !ok {
			name, known := names.displayName(t.CreatedBy)
			e = &LeaderboardEntry{UserID: t.CreatedBy, Name: name, Known: known}
			byUser[t.CreatedBy] = e
			order = append(order, t.CreatedBy)
		}
		e.TasksDue++
		if t.Completed {
			e.CompletedDue++
		}
	}

	entries := make([]LeaderboardEntry, 0, len(order))
	for _, id := range order {
		e := byUser[id]
		e.CompletionRate = percent(e.CompletedDue, e.TasksDue)
		entries = append(entries, *e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CompletedDue > entries[j].CompletedDue
	})
	if len(entries) > size {
		entries = entries[:size]
	}
	return entries
}

type users map[string]*model.User

func userIndex(list []model.User) users {
	idx := make(users, len(list))
	for i := range list {
		if list[i].ID != "" {
			idx[list[i].ID] = &list[i]
		}
	}
	return idx
}

// displayName resolves a user id to something printable. The bool is false
// when the id matched no user.
func (u users) displayName(id string) (string, bool) {
	if id == "" {
		return "Unknown user", false
	}
	usr, ok := u[id]
	if !ok {
		return "User " + id, false
	}
	switch {
	case usr.Name != "":
		return usr.Name, true
	case usr.Email != "":
		return usr.Email, true
	}
	return "User " + id, true
}
