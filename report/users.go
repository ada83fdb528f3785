package report

import (
	"strings"

	"taskadmin/model"
)

type UserRow struct {
	model.User
	TasksCreated   int `json:"tasks_created"`
	TasksCompleted int `json:"tasks_completed"`
	CompletionRate int `json:"completion_rate"`
}

type UserQuery struct {
	Search   string
	Status   model.UserStatus // empty means any
	Page     int              // 1-based
	PageSize int
}

type UserPage struct {
	Rows     []UserRow `json:"rows"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Pages    int       `json:"pages"`
}

const DefaultPageSize = 10

// UserRows joins each user with their task counts, then filters and pages.
// Search matches name or email, case-insensitively.
func UserRows(users []model.User, tasks []model.Task, q UserQuery) UserPage {
	created := make(map[string]int)
	done := make(map[string]int)
	for i := range tasks {
		created[tasks[i].CreatedBy]++
		if tasks[i].Completed {
			done[tasks[i].CreatedBy]++
		}
	}

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	rows := make([]UserRow, 0, len(users))
	for _, u := range users {
		if q.Status != "" && u.Status != q.Status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(u.Name), needle) &&
			!strings.Contains(strings.ToLower(u.Email), needle) {
			continue
		}
		rows = append(rows, UserRow{
			User:           u,
			TasksCreated:   created[u.ID],
			TasksCompleted: done[u.ID],
			CompletionRate: percent(done[u.ID], created[u.ID]),
		})
	}

	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := (len(rows) + size - 1) / size
	page := q.Page
	if page < 1 {
		page = 1
	}
	if pages > 0 && page > pages {
		page = pages
	}
	start := (page - 1) * size
	end := min(start+size, len(rows))
	if start > end {
		start = end
	}
	return UserPage{Rows: rows[start:end], Total: len(rows), Page: page, PageSize: size, Pages: pages}
}

type LabelRow struct {
	model.Category
	Tasks int `json:"tasks"`
}

// LabelRows lists the catalog in order with the number of tasks on each.
func LabelRows(cats []model.Category, tasks []model.Task) []LabelRow {
	usage := CategoryUsage(cats, tasks)
	out := make([]LabelRow, 0, len(cats))
	for _, c := range cats {
		out = append(out, LabelRow{Category: c, Tasks: usage[c.ID]})
	}
	return out
}
