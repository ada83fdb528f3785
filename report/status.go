package report

import (
	"sort"
	"time"

	"taskadmin/model"
)

type Status string

const (
	StatusCompleted Status = "Completed"
	StatusPending   Status = "Pending"
	StatusOverdue   Status = "Overdue"
)

const DefaultOverdueLimit = 20

// Classify puts a task in exactly one status. A task without a resolvable
// deadline is never overdue.
func Classify(t *model.Task, now time.Time) Status {
	switch {
	case t.Completed:
		return StatusCompleted
	case t.Deadline == nil:
		return StatusPending
	case t.Deadline.Before(now):
		return StatusOverdue
	default:
		return StatusPending
	}
}

type StatusCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	Overdue   int `json:"overdue"`
}

type TaskRow struct {
	TaskID      string     `json:"task_id"`
	Title       string     `json:"title"`
	UserID      string     `json:"user_id"`
	UserName    string     `json:"user_name"`
	Label       string     `json:"label"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Status      Status     `json:"status"`
	DaysOverdue int        `json:"days_overdue,omitempty"`
}

type TaskReportView struct {
	Month      StatusCounts `json:"month"`
	DueSoon    []TaskRow    `json:"due_soon"`
	OnTimeRate int          `json:"on_time_rate"`
	Overdue    []TaskRow    `json:"overdue"`
	Tasks      []TaskRow    `json:"tasks"`
}

// TaskReport classifies the tasks created this month. DueSoon looks at every
// open task regardless of creation date.
func TaskReport(users []model.User, tasks []model.Task, cats []model.Category, now time.Time, overdueLimit int) TaskReportView {
	if overdueLimit <= 0 {
		overdueLimit = DefaultOverdueLimit
	}
	month := MonthOf(now)
	names := userIndex(users)
	catIdx := indexCatalog(cats)
	soon := now.Add(24 * time.Hour)

	row := func(t *model.Task, st Status) TaskRow {
		name, _ := names.displayName(t.CreatedBy)
		r := TaskRow{
			TaskID:   t.ID,
			Title:    t.Title,
			UserID:   t.CreatedBy,
			UserName: name,
			Label:    categoryLabel(catIdx, cats, t.Category),
			Deadline: t.Deadline,
			Status:   st,
		}
		if st == StatusOverdue {
			r.DaysOverdue = int(now.Sub(*t.Deadline) / (24 * time.Hour))
		}
		return r
	}

	v := TaskReportView{DueSoon: []TaskRow{}, Overdue: []TaskRow{}, Tasks: []TaskRow{}}
	withDeadline, onTime := 0, 0

	for i := range tasks {
		t := &tasks[i]
		st := Classify(t, now)

		if !t.Completed && t.Deadline != nil && !t.Deadline.Before(now) && !t.Deadline.After(soon) {
			v.DueSoon = append(v.DueSoon, row(t, st))
		}
		if !month.Contains(t.CreatedAt) {
			continue
		}

		v.Month.Total++
		switch st {
		case StatusCompleted:
			v.Month.Completed++
			if t.Deadline != nil {
				withDeadline++
				if t.CompletedAt == nil || !t.CompletedAt.After(*t.Deadline) {
					onTime++
				}
			}
		case StatusOverdue:
			v.Month.Overdue++
			v.Overdue = append(v.Overdue, row(t, st))
		default:
			v.Month.Pending++
		}
		v.Tasks = append(v.Tasks, row(t, st))
	}

	v.OnTimeRate = percent(onTime, withDeadline)
	sort.SliceStable(v.DueSoon, func(i, j int) bool {
		return v.DueSoon[i].Deadline.Before(*v.DueSoon[j].Deadline)
	})
	sort.SliceStable(v.Overdue, func(i, j int) bool {
		return v.Overdue[i].Deadline.Before(*v.Overdue[j].Deadline)
	})
	if len(v.Overdue) > overdueLimit {
		v.Overdue = v.Overdue[:overdueLimit]
	}
	return v
}
