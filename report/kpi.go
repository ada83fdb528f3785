package report

import (
	"time"

	"taskadmin/model"
)

type KPIs struct {
	TotalUsers                    int `json:"total_users"`
	NewTasksThisMonth             int `json:"new_tasks_this_month"`
	TasksDueThisMonth             int `json:"tasks_due_this_month"`
	CompletedDueThisMonth         int `json:"completed_due_this_month"`
	AvgCompletionRateDueThisMonth int `json:"avg_completion_rate_due_this_month"`
	ActiveUsersThisMonth          int `json:"active_users_this_month"`
}

// MonthlyKPIs makes one pass over tasks. Creation and due predicates are
// independent: a task due this month counts toward the rate no matter when
// it was created.
func MonthlyKPIs(users []model.User, tasks []model.Task, now time.Time) KPIs {
	month := MonthOf(now)
	k := KPIs{TotalUsers: len(users)}
	active := make(map[string]struct{})

	for i := range tasks {
		t := &tasks[i]
		if month.Contains(t.CreatedAt) {
			k.NewTasksThisMonth++
			if t.CreatedBy != "" {
				active[t.CreatedBy] = struct{}{}
			}
		}
		if month.Contains(t.DueAt) {
			k.TasksDueThisMonth++
			if t.Completed {
				k.CompletedDueThisMonth++
			}
		}
	}

	k.AvgCompletionRateDueThisMonth = percent(k.CompletedDueThisMonth, k.TasksDueThisMonth)
	k.ActiveUsersThisMonth = len(active)
	return k
}
