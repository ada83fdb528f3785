package report

import (
	"time"

	"taskadmin/model"
)

type Options struct {
	LeaderboardSize int
	OverdueLimit    int
}

// Dashboard is everything the overview page shows.
type Dashboard struct {
	KPIs          KPIs               `json:"kpis"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	Distribution  []Slice            `json:"distribution"`
	DailyNewUsers []Point            `json:"daily_new_users"`
	WeeklyDue     []Point            `json:"weekly_due"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

// Views holds one full recomputation.
type Views struct {
	Dashboard  Dashboard      `json:"dashboard"`
	TaskReport TaskReportView `json:"task_report"`
	Labels     []LabelRow     `json:"labels"`
}

// Build runs every aggregation over one consistent set of snapshots.
func Build(users []model.User, tasks []model.Task, cats []model.Category, now time.Time, opts Options) Views {
	return Views{
		Dashboard: Dashboard{
			KPIs:          MonthlyKPIs(users, tasks, now),
			Leaderboard:   Leaderboard(users, tasks, now, opts.LeaderboardSize),
			Distribution:  Distribution(cats, tasks),
			DailyNewUsers: DailyNewUsers(users, now),
			WeeklyDue:     WeeklyDue(tasks, now),
			GeneratedAt:   now,
		},
		TaskReport: TaskReport(users, tasks, cats, now, opts.OverdueLimit),
		Labels:     LabelRows(cats, tasks),
	}
}
