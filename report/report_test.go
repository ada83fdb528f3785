package report

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"taskadmin/model"
)

var loc = time.UTC

func day(y int, m time.Month, d, h, min int) *time.Time {
	t := time.Date(y, m, d, h, min, 0, 0, loc)
	return &t
}

func decodeTasks(docs ...model.Document) []model.Task {
	return model.DecodeTasks(docs, loc)
}

func TestMonthlyKPIsCompletionRate(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, loc)
	tasks := decodeTasks(
		model.Document{"createdBy": "u1", "dueDate": "2024-06-05", "completed": true},
		model.Document{"createdBy": "u1", "dueDate": "2024-06-10", "completed": false},
	)
	got := MonthlyKPIs(nil, tasks, now)
	if got.TasksDueThisMonth != 2 || got.CompletedDueThisMonth != 1 {
		t.Errorf("due/completed = %d/%d, want 2/1", got.TasksDueThisMonth, got.CompletedDueThisMonth)
	}
	if got.AvgCompletionRateDueThisMonth != 50 {
		t.Errorf("rate = %d, want 50", got.AvgCompletionRateDueThisMonth)
	}
}

func TestMonthlyKPIsNothingDue(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, loc)
	tasks := decodeTasks(model.Document{"createdBy": "u1", "dueDate": "2024-07-01"})
	if got := MonthlyKPIs(nil, tasks, now).AvgCompletionRateDueThisMonth; got != 0 {
		t.Errorf("rate = %d, want 0", got)
	}
}

func TestMonthlyKPIsActiveUsers(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, loc)
	users := []model.User{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}}
	tasks := []model.Task{
		{CreatedBy: "u1", CreatedAt: day(2024, 6, 1, 0, 0)},
		{CreatedBy: "u1", CreatedAt: day(2024, 6, 2, 0, 0)},
		{CreatedBy: "u2", CreatedAt: day(2024, 6, 30, 23, 59)},
		{CreatedBy: "u3", CreatedAt: day(2024, 5, 31, 23, 59)},
		{CreatedBy: "", CreatedAt: day(2024, 6, 3, 0, 0)},
	}
	want := KPIs{TotalUsers: 3, NewTasksThisMonth: 4, ActiveUsersThisMonth: 2}
	if diff := cmp.Diff(want, MonthlyKPIs(users, tasks, now)); diff != "" {
		t.Errorf("KPIs mismatch (-want +got):\n%s", diff)
	}
}

func TestLeaderboard(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, loc)
	users := []model.User{{ID: "u1", Name: "An"}, {ID: "u2", Name: "Binh"}}
	due := day(2024, 6, 20, 0, 0)
	tasks := []model.Task{
		{CreatedBy: "u1", DueAt: due},
		{CreatedBy: "u2", DueAt: due, Completed: true},
		{CreatedBy: "ghost", DueAt: due, Completed: true},
		{CreatedBy: "u1", DueAt: due, Completed: true},
		{CreatedBy: "", DueAt: due},
		{CreatedBy: "u2", DueAt: day(2024, 7, 1, 0, 0), Completed: true},
	}
	want := []LeaderboardEntry{
		{UserID: "u1", Name: "An", TasksDue: 2, CompletedDue: 1, CompletionRate: 50, Known: true},
		{UserID: "u2", Name: "Binh", TasksDue: 1, CompletedDue: 1, CompletionRate: 100, Known: true},
		{UserID: "ghost", Name: "User ghost", TasksDue: 1, CompletedDue: 1, CompletionRate: 100},
		{UserID: "", Name: "Unknown user", TasksDue: 1},
	}
	if diff := cmp.Diff(want, Leaderboard(users, tasks, now, 5)); diff != "" {
		t.Errorf("Leaderboard mismatch (-want +got):\n%s", diff)
	}
}

func TestLeaderboardCapped(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, loc)
	var tasks []model.Task
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		tasks = append(tasks, model.Task{CreatedBy: id, DueAt: day(2024, 6, 16, 0, 0)})
	}
	got := Leaderboard(nil, tasks, now, 0)
	if len(got) != DefaultLeaderboardSize {
		t.Fatalf("len = %d, want %d", len(got), DefaultLeaderboardSize)
	}
	if got[0].UserID != "a" || got[4].UserID != "e" {
		t.Errorf("ties should keep first-seen order, got %v..%v", got[0].UserID, got[4].UserID)
	}
}

func TestDistributionExample(t *testing.T) {
	cats := []model.Category{{ID: "c1", Title: "Work", Color: "#fff"}}
	tasks := decodeTasks(model.Document{"category": "c1"}, model.Document{"category": nil})
	want := []Slice{
		{Label: "Work", Count: 1, Color: "#fff"},
		{Label: UncategorizedLabel, Count: 1, Color: UncategorizedColor},
	}
	if diff := cmp.Diff(want, Distribution(cats, tasks)); diff != "" {
		t.Errorf("Distribution mismatch (-want +got):\n%s", diff)
	}
}

func TestDistributionMatchingOrder(t *testing.T) {
	cats := []model.Category{
		{ID: "c1", Title: "Work"},
		{ID: "c2", Title: "Home", Color: "#0088FE"},
		{ID: "c3", Title: "Work"},
		{ID: "c4", Title: "Idle"},
	}
	tasks := []model.Task{
		{Category: model.Reference("c2")},
		{Category: model.Reference("Work")},
		{Category: model.Reference("c3")},
		{Category: model.Embedded("", "Gym", "#123456")},
		{Category: model.Embedded("c1", "", "")},
		{Category: model.Embedded("", "gym", "")},
		{Category: model.Reference("nope")},
		{Category: model.Absent()},
	}
	got := Distribution(cats, tasks)
	want := []Slice{
		{Label: "Work", Count: 2, Color: "#00C49F"},
		{Label: "Home", Count: 1, Color: "#0088FE"},
		{Label: "Work", Count: 1, Color: "#FFBB28"},
		{Label: "Gym", Count: 2, Color: "#123456"},
		{Label: UncategorizedLabel, Count: 2, Color: UncategorizedColor},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Distribution mismatch (-want +got):\n%s", diff)
	}

	sum := 0
	for _, s := range got {
		sum += s.Count
	}
	if sum != len(tasks) {
		t.Errorf("slice counts sum to %d, want %d", sum, len(tasks))
	}
}

func TestCategoryUsage(t *testing.T) {
	cats := []model.Category{{ID: "c1", Title: "Work"}, {ID: "c2", Title: "Home"}}
	tasks := []model.Task{{Category: model.Reference("Work")}, {Category: model.Reference("zzz")}}
	want := map[string]int{"c1": 1, "c2": 0}
	if diff := cmp.Diff(want, CategoryUsage(cats, tasks)); diff != "" {
		t.Errorf("CategoryUsage mismatch (-want +got):\n%s", diff)
	}
}

func TestDailyNewUsers(t *testing.T) {
	now := time.Date(2024, 2, 10, 8, 0, 0, 0, loc)
	users := []model.User{
		{ID: "a", RegisteredAt: day(2024, 2, 1, 0, 0)},
		{ID: "b", RegisteredAt: day(2024, 2, 29, 23, 0)},
		{ID: "c", RegisteredAt: day(2024, 2, 29, 1, 0)},
		{ID: "d", RegisteredAt: day(2024, 3, 1, 0, 0)},
		{ID: "e"},
	}
	got := DailyNewUsers(users, now)
	if len(got) != 29 {
		t.Fatalf("len = %d, want 29 for a leap February", len(got))
	}
	if got[0].Count != 1 || got[28].Count != 2 || got[28].Date != "2024-02-29" {
		t.Errorf("first/last = %+v / %+v", got[0], got[28])
	}
}

func TestWeeklyDueEmptyWeek(t *testing.T) {
	now := time.Date(2024, 6, 12, 9, 0, 0, 0, loc) // Wednesday
	got := WeeklyDue(nil, now)
	want := []Point{
		{Day: "Mon", Date: "2024-06-10"},
		{Day: "Tue", Date: "2024-06-11"},
		{Day: "Wed", Date: "2024-06-12"},
		{Day: "Thu", Date: "2024-06-13"},
		{Day: "Fri", Date: "2024-06-14"},
		{Day: "Sat", Date: "2024-06-15"},
		{Day: "Sun", Date: "2024-06-16"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("WeeklyDue mismatch (-want +got):\n%s", diff)
	}
}

func TestWeeklyDueUsesDeadline(t *testing.T) {
	now := time.Date(2024, 6, 16, 22, 0, 0, 0, loc) // Sunday
	tasks := decodeTasks(
		model.Document{"dueDate": "2024-06-10", "dueTime": "08:00"},
		model.Document{"dueDate": "2024-06-16", "dueTime": "23:59"},
		model.Document{"dueDate": "2024-06-17"},
		model.Document{"dueTime": "10:00"},
	)
	got := WeeklyDue(tasks, now)
	if got[0].Count != 1 || got[6].Count != 1 {
		t.Errorf("Mon/Sun = %d/%d, want 1/1", got[0].Count, got[6].Count)
	}
}

func TestClassify(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, loc)
	tests := []struct {
		name string
		task model.Task
		want Status
	}{
		{"completed wins", model.Task{Completed: true, Deadline: day(2024, 6, 1, 0, 0)}, StatusCompleted},
		{"no deadline", model.Task{}, StatusPending},
		{"past", model.Task{Deadline: day(2024, 6, 15, 11, 59)}, StatusOverdue},
		{"exactly now", model.Task{Deadline: &now}, StatusPending},
		{"future", model.Task{Deadline: day(2024, 6, 16, 0, 0)}, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(&tt.task, now); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyUnparseableDeadline(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, loc)
	for _, d := range []model.Document{
		{"dueDate": "not a date"},
		{"dueDate": nil, "dueTime": "09:00"},
		{"dueDate": ""},
	} {
		task := model.DecodeTask(d, loc)
		if got := Classify(&task, now); got != StatusPending {
			t.Errorf("%v: Classify = %s, want Pending", d, got)
		}
	}
}

func TestTaskReport(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, loc)
	users := []model.User{{ID: "u1", Name: "An"}}
	cats := []model.Category{{ID: "c1", Title: "Work"}}
	created := day(2024, 6, 2, 0, 0)
	tasks := []model.Task{
		{ID: "t1", CreatedBy: "u1", CreatedAt: created, Category: model.Reference("c1"), Deadline: day(2024, 6, 10, 12, 0)},
		{ID: "t2", CreatedBy: "u1", CreatedAt: created, Deadline: day(2024, 6, 14, 12, 0)},
		{ID: "t3", CreatedBy: "u1", CreatedAt: created, Completed: true, Deadline: day(2024, 6, 5, 0, 0), CompletedAt: day(2024, 6, 4, 0, 0)},
		{ID: "t4", CreatedBy: "u1", CreatedAt: created, Completed: true, Deadline: day(2024, 6, 5, 0, 0), CompletedAt: day(2024, 6, 6, 0, 0)},
		{ID: "t5", CreatedBy: "u1", CreatedAt: created, Completed: true},
		{ID: "t6", CreatedBy: "u9", CreatedAt: day(2024, 5, 1, 0, 0), Deadline: day(2024, 6, 16, 6, 0)},
		{ID: "t7", CreatedBy: "u1", CreatedAt: created},
	}
	got := TaskReport(users, tasks, cats, now, 1)

	wantCounts := StatusCounts{Total: 6, Completed: 3, Pending: 1, Overdue: 2}
	if diff := cmp.Diff(wantCounts, got.Month); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if got.OnTimeRate != 50 {
		t.Errorf("OnTimeRate = %d, want 50", got.OnTimeRate)
	}
	if len(got.Overdue) != 1 || got.Overdue[0].TaskID != "t1" {
		t.Fatalf("Overdue = %+v, want only t1 (most overdue, limit 1)", got.Overdue)
	}
	if o := got.Overdue[0]; o.DaysOverdue != 5 || o.UserName != "An" || o.Label != "Work" {
		t.Errorf("overdue row = %+v", o)
	}
	if len(got.DueSoon) != 1 || got.DueSoon[0].TaskID != "t6" || got.DueSoon[0].UserName != "User u9" {
		t.Errorf("DueSoon = %+v, want t6 from last month", got.DueSoon)
	}
	if len(got.Tasks) != 6 {
		t.Errorf("len(Tasks) = %d, want 6", len(got.Tasks))
	}
}

func TestUserRows(t *testing.T) {
	users := []model.User{
		{ID: "u1", Name: "Nguyen Van A", Email: "a@example.com", Status: model.StatusActive},
		{ID: "u2", Name: "Tran B", Email: "b@example.com", Status: model.StatusBanned},
		{ID: "u3", Name: "Le C", Email: "NGUYEN@example.com", Status: model.StatusActive},
	}
	tasks := []model.Task{
		{CreatedBy: "u1", Completed: true},
		{CreatedBy: "u1"},
		{CreatedBy: "u1"},
	}

	p := UserRows(users, tasks, UserQuery{Search: "nguyen"})
	if p.Total != 2 {
		t.Fatalf("Total = %d, want 2", p.Total)
	}
	if p.Rows[0].TasksCreated != 3 || p.Rows[0].CompletionRate != 33 {
		t.Errorf("u1 row = %+v", p.Rows[0])
	}
	if p.Rows[1].CompletionRate != 0 {
		t.Errorf("u3 rate = %d, want 0", p.Rows[1].CompletionRate)
	}

	p = UserRows(users, tasks, UserQuery{Status: model.StatusBanned})
	if p.Total != 1 || p.Rows[0].ID != "u2" {
		t.Errorf("banned filter = %+v", p.Rows)
	}

	p = UserRows(users, tasks, UserQuery{Page: 9, PageSize: 2})
	if p.Page != 2 || p.Pages != 2 || len(p.Rows) != 1 || p.Rows[0].ID != "u3" {
		t.Errorf("page clamp = %+v", p)
	}
}

func TestBuildIsDense(t *testing.T) {
	now := time.Date(2024, 4, 3, 0, 0, 0, 0, loc)
	v := Build(nil, nil, nil, now, Options{})
	if len(v.Dashboard.DailyNewUsers) != 30 || len(v.Dashboard.WeeklyDue) != 7 {
		t.Errorf("series lengths = %d/%d, want 30/7", len(v.Dashboard.DailyNewUsers), len(v.Dashboard.WeeklyDue))
	}
	if len(v.Dashboard.Distribution) != 0 || len(v.Dashboard.Leaderboard) != 0 {
		t.Errorf("empty input should give empty slices: %+v", v.Dashboard)
	}
}
