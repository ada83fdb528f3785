package report

import (
	"time"

	"taskadmin/model"
)

type Point struct {
	Day   string `json:"day"`
	Date  string `json:"date"`
	Count int    `json:"count"`
}

const dateLayout = "2006-01-02"

// DailyNewUsers counts registrations per day of the current month. The result
// always has one point per calendar day.
func DailyNewUsers(users []model.User, now time.Time) []Point {
	month := MonthOf(now)
	days := DaysIn(now)
	points := make([]Point, days)
	for i := range points {
		d := month.Start.AddDate(0, 0, i)
		points[i] = Point{Day: d.Format("2"), Date: d.Format(dateLayout)}
	}
	for i := range users {
		r := users[i].RegisteredAt
		if !month.Contains(r) {
			continue
		}
		points[r.In(now.Location()).Day()-1].Count++
	}
	return points
}

// WeeklyDue counts deadlines falling on each day of the current Monday-start
// week. The result always has seven points.
func WeeklyDue(tasks []model.Task, now time.Time) []Point {
	week := WeekOf(now)
	points := make([]Point, 7)
	for i := range points {
		d := week.Start.AddDate(0, 0, i)
		points[i] = Point{Day: d.Format("Mon"), Date: d.Format(dateLayout)}
	}
	for i := range tasks {
		dl := tasks[i].Deadline
		if !week.Contains(dl) {
			continue
		}
		points[(int(dl.In(now.Location()).Weekday())+6)%7].Count++
	}
	return points
}
