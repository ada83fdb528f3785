package www

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"taskadmin/engine"
	"taskadmin/model"
	"taskadmin/report"
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"timeAgo": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			d := time.Since(t)
			switch {
			case d < time.Minute:
				return "just now"
			case d < time.Hour:
				m := int(d.Minutes())
				if m == 1 {
					return "1 minute ago"
				}
				return fmt.Sprintf("%d minutes ago", m)
			case d < 24*time.Hour:
				h := int(d.Hours())
				if h == 1 {
					return "1 hour ago"
				}
				return fmt.Sprintf("%d hours ago", h)
			default:
				days := int(d.Hours() / 24)
				if days == 1 {
					return "1 day ago"
				}
				return fmt.Sprintf("%d days ago", days)
			}
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format("2006-01-02 15:04")
		},
		"formatTimePtr": func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return t.Format("2006-01-02 15:04")
		},
		"formatDate": func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return t.Format("Jan 2, 2006")
		},
		"statusColor": func(s report.Status) string {
			switch s {
			case report.StatusCompleted:
				return "badge-completed"
			case report.StatusOverdue:
				return "badge-overdue"
			default:
				return "badge-pending"
			}
		},
		"userStatusColor": func(s model.UserStatus) string {
			if s == model.StatusBanned {
				return "badge-banned"
			}
			return "badge-active"
		},
		"toggleLabel": func(s model.UserStatus) string {
			if s == model.StatusBanned {
				return "Unban"
			}
			return "Ban"
		},
		// barHeight scales a count against the largest point for the CSS bars.
		"barHeight": func(count int, points []report.Point) int {
			peak := 0
			for _, p := range points {
				peak = max(peak, p.Count)
			}
			if peak == 0 {
				return 0
			}
			return count * 100 / peak
		},
		"share": func(count int, slices []report.Slice) int {
			total := 0
			for _, s := range slices {
				total += s.Count
			}
			if total == 0 {
				return 0
			}
			return count * 100 / total
		},
		"initial": func(name string) string {
			name = strings.TrimSpace(name)
			if name == "" {
				return "?"
			}
			return strings.ToUpper(string([]rune(name)[:1]))
		},
		"upper": strings.ToUpper,
		"add": func(a, b int) int {
			return a + b
		},
	}
}

func jsonOK(w http.ResponseWriter, data any) {
	jsonStatus(w, http.StatusOK, data)
}

func jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}

// errorStatus maps engine errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidLabel), errors.Is(err, engine.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// actor names the signed-in admin in audit records.
func actor(r *http.Request) string {
	if s := CurrentSession(r.Context()); s != nil {
		return s.Email
	}
	return "anonymous"
}
