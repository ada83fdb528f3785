package www

import (
	"net/http"
	"strconv"
	"strings"

	"taskadmin/engine"
	"taskadmin/model"
	"taskadmin/report"
)

func (h *Handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := h.pageData(w, r, "dashboard")
	data["Dashboard"] = h.engine.Dashboard()
	h.render(w, "dashboard.html", data)
}

func (h *Handlers) handleUsers(w http.ResponseWriter, r *http.Request) {
	q := userQuery(r)
	data := h.pageData(w, r, "users")
	data["Users"] = h.engine.Users(q)
	data["Search"] = q.Search
	data["Status"] = string(q.Status)
	h.render(w, "users.html", data)
}

func (h *Handlers) handleTasks(w http.ResponseWriter, r *http.Request) {
	data := h.pageData(w, r, "tasks")
	data["Report"] = h.engine.TaskReport()
	h.render(w, "tasks.html", data)
}

func (h *Handlers) handleLabels(w http.ResponseWriter, r *http.Request) {
	data := h.pageData(w, r, "labels")
	data["Labels"] = h.engine.Labels()
	data["EditID"] = r.URL.Query().Get("edit")
	h.render(w, "labels.html", data)
}

// handleLabelSave creates a label, or updates one when the form carries an id.
func (h *Handlers) handleLabelSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in := engine.LabelInput{Name: r.FormValue("name"), Color: r.FormValue("color")}
	id := strings.TrimSpace(r.FormValue("id"))

	var err error
	if id == "" {
		_, err = h.engine.CreateLabel(r.Context(), in, actor(r))
	} else {
		_, err = h.engine.UpdateLabel(r.Context(), id, in, actor(r))
	}
	switch {
	case err != nil:
		h.log.Warnf("label save: %v", err)
		h.sessions.AddFlash(w, r, flashMessage(err))
	case id == "":
		h.sessions.AddFlash(w, r, "Label created")
	default:
		h.sessions.AddFlash(w, r, "Label updated")
	}
	http.Redirect(w, r, "/labels", http.StatusSeeOther)
}

func (h *Handlers) handleLabelDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.DeleteLabel(r.Context(), r.FormValue("id"), actor(r)); err != nil {
		h.log.Warnf("label delete: %v", err)
		h.sessions.AddFlash(w, r, flashMessage(err))
	} else {
		h.sessions.AddFlash(w, r, "Label deleted")
	}
	http.Redirect(w, r, "/labels", http.StatusSeeOther)
}

func (h *Handlers) handleUserToggle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	u, err := h.engine.ToggleUserStatus(r.Context(), r.FormValue("id"), actor(r))
	if err != nil {
		h.log.Warnf("user toggle: %v", err)
		h.sessions.AddFlash(w, r, flashMessage(err))
	} else {
		h.sessions.AddFlash(w, r, "User status set to "+string(u.Status))
	}

	back := "/users"
	if qs := r.FormValue("return"); strings.HasPrefix(qs, "?") {
		back += qs
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// flashMessage turns an engine error into something fit for the page.
func flashMessage(err error) string {
	switch errorStatus(err) {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusNotFound:
		return "That record no longer exists"
	default:
		return "The change could not be saved, try again"
	}
}

func userQuery(r *http.Request) report.UserQuery {
	q := r.URL.Query()
	uq := report.UserQuery{Search: q.Get("q")}
	switch s := q.Get("status"); s {
	case string(model.StatusActive), string(model.StatusBanned):
		uq.Status = model.UserStatus(s)
	}
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		uq.Page = n
	}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n > 0 && n <= 100 {
		uq.PageSize = n
	}
	return uq
}
