package www

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"taskadmin/engine"
	"taskadmin/model"
)

func (h *Handlers) apiDashboard(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, h.engine.Dashboard())
}

func (h *Handlers) apiTaskReport(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, h.engine.TaskReport())
}

func (h *Handlers) apiListUsers(w http.ResponseWriter, r *http.Request) {
	if s := r.URL.Query().Get("status"); s != "" && !model.UserStatus(s).Valid() {
		jsonError(w, "status must be Active or Banned", http.StatusBadRequest)
		return
	}
	jsonOK(w, h.engine.Users(userQuery(r)))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) apiSetUserStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	u, err := h.engine.SetUserStatus(r.Context(), chi.URLParam(r, "id"), model.UserStatus(req.Status), actor(r))
	if err != nil {
		jsonError(w, err.Error(), errorStatus(err))
		return
	}
	jsonOK(w, u)
}

func (h *Handlers) apiListLabels(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, h.engine.Labels())
}

type labelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func decodeLabel(r *http.Request) (engine.LabelInput, bool) {
	var req labelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return engine.LabelInput{}, false
	}
	return engine.LabelInput{Name: req.Name, Color: req.Color}, true
}

func (h *Handlers) apiCreateLabel(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeLabel(r)
	if !ok {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	label, err := h.engine.CreateLabel(r.Context(), in, actor(r))
	if err != nil {
		jsonError(w, err.Error(), errorStatus(err))
		return
	}
	jsonStatus(w, http.StatusCreated, label)
}

func (h *Handlers) apiUpdateLabel(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeLabel(r)
	if !ok {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	label, err := h.engine.UpdateLabel(r.Context(), chi.URLParam(r, "id"), in, actor(r))
	if err != nil {
		jsonError(w, err.Error(), errorStatus(err))
		return
	}
	jsonOK(w, label)
}

func (h *Handlers) apiDeleteLabel(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteLabel(r.Context(), chi.URLParam(r, "id"), actor(r)); err != nil {
		jsonError(w, err.Error(), errorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) apiAuditLog(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		jsonOK(w, []any{})
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	entries, err := h.audit.ListAuditLog(limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonOK(w, entries)
}

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":       "ok",
		"ready":        h.engine.Ready(),
		"generated_at": h.engine.Dashboard().GeneratedAt.Format(time.RFC3339),
		"sse_clients":  h.eventHub.ClientCount(),
	}
	for name, check := range h.health {
		resp[name] = check()
	}
	jsonOK(w, resp)
}
