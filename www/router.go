package www

import (
	"html/template"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"taskadmin/engine"
	"taskadmin/logging"
	"taskadmin/metrics"
	"taskadmin/store"
)

// AuditLog lists recorded writes. *store.DB implements it.
type AuditLog interface {
	ListAuditLog(limit int) ([]*store.AuditEntry, error)
}

type Deps struct {
	Engine   *engine.Engine
	Accounts Accounts
	Audit    AuditLog // optional
	Metrics  *metrics.Metrics
	// Health holds extra connectivity checks reported by /api/health.
	Health map[string]func() bool
	Log    logrus.FieldLogger
}

type Handlers struct {
	engine   *engine.Engine
	sessions *SessionManager
	audit    AuditLog
	health   map[string]func() bool
	tmpls    map[string]*template.Template
	eventHub *EventHub
	log      logrus.FieldLogger
}

func NewRouter(d Deps) (http.Handler, func()) {
	log := d.Log
	if log == nil {
		log = logging.Component(nil, "www")
	}

	hub := NewEventHub(d.Metrics, log)
	hub.Start()
	hub.SetupEngineListeners(d.Engine.Events)

	webCfg := &d.Engine.AppConfig().Web
	sm := NewSessionManager(webCfg, d.Accounts, log)
	sm.ensureDefaultAdmin(webCfg)

	// Parse layout + partials as a base template set. Each page is cloned separately
	// to avoid the "last define wins" problem with {{define "content"}}.
	base := template.New("").Funcs(templateFuncs())
	base = template.Must(base.ParseFS(templateFS, "templates/layout.html", "templates/partials/*.html"))

	pages := []string{
		"templates/dashboard.html",
		"templates/users.html",
		"templates/tasks.html",
		"templates/labels.html",
		"templates/login.html",
	}
	tmpls := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		clone := template.Must(base.Clone())
		clone = template.Must(clone.ParseFS(templateFS, p))
		name := p[len("templates/"):]
		tmpls[name] = clone
	}

	h := &Handlers{
		engine:   d.Engine,
		sessions: sm,
		audit:    d.Audit,
		health:   d.Health,
		tmpls:    tmpls,
		eventHub: hub,
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(sm.Load)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	r.Handle("/metrics", d.Metrics.Handler())

	// Public routes
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)
	r.Get("/api/health", h.apiHealth)

	// Pages
	r.Group(func(r chi.Router) {
		r.Use(RequirePage)
		r.Use(middleware.Compress(5))
		r.Get("/", h.handleDashboard)
		r.Get("/users", h.handleUsers)
		r.Get("/tasks", h.handleTasks)
		r.Get("/labels", h.handleLabels)
		r.Post("/labels/save", h.handleLabelSave)
		r.Post("/labels/delete", h.handleLabelDelete)
		r.Post("/users/toggle-status", h.handleUserToggle)
	})

	// SSE and JSON API
	r.Group(func(r chi.Router) {
		r.Use(RequireAPI)
		r.Get("/events", hub.SSEHandler)
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Get("/dashboard", h.apiDashboard)
			r.Get("/reports/tasks", h.apiTaskReport)
			r.Get("/users", h.apiListUsers)
			r.Put("/users/{id}/status", h.apiSetUserStatus)
			r.Get("/labels", h.apiListLabels)
			r.Post("/labels", h.apiCreateLabel)
			r.Put("/labels/{id}", h.apiUpdateLabel)
			r.Delete("/labels/{id}", h.apiDeleteLabel)
			r.Get("/audit", h.apiAuditLog)
		})
	})

	return r, hub.Stop
}

func (h *Handlers) render(w http.ResponseWriter, name string, data map[string]any) {
	tmpl, ok := h.tmpls[name]
	if !ok {
		h.log.Errorf("render: template %q not found", name)
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		h.log.Errorf("render %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

// pageData seeds the values every page template reads.
func (h *Handlers) pageData(w http.ResponseWriter, r *http.Request, page string) map[string]any {
	return map[string]any{
		"Page":    page,
		"Session": CurrentSession(r.Context()),
		"Flashes": h.sessions.Flashes(w, r),
		"Ready":   h.engine.Ready(),
	}
}

func (h *Handlers) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if CurrentSession(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, "login.html", map[string]any{"Page": "login", "Email": ""})
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	email := r.FormValue("email")
	s, err := h.sessions.Authenticate(email, r.FormValue("password"))
	if err != nil {
		h.render(w, "login.html", map[string]any{
			"Page":  "login",
			"Email": email,
			"Error": "Invalid email or password",
		})
		return
	}
	if err := h.sessions.Login(w, r, s); err != nil {
		h.log.Errorf("auth: session save error: %v", err)
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	h.log.Infof("admin %s signed in from %s", s.Email, r.RemoteAddr)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		h.log.Warnf("auth: logout: %v", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
