package www

import (
	"context"
	"encoding/gob"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"taskadmin/config"
	"taskadmin/store"
)

const sessionName = "taskadmin-session"

// Session is the signed-in admin restored from the cookie on every request.
type Session struct {
	Email string
	Name  string
}

func init() {
	gob.Register(Session{})
}

// Accounts is the admin credential table. *store.DB implements it.
type Accounts interface {
	GetAdminUser(email string) (*store.AdminUser, error)
	CreateAdminUser(email, name, passwordHash string) error
	AdminUserExists() (bool, error)
}

type ctxKey struct{}

// SessionManager owns the cookie store. Its middleware attaches the current
// session, if any, to the request context.
type SessionManager struct {
	cookies  *sessions.CookieStore
	accounts Accounts
	log      logrus.FieldLogger
}

func NewSessionManager(cfg *config.WebConfig, accounts Accounts, log logrus.FieldLogger) *SessionManager {
	secret := cfg.SessionSecret
	if secret == "" {
		secret = "taskadmin-default-secret-change-me"
	}
	s := sessions.NewCookieStore([]byte(secret))
	s.Options.Path = "/"
	s.Options.HttpOnly = true
	s.Options.Secure = cfg.SecureCookies
	s.Options.SameSite = http.SameSiteLaxMode
	s.Options.MaxAge = 7 * 24 * 3600
	return &SessionManager{cookies: s, accounts: accounts, log: log}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var errBadCredentials = errors.New("invalid email or password")

// Authenticate checks the credentials against the admin table.
func (m *SessionManager) Authenticate(email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, errBadCredentials
	}
	u, err := m.accounts.GetAdminUser(email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.log.Warnf("login lookup %s: %v", email, err)
		}
		return Session{}, errBadCredentials
	}
	if !checkPassword(u.PasswordHash, password) {
		return Session{}, errBadCredentials
	}
	return Session{Email: u.Email, Name: u.Name}, nil
}

func (m *SessionManager) Login(w http.ResponseWriter, r *http.Request, s Session) error {
	sess, _ := m.cookies.Get(r, sessionName)
	sess.Values["admin"] = s
	return sess.Save(r, w)
}

// Logout clears the session cookie.
func (m *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.cookies.Get(r, sessionName)
	delete(sess.Values, "admin")
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// Load restores the session from the cookie. An unreadable cookie counts as
// signed out.
func (m *SessionManager) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.cookies.Get(r, sessionName)
		if err == nil {
			if s, ok := sess.Values["admin"].(Session); ok && s.Email != "" {
				r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, &s))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentSession returns the signed-in admin or nil.
func CurrentSession(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// RequirePage redirects anonymous requests to the login page.
func RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentSession(r.Context()) == nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAPI answers anonymous requests with 401 JSON.
func RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentSession(r.Context()) == nil {
			jsonError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AddFlash queues a one-shot message shown on the next page render.
func (m *SessionManager) AddFlash(w http.ResponseWriter, r *http.Request, msg string) {
	sess, _ := m.cookies.Get(r, sessionName)
	sess.AddFlash(msg)
	if err := sess.Save(r, w); err != nil {
		m.log.Debugf("flash save: %v", err)
	}
}

func (m *SessionManager) Flashes(w http.ResponseWriter, r *http.Request) []string {
	sess, err := m.cookies.Get(r, sessionName)
	if err != nil {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := sess.Save(r, w); err != nil {
		m.log.Debugf("flash save: %v", err)
	}
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ensureDefaultAdmin creates the configured admin when the table is empty.
func (m *SessionManager) ensureDefaultAdmin(cfg *config.WebConfig) {
	exists, err := m.accounts.AdminUserExists()
	if err != nil || exists {
		if err != nil {
			m.log.Warnf("admin bootstrap: %v", err)
		}
		return
	}
	hash, err := hashPassword(cfg.AdminPassword)
	if err != nil {
		m.log.Warnf("admin bootstrap: %v", err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if err := m.accounts.CreateAdminUser(email, cfg.AdminName, hash); err != nil {
		m.log.Warnf("admin bootstrap: %v", err)
		return
	}
	m.log.Infof("created default admin %s", email)
}
