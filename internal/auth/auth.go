package auth

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/tahcohcat/gocalm-web/internal/logger"
	"github.com/tahcohcat/gocalm-web/internal/models"
	"github.com/tahcohcat/gocalm-web/internal/services"
)

const (
	sessionName   = "gocalm-session"
	userIDKey     = "user_id"
	sessionMaxAge = 7 * 24 * 3600
)

type ctxKey struct{}

// Manager owns the cookie store and the login/registration pages.
type Manager struct {
	Store        *sessions.CookieStore
	users        *services.UserService
	templatesDir string
	logger       *logger.Log
}

func NewManager(secret string, users *services.UserService, templatesDir string) *Manager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{Store: store, users: users, templatesDir: templatesDir, logger: logger.New()}
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (m *Manager) render(w http.ResponseWriter, name string, status int, data any) {
	tmpl, err := template.ParseFiles(filepath.Join(m.templatesDir, name))
	if err != nil {
		m.logger.WithError(err).Error("Failed to parse template " + name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		m.logger.WithError(err).Error("Failed to execute template " + name)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// fail answers a rejected login or registration in the caller's format.
func (m *Manager) fail(w http.ResponseWriter, r *http.Request, page string, status int, msg string) {
	if wantsJSON(r) {
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	m.render(w, page, status, map[string]string{"Error": msg})
}

func (m *Manager) startSession(w http.ResponseWriter, r *http.Request, user *models.User) error {
	session, _ := m.Store.Get(r, sessionName)
	session.Values[userIDKey] = user.ID
	return session.Save(r, w)
}

func (m *Manager) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		m.render(w, "login.html", http.StatusOK, nil)
		return
	}

	var req models.LoginRequest
	if wantsJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	} else {
		r.ParseForm()
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	user, err := m.users.AuthenticateUser(&req)
	if err != nil {
		msg := "Invalid username or password"
		if !errors.Is(err, services.ErrInvalidCredentials) {
			msg = err.Error()
		}
		m.fail(w, r, "login.html", http.StatusUnauthorized, msg)
		return
	}

	if err := m.startSession(w, r, user); err != nil {
		m.logger.WithError(err).Error("Failed to save session")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, user)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (m *Manager) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		m.render(w, "register.html", http.StatusOK, nil)
		return
	}

	var req models.CreateUserRequest
	if wantsJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	} else {
		r.ParseForm()
		req.Username = r.FormValue("username")
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("password")
		req.DisplayName = r.FormValue("display_name")
	}

	user, err := m.users.CreateUser(&req)
	if err != nil {
		m.fail(w, r, "register.html", http.StatusBadRequest, err.Error())
		return
	}

	m.logger.WithField("user_id", user.ID).Info("New user registered")

	if err := m.startSession(w, r, user); err != nil {
		m.logger.WithError(err).Error("Failed to save session")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusCreated, user)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (m *Manager) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := m.Store.Get(r, sessionName)
	delete(session.Values, userIDKey)
	session.Options.MaxAge = -1
	session.Save(r, w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// GetUserIDFromSession returns the logged-in user's id.
func (m *Manager) GetUserIDFromSession(r *http.Request) (int, bool) {
	session, err := m.Store.Get(r, sessionName)
	if err != nil {
		return 0, false
	}
	id, ok := session.Values[userIDKey].(int)
	return id, ok && id > 0
}

// AuthMiddleware rejects anonymous requests: API calls get a 401, pages
// are redirected to /login. The user id is stored in the request context.
func (m *Manager) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.GetUserIDFromSession(r)
		if !ok {
			if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" || strings.HasPrefix(r.URL.Path, "/status/") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}

func WithUserID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// UserID returns the id stored by AuthMiddleware.
func UserID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(ctxKey{}).(int)
	return id, ok
}
