// Package web hosts comment widgets behind HTTP: it renders thread pages,
// keeps one server-side widget per page view and forwards browser clicks to it.
package web

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"github.com/nasermirzaei89/commentbox/authentication"
	"github.com/nasermirzaei89/commentbox/discuss"
	"github.com/nasermirzaei89/commentbox/i18n"
	"github.com/nasermirzaei89/commentbox/widget"
)

var (
	//go:embed templates/*
	templatesFS embed.FS

	//go:embed static/*
	staticFS embed.FS
)

const defaultSiteTitle = "Commentbox"

// WidgetConfig holds the options applied to every widget the handler mounts.
type WidgetConfig struct {
	PageSize   int
	Sort       discuss.Sort
	Theme      widget.Theme
	Responsive bool
	// Locale forces a catalogue. When empty the Accept-Language header decides.
	Locale string
	// DefaultObjectID is the thread linked from the index page.
	DefaultObjectID string
}

type Handler struct {
	mux          *http.ServeMux
	handler      http.Handler
	tpl          *template.Template
	static       fs.FS
	authSvc      *authentication.Service
	api          discuss.API
	registry     *Registry
	widgetConfig WidgetConfig
	cookieStore  *sessions.CookieStore
	sessionName  string
	assetHashes  map[string]string
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(
	authSvc *authentication.Service,
	api discuss.API,
	registry *Registry,
	widgetConfig WidgetConfig,
	cookieStore *sessions.CookieStore,
	sessionName string,
	csrfAuthKeys []byte,
	csrfTrustedOrigins []string,
	plaintextHTTP bool,
) (*Handler, error) {
	h := &Handler{
		mux:          nil,
		handler:      nil,
		tpl:          nil,
		static:       nil,
		authSvc:      authSvc,
		api:          api,
		registry:     registry,
		widgetConfig: widgetConfig,
		cookieStore:  cookieStore,
		sessionName:  sessionName,
		assetHashes:  make(map[string]string),
	}

	{
		static, err := fs.Sub(staticFS, "static")
		if err != nil {
			return nil, fmt.Errorf("failed to sub static fs: %w", err)
		}

		h.static = static

		err = h.hashAssets()
		if err != nil {
			return nil, fmt.Errorf("failed to hash static assets: %w", err)
		}
	}

	{
		tpl, err := template.New("").Funcs(h.funcs()).ParseFS(templatesFS, "templates/*.gohtml")
		if err != nil {
			return nil, fmt.Errorf("failed to parse templates: %w", err)
		}

		h.tpl = tpl
	}

	{
		h.mux = &http.ServeMux{}
		h.handler = h.mux

		h.registerRoutes()
	}

	{
		h.handler = h.authMiddleware(h.handler)

		{
			csrfMiddleware := csrf.Protect(
				csrfAuthKeys,
				csrf.TrustedOrigins(csrfTrustedOrigins),
				csrf.Secure(!plaintextHTTP),
			)

			h.handler = csrfMiddleware(h.handler)
		}

		if plaintextHTTP {
			h.handler = plaintextMiddleware(h.handler)
		}

		h.handler = recoverMiddleware(h.handler)
	}

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("/", h.HandleIndex)

	h.mux.Handle("GET /register", h.HandleRegisterPage())
	h.mux.Handle("POST /register", h.HandleRegister())
	h.mux.Handle("GET /login", h.HandleLoginPage())
	h.mux.Handle("POST /login", h.HandleLogin())
	h.mux.Handle("GET /logout", h.HandleLogoutPage())
	h.mux.Handle("POST /logout", h.HandleLogout())

	h.mux.Handle("GET /t/{objectId}", h.HandleThreadPage())
	h.mux.Handle("GET /w/{widgetId}", h.HandleWidget())
	h.mux.Handle("POST /w/{widgetId}/events", h.HandleWidgetEvent())
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func(ctx context.Context) {
			if err := recover(); err != nil {
				slog.ErrorContext(
					ctx,
					"recovered from panic",
					"error",
					err,
					"stack",
					string(debug.Stack()),
				)

				http.Error(w, "internal error occurred", http.StatusInternalServerError)
			}
		}(r.Context())

		next.ServeHTTP(w, r)
	})
}

// plaintextMiddleware tells the csrf middleware the server is not behind TLS,
// so it skips the strict referer check meant for HTTPS.
func plaintextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
	})
}

func (h *Handler) hashAssets() error {
	return fs.WalkDir(h.static, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		content, err := fs.ReadFile(h.static, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		sum := sha256.Sum256(content)
		h.assetHashes[path] = hex.EncodeToString(sum[:])[:12]

		return nil
	})
}

func (h *Handler) funcs() template.FuncMap {
	return template.FuncMap{
		"asset": func(name string) string {
			hash, ok := h.assetHashes[name]
			if !ok {
				return "/" + name
			}

			return "/" + name + "?v=" + hash
		},
		"pathEscape": url.PathEscape,
	}
}

func (h *Handler) locale(r *http.Request) string {
	if h.widgetConfig.Locale != "" {
		return i18n.Match(h.widgetConfig.Locale)
	}

	return i18n.Match(r.Header.Get("Accept-Language"))
}

func (h *Handler) renderTemplate(w http.ResponseWriter, r *http.Request, name string, extraData map[string]any) {
	h.renderTemplateWithStatus(w, r, http.StatusOK, name, extraData)
}

func (h *Handler) renderTemplateWithStatus(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	name string,
	extraData map[string]any,
) {
	var currentUser *authentication.User

	if isAuthenticated(r) {
		var err error

		currentUser, err = h.authSvc.GetCurrentUser(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to get current user", "error", err)
			http.Error(w, "Failed to get current user", http.StatusInternalServerError)

			return
		}
	}

	data := map[string]any{
		"CurrentPath":     r.URL.Path,
		"Lang":            h.locale(r),
		"Dir":             "ltr",
		"IsAuthenticated": isAuthenticated(r),
		"CurrentUser":     currentUser,
		csrf.TemplateTag:  csrf.TemplateField(r),
	}

	maps.Copy(data, extraData)

	data["SiteTitle"] = defaultSiteTitle

	if extraData["SiteTitle"] != nil {
		data["SiteTitle"] = fmt.Sprintf("%s | %s", extraData["SiteTitle"], data["SiteTitle"])
	}

	var buf strings.Builder

	err := h.tpl.ExecuteTemplate(&buf, name, data)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to render template", "name", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	_, _ = w.Write([]byte(buf.String()))
}

func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		h.HandleHomePage(w, r)

		return
	}

	h.HandleStatic(w, r)
}

// HandleStatic serves static files.
func (h *Handler) HandleStatic(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("v") != "" {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}

	http.FileServer(http.FS(h.static)).ServeHTTP(w, r)
}

func (h *Handler) HandleHomePage(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"DefaultObjectID": h.widgetConfig.DefaultObjectID,
	}

	h.renderTemplate(w, r, "home-page.gohtml", data)
}

func (h *Handler) HandleRegisterPage() http.Handler {
	hf := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"SiteTitle": "Register",
			"ReturnTo":  sanitizeReturnToPath(r.URL.Query().Get("returnTo")),
			"Username":  "",
		}

		h.renderTemplate(w, r, "register-page.gohtml", data)
	})

	return h.GuestOnly(hf)
}

func (h *Handler) HandleRegister() http.Handler {
	hf := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := r.ParseForm()
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to parse form", "error", err)
			http.Error(w, "Bad Request", http.StatusBadRequest)

			return
		}

		username := r.FormValue("username")
		password := r.FormValue("password")
		returnTo := sanitizeReturnToPath(r.FormValue("returnTo"))

		_, err = h.authSvc.Register(r.Context(), username, password)
		if err != nil {
			data := map[string]any{
				"SiteTitle": "Register",
				"ReturnTo":  returnTo,
				"Username":  username,
			}

			var (
				userAlreadyExistsErr *authentication.UserAlreadyExistsError
				invalidFormatErr     *authentication.InvalidCredentialsFormatError
			)

			switch {
			case errors.As(err, &userAlreadyExistsErr):
				data["Error"] = "Username already exists"
				h.renderTemplateWithStatus(w, r, http.StatusConflict, "register-page.gohtml", data)
			case errors.As(err, &invalidFormatErr):
				data["Error"] = invalidFormatErr.Error()
				h.renderTemplateWithStatus(w, r, http.StatusUnprocessableEntity, "register-page.gohtml", data)
			default:
				slog.ErrorContext(r.Context(), "failed to register user", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}

			return
		}

		http.Redirect(w, r, "/login?returnTo="+url.QueryEscape(returnTo), http.StatusSeeOther)
	})

	return h.GuestOnly(hf)
}

func (h *Handler) HandleLoginPage() http.Handler {
	hf := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"SiteTitle": "Login",
			"ReturnTo":  sanitizeReturnToPath(r.URL.Query().Get("returnTo")),
			"Username":  "",
		}

		h.renderTemplate(w, r, "login-page.gohtml", data)
	})

	return h.GuestOnly(hf)
}

func (h *Handler) HandleLogin() http.Handler {
	hf := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := r.ParseForm()
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to parse form", "error", err)
			http.Error(w, "Bad Request", http.StatusBadRequest)

			return
		}

		username := r.FormValue("username")
		password := r.FormValue("password")
		returnTo := sanitizeReturnToPath(r.FormValue("returnTo"))

		session, err := h.authSvc.Login(r.Context(), username, password)
		if err != nil {
			switch {
			case errors.Is(err, authentication.ErrInvalidCredentials):
				data := map[string]any{
					"SiteTitle": "Login",
					"ReturnTo":  returnTo,
					"Username":  username,
					"Error":     "Invalid username or password",
				}

				h.renderTemplateWithStatus(w, r, http.StatusUnauthorized, "login-page.gohtml", data)
			default:
				slog.ErrorContext(r.Context(), "failed to login user", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}

			return
		}

		err = h.setSessionValue(w, r, sessionIDKey, session.ID)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to set session ID", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)

			return
		}

		http.Redirect(w, r, returnTo, http.StatusSeeOther)
	})

	return h.GuestOnly(hf)
}

func (h *Handler) HandleLogoutPage() http.Handler {
	hf := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"SiteTitle": "Logout",
		}

		h.renderTemplate(w, r, "logout-page.gohtml", data)
	})

	return h.AuthenticatedOnly(hf)
}

func (h *Handler) HandleLogout() http.Handler {
	hf := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h.endSession(w, r)
		if err != nil {
			slog.ErrorContext(r.Context(), "error on logout", "error", err)
			http.Error(w, "error on logout", http.StatusInternalServerError)

			return
		}

		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	return h.AuthenticatedOnly(hf)
}

// sanitizeReturnToPath only lets local absolute paths through, so a login
// link cannot send the user to another site.
func sanitizeReturnToPath(returnTo string) string {
	if returnTo == "" || !strings.HasPrefix(returnTo, "/") {
		return "/"
	}

	if strings.HasPrefix(returnTo, "//") || strings.HasPrefix(returnTo, `/\`) {
		return "/"
	}

	u, err := url.Parse(returnTo)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}

	return returnTo
}
