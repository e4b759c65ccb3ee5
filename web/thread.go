package web

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/csrf"
	authcontext "github.com/nasermirzaei89/commentbox/authentication/context"
	"github.com/nasermirzaei89/commentbox/dom"
	"github.com/nasermirzaei89/commentbox/i18n"
	"github.com/nasermirzaei89/commentbox/widget"
	"golang.org/x/net/html"
)

const (
	headerLoginRedirect  = "X-Login-Redirect"
	headerScrollIntoView = "X-Scroll-Into-View"
)

func threadPath(objectID string) string {
	return "/t/" + url.PathEscape(objectID)
}

func (h *Handler) HandleThreadPage() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		objectID := r.PathValue("objectId")
		if objectID == "" {
			http.NotFound(w, r)

			return
		}

		messages := i18n.ForLocale(h.locale(r))

		isManager := false

		if isAuthenticated(r) {
			user, err := h.authSvc.GetCurrentUser(r.Context())
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to get current user", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)

				return
			}

			isManager = h.authSvc.IsManager(user.Username)
		}

		mw, err := h.registry.Mount(
			r.Context(),
			authcontext.GetSubject(r.Context()),
			objectID,
			func(doc *dom.Document, container *html.Node) widget.Options {
				return widget.Options{
					Document:   doc,
					Container:  container,
					ObjectID:   objectID,
					API:        h.api,
					PageSize:   h.widgetConfig.PageSize,
					Sort:       h.widgetConfig.Sort,
					Theme:      h.widgetConfig.Theme,
					Responsive: h.widgetConfig.Responsive,
					IsManager:  isManager,
					Auth:       sessionAuth{authSvc: h.authSvc},
					Confirmer:  confirmFromRequest,
					Messages:   messages,
				}
			},
		)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to mount widget", "objectId", objectID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)

			return
		}

		markup, err := mw.markup()
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to render widget", "widgetId", mw.id, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)

			return
		}

		data := map[string]any{
			"SiteTitle":      objectID,
			"ObjectID":       objectID,
			"WidgetID":       mw.id,
			"WidgetMarkup":   template.HTML(markup), //nolint:gosec // rendered by the widget's own templates
			"ConfirmMessage": messages.Get(i18n.KeyConfirmDelete),
			"CSRFToken":      csrf.Token(r),
			"ReturnTo":       threadPath(objectID),
		}

		h.renderTemplate(w, r, "thread-page.gohtml", data)
	})
}

// widgetForRequest finds the widget named in the path and checks it belongs
// to the current subject.
func (h *Handler) widgetForRequest(w http.ResponseWriter, r *http.Request) (*mountedWidget, bool) {
	mw, err := h.registry.Get(r.PathValue("widgetId"))
	if err != nil {
		var notFoundErr *WidgetNotFoundError
		if errors.As(err, &notFoundErr) {
			http.Error(w, "widget not found", http.StatusNotFound)

			return nil, false
		}

		slog.ErrorContext(r.Context(), "failed to get widget", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)

		return nil, false
	}

	// logging in or out in another tab makes the widget stale
	if mw.subject != authcontext.GetSubject(r.Context()) {
		http.Error(w, "widget belongs to another session", http.StatusConflict)

		return nil, false
	}

	return mw, true
}

func (h *Handler) HandleWidget() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw, ok := h.widgetForRequest(w, r)
		if !ok {
			return
		}

		mw.mu.Lock()
		defer mw.mu.Unlock()

		h.writeWidget(w, r, mw)
	})
}

func (h *Handler) HandleWidgetEvent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw, ok := h.widgetForRequest(w, r)
		if !ok {
			return
		}

		err := r.ParseForm()
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to parse form", "error", err)
			http.Error(w, "Bad Request", http.StatusBadRequest)

			return
		}

		eventType := r.PostFormValue("type")
		if eventType == "" {
			eventType = "click"
		}

		if eventType != "click" {
			http.Error(w, "unsupported event type", http.StatusBadRequest)

			return
		}

		mw.mu.Lock()
		defer mw.mu.Unlock()

		nodeID := r.PostFormValue("node")

		target := mw.doc.NodeByID(nodeID)
		if nodeID == "" || target == nil {
			http.Error(w, "unknown node", http.StatusBadRequest)

			return
		}

		values := make(map[string]string)
		if _, ok := r.PostForm[widget.ContentField]; ok {
			values[widget.ContentField] = r.PostFormValue(widget.ContentField)
		}

		state := &eventState{
			confirmed:      r.PostFormValue("confirmed") == "true",
			loginRequested: false,
		}

		ctx := withEventState(r.Context(), state)

		_, err = mw.doc.Dispatch(ctx, dom.Event{Type: eventType, Target: target, Values: values})
		if err != nil {
			slog.ErrorContext(ctx, "failed to dispatch widget event", "widgetId", mw.id, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)

			return
		}

		if state.loginRequested {
			w.Header().Set(headerLoginRedirect, "/login?returnTo="+url.QueryEscape(threadPath(mw.objectID)))
		}

		if scrolled := mw.doc.TakeScroll(); scrolled != nil {
			w.Header().Set(headerScrollIntoView, mw.doc.ID(scrolled))
		}

		h.writeWidget(w, r, mw)
	})
}

// writeWidget must be called with mw.mu held.
func (h *Handler) writeWidget(w http.ResponseWriter, r *http.Request, mw *mountedWidget) {
	markup, err := mw.markup()
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to render widget", "widgetId", mw.id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	_, _ = w.Write([]byte(markup))
}
