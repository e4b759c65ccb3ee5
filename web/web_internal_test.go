package web

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"testing"
	"time"

	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/gorilla/sessions"
	"github.com/nasermirzaei89/commentbox/authentication"
	"github.com/nasermirzaei89/commentbox/authorization"
	"github.com/nasermirzaei89/commentbox/authorization/casbin"
	"github.com/nasermirzaei89/commentbox/db/sqlite3"
	"github.com/nasermirzaei89/commentbox/discuss"
	"github.com/nasermirzaei89/commentbox/discuss/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const testPolicy = `g, system:anonymous, system:unauthenticated
p, system:unauthenticated, github.com/nasermirzaei89/commentbox/discuss, *, listComments
p, system:authenticated, github.com/nasermirzaei89/commentbox/discuss, *, listComments
p, system:authenticated, github.com/nasermirzaei89/commentbox/discuss, *, createComment
p, system:authenticated, github.com/nasermirzaei89/commentbox/discuss, *, createReply
p, system:manager, github.com/nasermirzaei89/commentbox/discuss, *, updateComment
p, system:manager, github.com/nasermirzaei89/commentbox/discuss, *, deleteComment
`

type testEnv struct {
	handler  *Handler
	authSvc  *authentication.Service
	registry *Registry
	server   *httptest.Server
	client   *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())

	db, err := sqlite3.NewDB(t.Context(), "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	require.NoError(t, sqlite3.MigrateUp(t.Context(), db))

	policyFile := filepath.Join(t.TempDir(), "policy.csv")
	require.NoError(t, os.WriteFile(policyFile, []byte(testPolicy), 0o600))

	provider, err := casbin.NewAuthorizationProvider(fileadapter.NewAdapter(policyFile))
	require.NoError(t, err)

	authzSvc, err := authorization.NewService(provider)
	require.NoError(t, err)

	authzClient := authorization.NewClient(authzSvc)

	authSvc := authentication.NewService(
		sqlite3.NewUserRepository(db),
		sqlite3.NewSessionRepository(db),
		authzClient,
		[]string{"boss"},
	)

	store := memory.NewStore(memory.WithDelay(0))
	registry := NewRegistry(time.Minute, 100)

	t.Cleanup(registry.Close)

	h, err := NewHandler(
		authSvc,
		discuss.NewAuthorizationMiddleware(authzClient, store),
		registry,
		WidgetConfig{
			PageSize:        10,
			Sort:            discuss.SortLatest,
			Theme:           "",
			Responsive:      false,
			Locale:          "en",
			DefaultObjectID: memory.SeedObjectID,
		},
		sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")),
		"commentbox-test",
		[]byte("fedcba9876543210fedcba9876543210"),
		nil,
		true,
	)
	require.NoError(t, err)

	// csrf is covered by TestCSRFProtection; the flows below talk to the
	// session-aware routes directly.
	server := httptest.NewServer(h.authMiddleware(h.mux))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testEnv{
		handler:  h,
		authSvc:  authSvc,
		registry: registry,
		server:   server,
		client:   client,
	}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, e.server.URL+path, nil)
	require.NoError(t, err)

	return e.do(t, req)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(
		t.Context(),
		http.MethodPost,
		e.server.URL+path,
		strings.NewReader(form.Encode()),
	)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return e.do(t, req)
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()

	resp, err := e.client.Do(req)
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func (e *testEnv) login(t *testing.T, username string) {
	t.Helper()

	_, err := e.authSvc.Register(t.Context(), username, "password1")
	require.NoError(t, err)

	resp, _ := e.post(t, "/login", url.Values{"username": {username}, "password": {"password1"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

var widgetIDPattern = regexp.MustCompile(`data-widget-id="([^"]+)"`)

func (e *testEnv) openThread(t *testing.T, objectID string) (string, string) {
	t.Helper()

	resp, body := e.get(t, "/t/"+objectID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	match := widgetIDPattern.FindStringSubmatch(body)
	require.Len(t, match, 2)

	return match[1], body
}

func (e *testEnv) click(t *testing.T, widgetID, node string, extra url.Values) (*http.Response, string) {
	t.Helper()

	form := url.Values{"node": {node}, "type": {"click"}}
	for k, v := range extra {
		form[k] = v
	}

	return e.post(t, "/w/"+widgetID+"/events", form)
}

// findNode returns the data-node of the first element carrying class and
// every attribute given as name, value pairs.
func findNode(t *testing.T, markup, class string, attrs ...string) string {
	t.Helper()

	doc, err := html.Parse(strings.NewReader(markup))
	require.NoError(t, err)

	var found string

	var visit func(n *html.Node)

	visit = func(n *html.Node) {
		if found != "" {
			return
		}

		if n.Type == html.ElementNode && matchesNode(n, class, attrs) {
			for _, a := range n.Attr {
				if a.Key == "data-node" {
					found = a.Val
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}

	visit(doc)

	require.NotEmpty(t, found, "no element .%s%v in markup", class, attrs)

	return found
}

func matchesNode(n *html.Node, class string, attrs []string) bool {
	values := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		values[a.Key] = a.Val
	}

	if !slices.Contains(strings.Fields(values["class"]), class) {
		return false
	}

	for i := 0; i+1 < len(attrs); i += 2 {
		if values[attrs[i]] != attrs[i+1] {
			return false
		}
	}

	return true
}

func TestThreadPageMountsWidget(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)

	widgetID, body := e.openThread(t, memory.SeedObjectID)

	assert.NotEmpty(t, widgetID)
	assert.Contains(t, body, "cb-container")
	assert.Contains(t, body, "3 comments")
	assert.Contains(t, body, "cb-login-btn")
	assert.Equal(t, 1, e.registry.Len())

	resp, markup := e.get(t, "/w/"+widgetID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, markup, "3 comments")
	assert.NotContains(t, markup, "<html")
}

func TestWidgetEventAsksGuestToLogin(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)

	widgetID, body := e.openThread(t, memory.SeedObjectID)

	resp, _ := e.click(t, widgetID, findNode(t, body, "cb-login-btn"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/login?returnTo=%2Ft%2Ftest-object", resp.Header.Get(headerLoginRedirect))
}

func TestWidgetEventPostsComment(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	e.login(t, "alice")

	widgetID, body := e.openThread(t, memory.SeedObjectID)
	assert.NotContains(t, body, "cb-login-btn")

	submit := findNode(t, body, "cb-editor-submit")

	resp, markup := e.click(t, widgetID, submit, url.Values{"content": {"hello from the browser"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(headerLoginRedirect))
	assert.Contains(t, markup, "hello from the browser")
	assert.Contains(t, markup, "4 comments")
	assert.Contains(t, markup, "alice")
}

func TestWidgetEventDeleteUsesConfirmation(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	e.login(t, "alice")

	widgetID, body := e.openThread(t, memory.SeedObjectID)

	_, markup := e.click(t, widgetID, findNode(t, body, "cb-editor-submit"), url.Values{"content": {"short lived"}})
	require.Contains(t, markup, "short lived")

	// alice may only moderate her own comment, so hers is the only delete button
	deleteBtn := findNode(t, markup, "cb-action-btn", "data-action", "delete")

	_, markup = e.click(t, widgetID, deleteBtn, url.Values{"confirmed": {"false"}})
	assert.Contains(t, markup, "short lived")

	deleteBtn = findNode(t, markup, "cb-action-btn", "data-action", "delete")

	_, markup = e.click(t, widgetID, deleteBtn, url.Values{"confirmed": {"true"}})
	assert.NotContains(t, markup, "short lived")
	assert.Contains(t, markup, "3 comments")
}

func TestWidgetEventTogglesReplies(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)

	widgetID, body := e.openThread(t, memory.SeedObjectID)

	toggle := findNode(t, body, "cb-reply-toggle")

	resp, markup := e.click(t, widgetID, toggle, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, markup, "Hide replies")
	assert.Contains(t, markup, `class="cb-reply"`)
}

func TestWidgetRequestErrors(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)

	widgetID, body := e.openThread(t, memory.SeedObjectID)

	tests := []struct {
		name   string
		path   string
		form   url.Values
		status int
	}{
		{
			name:   "unknown widget",
			path:   "/w/missing/events",
			form:   url.Values{"node": {"n1"}},
			status: http.StatusNotFound,
		},
		{
			name:   "unknown node",
			path:   "/w/" + widgetID + "/events",
			form:   url.Values{"node": {"n999999"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing node",
			path:   "/w/" + widgetID + "/events",
			form:   url.Values{},
			status: http.StatusBadRequest,
		},
		{
			name:   "unsupported event type",
			path:   "/w/" + widgetID + "/events",
			form:   url.Values{"node": {findNode(t, body, "cb-login-btn")}, "type": {"keydown"}},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		resp, _ := e.post(t, tt.path, tt.form)
		assert.Equal(t, tt.status, resp.StatusCode, tt.name)
	}
}

func TestWidgetBelongsToSubject(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)

	widgetID, _ := e.openThread(t, memory.SeedObjectID)

	e.login(t, "alice")

	resp, _ := e.get(t, "/w/"+widgetID)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLoginFlow(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)

	resp, _ := e.post(t, "/register", url.Values{
		"username": {"bob"},
		"password": {"password1"},
		"returnTo": {"/t/test-object"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?returnTo=%2Ft%2Ftest-object", resp.Header.Get("Location"))

	resp, body := e.post(t, "/register", url.Values{"username": {"bob"}, "password": {"password1"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "Username already exists")

	resp, _ = e.post(t, "/register", url.Values{"username": {"carol"}, "password": {"short"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = e.post(t, "/login", url.Values{"username": {"bob"}, "password": {"wrong-password"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.post(t, "/login", url.Values{
		"username": {"bob"},
		"password": {"password1"},
		"returnTo": {"//evil.com"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, body = e.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "bob")

	resp, _ = e.get(t, "/login")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode, "guests only")

	resp, _ = e.post(t, "/logout", url.Values{})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = e.get(t, "/logout")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode, "authenticated only")
}

func TestCSRFProtection(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)

	widgetID, _ := e.openThread(t, memory.SeedObjectID)

	req := httptest.NewRequestWithContext(
		t.Context(),
		http.MethodPost,
		"/w/"+widgetID+"/events",
		strings.NewReader(url.Values{"node": {"n1"}}.Encode()),
	)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStaticAssets(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)

	assert.Contains(t, e.handler.funcs()["asset"].(func(string) string)("commentbox.js"), "/commentbox.js?v=")

	resp, body := e.get(t, "/commentbox.js?v=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "X-Login-Redirect")
	assert.Contains(t, resp.Header.Get("Cache-Control"), "immutable")
}
