package widget

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/nasermirzaei89/commentbox/discuss"
	"github.com/nasermirzaei89/commentbox/i18n"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Templates turns view data into markup. Implementations must be pure: the
// widget reads back only the classes and data attributes it documents.
type Templates interface {
	Container(view BaseView) (template.HTML, error)
	Header(view HeaderView) (template.HTML, error)
	Editor(view EditorView) (template.HTML, error)
	CommentItem(view CommentView) (template.HTML, error)
	ReplyItem(view CommentView) (template.HTML, error)
	Empty(view BaseView) (template.HTML, error)
	Loading(view BaseView) (template.HTML, error)
	Pagination(view PaginationView) (template.HTML, error)
	LoginRequired(view BaseView) (template.HTML, error)
}

type BaseView struct {
	Prefix   string
	Messages i18n.Messages
}

type HeaderView struct {
	BaseView

	TotalCount int
}

type EditorMode string

const (
	EditorNew   EditorMode = "new"
	EditorEdit  EditorMode = "edit"
	EditorReply EditorMode = "reply"
)

type EditorView struct {
	BaseView

	Mode      EditorMode
	ParentID  string
	CommentID string
	Content   string
}

type CommentView struct {
	BaseView

	Comment *discuss.Comment
	TimeAgo string
	// IsOwner is true when the viewer wrote the comment.
	IsOwner bool
	// CanModerate shows the edit and delete controls.
	CanModerate bool
	// Expanded reports whether the replies of this comment are open.
	Expanded bool
}

func (v CommentView) IsEdited() bool {
	return v.Comment.UpdatedAt != v.Comment.CreatedAt
}

type PaginationView struct {
	BaseView

	CurrentPage int
	TotalPages  int
}

type PageLink struct {
	Number  int
	Label   string
	Current bool
}

func (v PaginationView) Pages() []PageLink {
	links := make([]PageLink, 0, v.TotalPages)

	for n := range v.TotalPages {
		links = append(links, PageLink{
			Number:  n,
			Label:   fmt.Sprint(n + 1),
			Current: n == v.CurrentPage,
		})
	}

	return links
}

func (v PaginationView) HasPrev() bool {
	return v.CurrentPage > 0
}

func (v PaginationView) HasNext() bool {
	return v.CurrentPage+1 < v.TotalPages
}

var (
	//go:embed templates/*
	templatesFS embed.FS

	defaultTemplates = mustParseTemplates()
)

type htmlTemplates struct {
	tpl *template.Template
}

var _ Templates = (*htmlTemplates)(nil)

// DefaultTemplates returns the built-in html/template implementation.
func DefaultTemplates() Templates {
	return defaultTemplates
}

func mustParseTemplates() *htmlTemplates {
	tpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templatesFS, "templates/*.gohtml")
	if err != nil {
		panic(fmt.Errorf("failed to parse widget templates: %w", err))
	}

	return &htmlTemplates{tpl: tpl}
}

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.Strikethrough,
		extension.Linkify,
	),
)

func renderMarkdown(source string) template.HTML {
	var buf bytes.Buffer

	err := markdown.Convert([]byte(source), &buf)
	if err != nil {
		slog.Error("failed to render markdown", "error", err)

		return template.HTML(template.HTMLEscapeString(source)) //nolint:gosec
	}

	return template.HTML(buf.String()) //nolint:gosec
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"markdown": renderMarkdown,
		"msg": func(messages i18n.Messages, key string) string {
			return messages.Get(i18n.Key(key))
		},
		"msgf": func(messages i18n.Messages, key, name string, value any) string {
			return messages.Format(i18n.Key(key), i18n.Params{name: value})
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"add": func(a, b int) int {
			return a + b
		},
	}
}

func (t *htmlTemplates) execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer

	err := t.tpl.ExecuteTemplate(&buf, name, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	return template.HTML(buf.String()), nil //nolint:gosec
}

func (t *htmlTemplates) Container(view BaseView) (template.HTML, error) {
	return t.execute("container.gohtml", view)
}

func (t *htmlTemplates) Header(view HeaderView) (template.HTML, error) {
	return t.execute("header.gohtml", view)
}

func (t *htmlTemplates) Editor(view EditorView) (template.HTML, error) {
	return t.execute("editor.gohtml", view)
}

func (t *htmlTemplates) CommentItem(view CommentView) (template.HTML, error) {
	return t.execute("comment-item.gohtml", view)
}

func (t *htmlTemplates) ReplyItem(view CommentView) (template.HTML, error) {
	return t.execute("reply-item.gohtml", view)
}

func (t *htmlTemplates) Empty(view BaseView) (template.HTML, error) {
	return t.execute("empty.gohtml", view)
}

func (t *htmlTemplates) Loading(view BaseView) (template.HTML, error) {
	return t.execute("loading.gohtml", view)
}

func (t *htmlTemplates) Pagination(view PaginationView) (template.HTML, error) {
	return t.execute("pagination.gohtml", view)
}

func (t *htmlTemplates) LoginRequired(view BaseView) (template.HTML, error) {
	return t.execute("login-required.gohtml", view)
}
