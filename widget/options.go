package widget

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nasermirzaei89/commentbox/discuss"
	"github.com/nasermirzaei89/commentbox/dom"
	"github.com/nasermirzaei89/commentbox/events"
	"github.com/nasermirzaei89/commentbox/i18n"
	"golang.org/x/net/html"
)

const (
	DefaultPageSize  = 10
	DefaultCSSPrefix = "cb"
	// ReplyPageSize is the number of replies fetched when a thread is expanded.
	ReplyPageSize = 50
)

// Formation names a region of the widget that can be switched off.
type Formation string

const (
	FormationCount Formation = "count"
	FormationWrite Formation = "write"
	FormationPage  Formation = "page"
)

// DefaultFormation shows every region.
var DefaultFormation = []Formation{FormationCount, FormationWrite, FormationPage}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// UserInfo describes the viewer as reported by Auth.
type UserInfo struct {
	ID         string
	Nickname   string
	ProfileURL string
}

// Auth is the host's identity collaborator.
type Auth interface {
	IsLoggedIn(ctx context.Context) bool
	// UserInfo returns nil when nobody is logged in.
	UserInfo(ctx context.Context) *UserInfo
	// LoginRequired is called when a logged out viewer tries to write.
	LoginRequired(ctx context.Context)
}

// Confirmer asks the viewer to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, message string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}

// AlwaysConfirm accepts every confirmation. It is the default Confirmer.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) (bool, error) {
	return true, nil
})

type Options struct {
	// Document owns Container. Both are required.
	Document  *dom.Document
	Container *html.Node

	ObjectID string
	API      discuss.API

	PageSize   int
	Sort       discuss.Sort
	CSSPrefix  string
	Formation  []Formation
	Theme      Theme
	Responsive bool
	// IsManager is stamped on the author of content written through this widget
	// and lets the viewer moderate every row.
	IsManager bool

	Auth      Auth
	Confirmer Confirmer
	Messages  i18n.Messages
	Templates Templates
	Now       func() time.Time

	// Listeners are subscribed before the initial load so they observe ready
	// and the first comments-loaded event.
	Listeners map[events.Event]events.Handler

	OnReady         func(ctx context.Context)
	OnCommentAdd    func(ctx context.Context, comment *discuss.Comment)
	OnCommentUpdate func(ctx context.Context, comment *discuss.Comment)
	OnCommentDelete func(ctx context.Context, commentID string)
	OnReplyAdd      func(ctx context.Context, reply *discuss.Comment, parentID string)
	OnError         func(ctx context.Context, err error)
}

type InvalidOptionError struct {
	Option string
	Reason string
}

func (err InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid option %s: %s", err.Option, err.Reason)
}

func (opts Options) normalize() (Options, error) {
	if opts.Document == nil {
		return opts, &InvalidOptionError{Option: "Document", Reason: "must not be nil"}
	}

	if opts.Container == nil {
		return opts, &InvalidOptionError{Option: "Container", Reason: "must not be nil"}
	}

	if opts.ObjectID == "" {
		return opts, &InvalidOptionError{Option: "ObjectID", Reason: "must not be empty"}
	}

	if opts.API == nil {
		return opts, &InvalidOptionError{Option: "API", Reason: "must not be nil"}
	}

	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	if opts.Sort == "" {
		opts.Sort = discuss.SortLatest
	}

	if !opts.Sort.IsValid() {
		return opts, &InvalidOptionError{Option: "Sort", Reason: fmt.Sprintf("unknown sort %q", opts.Sort)}
	}

	if opts.CSSPrefix == "" {
		opts.CSSPrefix = DefaultCSSPrefix
	}

	if opts.Formation == nil {
		opts.Formation = DefaultFormation
	}

	if opts.Theme == "" {
		opts.Theme = ThemeLight
	}

	defaults := i18n.ForLocale(i18n.DefaultLocale)
	opts.Messages = defaults.Merge(opts.Messages)

	if opts.Templates == nil {
		opts.Templates = DefaultTemplates()
	}

	if opts.Confirmer == nil {
		opts.Confirmer = AlwaysConfirm
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return opts, nil
}

func (opts Options) has(f Formation) bool {
	return slices.Contains(opts.Formation, f)
}

func (opts Options) class(name string) string {
	return opts.CSSPrefix + "-" + name
}
