// Package widget implements the comment widget: a stateful component bound to
// one container element that loads, paginates, threads and edits comments
// through a discuss.API and keeps its markup in step with its state.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nasermirzaei89/commentbox/discuss"
	"github.com/nasermirzaei89/commentbox/dom"
	"github.com/nasermirzaei89/commentbox/events"
	"github.com/nasermirzaei89/commentbox/i18n"
	"golang.org/x/net/html"
)

var ErrDestroyed = errors.New("widget instance is destroyed")

// ReplyAddedEvent is the payload of events.ReplyAdded.
type ReplyAddedEvent struct {
	Reply    *discuss.Comment
	ParentID string
}

// ReplyToggledEvent is the payload of events.ReplyToggled.
type ReplyToggledEvent struct {
	CommentID string
	Expanded  bool
}

type Instance struct {
	opts      Options
	doc       *dom.Document
	container *html.Node
	bus       *events.Bus

	mu       sync.Mutex
	state    State
	regions  regions
	replies  map[string][]*discuss.Comment
	listGen  uint64
	replyGen map[string]uint64
	cleanup  []func()
	closed   bool
}

type regions struct {
	header     *html.Node
	editor     *html.Node
	list       *html.Node
	pagination *html.Node
}

// viewer is what Auth reports about the current user, sampled once per transition.
type viewer struct {
	loggedIn bool
	user     *UserInfo
}

// New mounts a widget into opts.Container, loads the first page and emits
// events.Ready. Invalid options are returned as an *InvalidOptionError; any
// later failure is routed to the error handler and the instance is still returned.
func New(ctx context.Context, opts Options) (*Instance, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	i := &Instance{
		opts:      opts,
		doc:       opts.Document,
		container: opts.Container,
		bus:       events.NewBus(),
		state:     newState(),
		replies:   make(map[string][]*discuss.Comment),
		replyGen:  make(map[string]uint64),
	}

	for event, handler := range opts.Listeners {
		i.bus.On(event, handler)
	}

	err = i.renderContainer()
	if err != nil {
		_ = i.handleError(ctx, fmt.Errorf("failed to render container: %w", err))

		return i, nil
	}

	i.setupDelegation()

	// a failed first load has already been reported through the error handler
	_ = i.loadComments(ctx)

	i.bus.Emit(ctx, events.Ready, nil)

	if i.opts.OnReady != nil {
		i.opts.OnReady(ctx)
	}

	return i, nil
}

func (i *Instance) renderContainer() error {
	markup, err := i.opts.Templates.Container(i.baseView())
	if err != nil {
		return fmt.Errorf("failed to execute container template: %w", err)
	}

	i.doc.Empty(i.container)

	shell, err := i.doc.Mount(i.container, string(markup))
	if err != nil {
		return fmt.Errorf("failed to mount container: %w", err)
	}

	if i.opts.Theme == ThemeDark {
		i.doc.AddClass(shell, i.opts.class("container--dark"))
	}

	if i.opts.Responsive {
		i.doc.AddClass(shell, i.opts.class("container--responsive"))
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.regions = regions{
		header:     i.doc.Query(shell, dom.ByClass(i.opts.class("header"))),
		editor:     i.doc.Query(shell, dom.ByClass(i.opts.class("editor-wrapper"))),
		list:       i.doc.Query(shell, dom.ByClass(i.opts.class("list-wrapper"))),
		pagination: i.doc.Query(shell, dom.ByClass(i.opts.class("pagination-wrapper"))),
	}

	if !i.opts.has(FormationCount) && i.regions.header != nil {
		i.doc.Hide(i.regions.header)
	}

	if !i.opts.has(FormationWrite) && i.regions.editor != nil {
		i.doc.Hide(i.regions.editor)
	}

	if !i.opts.has(FormationPage) && i.regions.pagination != nil {
		i.doc.Hide(i.regions.pagination)
	}

	return nil
}

// Dispatch runs the transition for action. Failures of the data source are
// handled by the error handler first and then returned.
func (i *Instance) Dispatch(ctx context.Context, action Action) error {
	if i.isClosed() {
		return ErrDestroyed
	}

	switch action.Kind {
	case ActionSubmit:
		return i.submitEditor(ctx, action)
	case ActionCancel:
		return i.cancelEditor(ctx, action)
	case ActionReply:
		return i.showReplyEditor(ctx, action.CommentID)
	case ActionEdit:
		return i.startEdit(ctx, action.CommentID)
	case ActionDelete:
		return i.deleteComment(ctx, action.CommentID)
	case ActionToggleReplies:
		return i.toggleReplies(ctx, action.CommentID)
	case ActionChangePage:
		return i.goToPage(ctx, action.Page)
	case ActionLogin:
		if i.opts.Auth != nil {
			i.opts.Auth.LoginRequired(ctx)
		}

		return nil
	default:
		return &UnknownActionError{Kind: action.Kind}
	}
}

// Refresh reloads the current page.
func (i *Instance) Refresh(ctx context.Context) error {
	if i.isClosed() {
		return ErrDestroyed
	}

	return i.loadComments(ctx)
}

// On subscribes handler to event and returns the unsubscribe function.
func (i *Instance) On(event events.Event, handler events.Handler) func() {
	if i.isClosed() {
		return func() {}
	}

	return i.bus.On(event, handler)
}

// GetState returns a deep copy of the current state.
func (i *Instance) GetState() State {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.state.clone()
}

// Destroy detaches every listener, empties the container and discards state.
// Every later call returns ErrDestroyed.
func (i *Instance) Destroy() {
	i.mu.Lock()

	if i.closed {
		i.mu.Unlock()

		return
	}

	i.closed = true
	cleanup := i.cleanup
	i.cleanup = nil
	i.state = newState()
	i.replies = make(map[string][]*discuss.Comment)
	i.mu.Unlock()

	for _, remove := range cleanup {
		remove()
	}

	i.bus.RemoveAllListeners()
	i.doc.Empty(i.container)
}

func (i *Instance) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.closed
}

// commit applies fn to the state under the lock and emits state-changed with
// the resulting snapshot once the lock is released.
func (i *Instance) commit(ctx context.Context, fn func(s *State)) {
	i.mu.Lock()
	fn(&i.state)
	snapshot := i.state.clone()
	i.mu.Unlock()

	i.bus.Emit(ctx, events.StateChanged, snapshot)
}

// handleError logs err, records it in the state, emits events.Error and calls
// OnError. It returns err so transitions can pass it on.
func (i *Instance) handleError(ctx context.Context, err error) error {
	slog.ErrorContext(ctx, "comment widget error", "objectId", i.opts.ObjectID, "error", err)

	i.commit(ctx, func(s *State) {
		s.Error = err
		s.IsLoading = false
	})

	i.bus.Emit(ctx, events.Error, err)

	if i.opts.OnError != nil {
		i.opts.OnError(ctx, err)
	}

	return err
}

func (i *Instance) viewer(ctx context.Context) viewer {
	if i.opts.Auth == nil {
		return viewer{loggedIn: true, user: nil}
	}

	v := viewer{loggedIn: i.opts.Auth.IsLoggedIn(ctx), user: nil}
	if v.loggedIn {
		v.user = i.opts.Auth.UserInfo(ctx)
	}

	return v
}

// author is the identity stamped on new content, nil for anonymous.
func (i *Instance) author(v viewer) *discuss.Author {
	if v.user == nil {
		return nil
	}

	return &discuss.Author{
		ID:         v.user.ID,
		Nickname:   v.user.Nickname,
		ProfileURL: v.user.ProfileURL,
		IsManager:  i.opts.IsManager,
	}
}

func (i *Instance) loadComments(ctx context.Context) error {
	v := i.viewer(ctx)

	i.mu.Lock()

	if i.closed {
		i.mu.Unlock()

		return ErrDestroyed
	}

	i.listGen++
	gen := i.listGen
	page := i.state.CurrentPage
	i.state.IsLoading = true
	i.state.Error = nil
	renderErr := i.renderLoadingLocked()
	snapshot := i.state.clone()
	i.mu.Unlock()

	i.bus.Emit(ctx, events.StateChanged, snapshot)

	if renderErr != nil {
		return i.handleError(ctx, renderErr)
	}

	res, err := i.opts.API.GetComments(ctx, discuss.GetCommentsParams{
		ObjectID: i.opts.ObjectID,
		Page:     page,
		PageSize: i.opts.PageSize,
		Sort:     i.opts.Sort,
	})

	i.mu.Lock()

	if i.closed || gen != i.listGen {
		i.mu.Unlock()
		slog.DebugContext(ctx, "discarded stale comments response", "objectId", i.opts.ObjectID, "page", page)

		return nil
	}

	if err != nil {
		i.mu.Unlock()

		return i.handleError(ctx, fmt.Errorf("failed to get comments: %w", err))
	}

	i.state.Comments = res.Comments
	i.state.TotalCount = res.TotalCount
	i.state.TotalPages = totalPages(res.TotalCount, i.opts.PageSize)
	i.state.IsLoading = false
	renderErr = i.renderLocked(v)
	expanded := i.expandedLocked()
	snapshot = i.state.clone()
	i.mu.Unlock()

	i.bus.Emit(ctx, events.StateChanged, snapshot)

	if renderErr != nil {
		return i.handleError(ctx, renderErr)
	}

	i.restoreExpanded(ctx, expanded)

	i.bus.Emit(ctx, events.CommentsLoaded, res)

	return nil
}

// rerender renders every region from the current state without fetching.
func (i *Instance) rerender(ctx context.Context) error {
	v := i.viewer(ctx)

	i.mu.Lock()
	err := i.renderLocked(v)
	expanded := i.expandedLocked()
	i.mu.Unlock()

	if err != nil {
		return i.handleError(ctx, err)
	}

	i.restoreExpanded(ctx, expanded)

	return nil
}

// expandedLocked lists the expanded comments of the current page in display order.
func (i *Instance) expandedLocked() []string {
	ids := make([]string, 0, len(i.state.ExpandedReplies))

	for _, c := range i.state.Comments {
		if i.state.ExpandedReplies[c.ID] {
			ids = append(ids, c.ID)
		}
	}

	return ids
}

// restoreExpanded refetches the replies of every comment that was open before
// the list was rendered again.
func (i *Instance) restoreExpanded(ctx context.Context, ids []string) {
	for _, id := range ids {
		err := i.loadReplies(ctx, id)
		if err != nil && !errors.Is(err, ErrDestroyed) {
			slog.DebugContext(ctx, "failed to restore replies", "commentId", id, "error", err)
		}
	}
}

func (i *Instance) repliesSelector(parentID string) dom.Selector {
	return dom.ByClass(i.opts.class("replies")).With(attrParentID, parentID)
}

func (i *Instance) loadReplies(ctx context.Context, parentID string) error {
	v := i.viewer(ctx)

	i.mu.Lock()

	if i.closed {
		i.mu.Unlock()

		return ErrDestroyed
	}

	el := i.doc.Query(i.container, i.repliesSelector(parentID))
	if el == nil {
		i.mu.Unlock()

		return nil
	}

	i.replyGen[parentID]++
	gen := i.replyGen[parentID]

	loading, err := i.opts.Templates.Loading(i.baseView())
	if err == nil {
		err = i.doc.SetInnerHTML(el, string(loading))
	}

	i.doc.Show(el)
	i.mu.Unlock()

	if err != nil {
		return i.handleError(ctx, fmt.Errorf("failed to render loading state: %w", err))
	}

	res, err := i.opts.API.GetReplies(ctx, parentID, discuss.GetRepliesParams{Page: 0, PageSize: ReplyPageSize})

	i.mu.Lock()

	if i.closed || gen != i.replyGen[parentID] {
		i.mu.Unlock()
		slog.DebugContext(ctx, "discarded stale replies response", "parentId", parentID)

		return nil
	}

	if err != nil {
		i.mu.Unlock()

		return i.handleError(ctx, fmt.Errorf("failed to get replies: %w", err))
	}

	i.replies[parentID] = res.Replies

	// the list may have been rendered again while the request was in flight
	el = i.doc.Query(i.container, i.repliesSelector(parentID))
	if el == nil {
		i.mu.Unlock()

		return nil
	}

	err = i.renderRepliesLocked(v, el, res.Replies)
	if err == nil {
		i.doc.Show(el)
		err = i.applyEditingLocked()
	}

	i.mu.Unlock()

	if err != nil {
		return i.handleError(ctx, err)
	}

	return nil
}

func (i *Instance) submitEditor(ctx context.Context, action Action) error {
	content := strings.TrimSpace(action.Content)
	if content == "" {
		return nil
	}

	v := i.viewer(ctx)

	if i.opts.Auth != nil && !v.loggedIn {
		i.opts.Auth.LoginRequired(ctx)

		return nil
	}

	switch {
	case action.CommentID != "":
		updated, err := i.opts.API.UpdateComment(ctx, action.CommentID, discuss.UpdateCommentData{Content: content})
		if err != nil {
			return i.handleError(ctx, fmt.Errorf("failed to update comment: %w", err))
		}

		i.commit(ctx, func(s *State) {
			s.EditingComment = ""
		})

		i.bus.Emit(ctx, events.CommentUpdated, updated)

		if i.opts.OnCommentUpdate != nil {
			i.opts.OnCommentUpdate(ctx, updated)
		}
	case action.ParentID != "":
		reply, err := i.opts.API.CreateReply(ctx, action.ParentID, discuss.CreateCommentData{
			Content: content,
			Author:  i.author(v),
		})
		if err != nil {
			return i.handleError(ctx, fmt.Errorf("failed to create reply: %w", err))
		}

		i.bus.Emit(ctx, events.ReplyAdded, ReplyAddedEvent{Reply: reply, ParentID: action.ParentID})

		if i.opts.OnReplyAdd != nil {
			i.opts.OnReplyAdd(ctx, reply, action.ParentID)
		}
	default:
		comment, err := i.opts.API.CreateComment(ctx, i.opts.ObjectID, discuss.CreateCommentData{
			Content: content,
			Author:  i.author(v),
		})
		if err != nil {
			return i.handleError(ctx, fmt.Errorf("failed to create comment: %w", err))
		}

		i.bus.Emit(ctx, events.CommentAdded, comment)

		if i.opts.OnCommentAdd != nil {
			i.opts.OnCommentAdd(ctx, comment)
		}
	}

	// reloading renders a fresh, empty composer
	err := i.loadComments(ctx)

	if action.ParentID != "" && action.CommentID == "" {
		i.hideReplyEditor(ctx, action.ParentID)
	}

	return err
}

func (i *Instance) cancelEditor(ctx context.Context, action Action) error {
	if action.ParentID != "" {
		i.hideReplyEditor(ctx, action.ParentID)
	}

	if action.CommentID != "" {
		i.commit(ctx, func(s *State) {
			s.EditingComment = ""
		})

		return i.rerender(ctx)
	}

	return nil
}

func (i *Instance) replyEditorSelector(parentID string) dom.Selector {
	return dom.ByClass(i.opts.class("reply-editor-wrapper")).With(attrParentID, parentID)
}

func (i *Instance) showReplyEditor(ctx context.Context, parentID string) error {
	i.mu.Lock()

	wrapper := i.doc.Query(i.container, i.replyEditorSelector(parentID))
	if wrapper == nil {
		i.mu.Unlock()

		return nil
	}

	markup, err := i.opts.Templates.Editor(EditorView{
		BaseView:  i.baseView(),
		Mode:      EditorReply,
		ParentID:  parentID,
		CommentID: "",
		Content:   "",
	})
	if err == nil {
		err = i.doc.SetInnerHTML(wrapper, string(markup))
	}

	if err != nil {
		i.mu.Unlock()

		return i.handleError(ctx, fmt.Errorf("failed to render reply editor: %w", err))
	}

	i.doc.Show(wrapper)
	i.mu.Unlock()

	i.commit(ctx, func(s *State) {
		s.ReplyEditors[parentID] = true
	})

	return nil
}

func (i *Instance) hideReplyEditor(ctx context.Context, parentID string) {
	i.mu.Lock()

	wrapper := i.doc.Query(i.container, i.replyEditorSelector(parentID))
	if wrapper != nil {
		i.doc.Empty(wrapper)
		i.doc.Hide(wrapper)
	}

	i.mu.Unlock()

	i.commit(ctx, func(s *State) {
		delete(s.ReplyEditors, parentID)
	})
}

// contentOfLocked finds the content of a listed comment or a loaded reply.
func (i *Instance) contentOfLocked(commentID string) (string, bool) {
	if c := i.state.findComment(commentID); c != nil {
		return c.Content, true
	}

	for _, replies := range i.replies {
		for _, r := range replies {
			if r.ID == commentID {
				return r.Content, true
			}
		}
	}

	return "", false
}

func (i *Instance) startEdit(ctx context.Context, commentID string) error {
	i.mu.Lock()

	if _, ok := i.contentOfLocked(commentID); !ok {
		i.mu.Unlock()

		return nil
	}

	previous := i.state.EditingComment
	i.state.EditingComment = commentID

	var err error
	if previous == "" || previous == commentID {
		err = i.applyEditingLocked()
	}

	snapshot := i.state.clone()
	i.mu.Unlock()

	i.bus.Emit(ctx, events.StateChanged, snapshot)

	if err != nil {
		return i.handleError(ctx, err)
	}

	// another row is still showing its composer
	if previous != "" && previous != commentID {
		return i.rerender(ctx)
	}

	return nil
}

func (i *Instance) deleteComment(ctx context.Context, commentID string) error {
	ok, err := i.opts.Confirmer.Confirm(ctx, i.opts.Messages.Get(i18n.KeyConfirmDelete))
	if err != nil {
		return i.handleError(ctx, fmt.Errorf("failed to confirm deletion: %w", err))
	}

	if !ok {
		return nil
	}

	err = i.opts.API.DeleteComment(ctx, commentID)
	if err != nil {
		return i.handleError(ctx, fmt.Errorf("failed to delete comment: %w", err))
	}

	i.commit(ctx, func(s *State) {
		if s.EditingComment == commentID {
			s.EditingComment = ""
		}
	})

	i.bus.Emit(ctx, events.CommentDeleted, commentID)

	if i.opts.OnCommentDelete != nil {
		i.opts.OnCommentDelete(ctx, commentID)
	}

	return i.loadComments(ctx)
}

func (i *Instance) toggleReplies(ctx context.Context, commentID string) error {
	i.mu.Lock()

	repliesEl := i.doc.Query(i.container, i.repliesSelector(commentID))
	toggle := i.doc.Query(i.container, dom.ByClass(i.opts.class("reply-toggle")).With(attrCommentID, commentID))

	if repliesEl == nil || toggle == nil {
		i.mu.Unlock()

		return nil
	}

	expanded := !i.state.ExpandedReplies[commentID]

	if expanded {
		i.state.ExpandedReplies[commentID] = true
		i.doc.SetText(toggle, i.opts.Messages.Get(i18n.KeyHideReplies))
	} else {
		i.doc.Hide(repliesEl)
		delete(i.state.ExpandedReplies, commentID)
		// drop any fetch still in flight for the collapsed thread
		i.replyGen[commentID]++

		if c := i.state.findComment(commentID); c != nil {
			i.doc.SetText(toggle, i.opts.Messages.Format(i18n.KeyShowReplies, i18n.Params{"count": c.ReplyCount}))
		}
	}

	snapshot := i.state.clone()
	i.mu.Unlock()

	i.bus.Emit(ctx, events.StateChanged, snapshot)

	var err error
	if expanded {
		err = i.loadReplies(ctx, commentID)
	}

	i.bus.Emit(ctx, events.ReplyToggled, ReplyToggledEvent{CommentID: commentID, Expanded: expanded})

	return err
}

func (i *Instance) goToPage(ctx context.Context, page int) error {
	i.mu.Lock()

	if page < 0 || page >= i.state.TotalPages {
		i.mu.Unlock()

		return nil
	}

	i.mu.Unlock()

	i.commit(ctx, func(s *State) {
		s.CurrentPage = page
	})

	err := i.loadComments(ctx)
	if errors.Is(err, ErrDestroyed) {
		return err
	}

	i.doc.ScrollIntoView(i.container)
	i.bus.Emit(ctx, events.PageChanged, page)

	return err
}
