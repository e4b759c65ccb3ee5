package widget

import (
	"fmt"
	"strings"

	"github.com/nasermirzaei89/commentbox/discuss"
	"github.com/nasermirzaei89/commentbox/dom"
	"github.com/nasermirzaei89/commentbox/i18n"
	"golang.org/x/net/html"
)

func (i *Instance) baseView() BaseView {
	return BaseView{Prefix: i.opts.CSSPrefix, Messages: i.opts.Messages}
}

func (i *Instance) commentView(v viewer, c *discuss.Comment) CommentView {
	isOwner := v.user != nil && c.Author.ID == v.user.ID

	return CommentView{
		BaseView:    i.baseView(),
		Comment:     c,
		TimeAgo:     i18n.TimeAgo(c.CreatedAt, i.opts.Now(), i.opts.Messages),
		IsOwner:     isOwner,
		CanModerate: isOwner || (i.opts.IsManager && v.loggedIn),
		Expanded:    i.state.ExpandedReplies[c.ID],
	}
}

func (i *Instance) renderLoadingLocked() error {
	if i.regions.list == nil {
		return nil
	}

	markup, err := i.opts.Templates.Loading(i.baseView())
	if err != nil {
		return fmt.Errorf("failed to render loading state: %w", err)
	}

	err = i.doc.SetInnerHTML(i.regions.list, string(markup))
	if err != nil {
		return fmt.Errorf("failed to render loading state: %w", err)
	}

	return nil
}

// renderLocked renders header, composer, list and pagination from the state.
// Expanded reply regions come back hidden and empty; callers restore them.
func (i *Instance) renderLocked(v viewer) error {
	steps := []struct {
		name   string
		el     *html.Node
		render func() (string, error)
	}{
		{name: "header", el: i.regions.header, render: i.headerMarkup},
		{name: "editor", el: i.regions.editor, render: func() (string, error) { return i.editorMarkup(v) }},
		{name: "list", el: i.regions.list, render: func() (string, error) { return i.listMarkup(v) }},
		{name: "pagination", el: i.regions.pagination, render: i.paginationMarkup},
	}

	for _, step := range steps {
		if step.el == nil {
			continue
		}

		markup, err := step.render()
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", step.name, err)
		}

		err = i.doc.SetInnerHTML(step.el, markup)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", step.name, err)
		}
	}

	return i.applyEditingLocked()
}

func (i *Instance) headerMarkup() (string, error) {
	markup, err := i.opts.Templates.Header(HeaderView{BaseView: i.baseView(), TotalCount: i.state.TotalCount})

	return string(markup), err
}

func (i *Instance) editorMarkup(v viewer) (string, error) {
	if i.opts.Auth != nil && !v.loggedIn {
		markup, err := i.opts.Templates.LoginRequired(i.baseView())

		return string(markup), err
	}

	markup, err := i.opts.Templates.Editor(EditorView{BaseView: i.baseView(), Mode: EditorNew})

	return string(markup), err
}

func (i *Instance) listMarkup(v viewer) (string, error) {
	if len(i.state.Comments) == 0 {
		markup, err := i.opts.Templates.Empty(i.baseView())

		return string(markup), err
	}

	var sb strings.Builder

	for _, c := range i.state.Comments {
		markup, err := i.opts.Templates.CommentItem(i.commentView(v, c))
		if err != nil {
			return "", err
		}

		sb.WriteString(string(markup))
	}

	return sb.String(), nil
}

func (i *Instance) paginationMarkup() (string, error) {
	markup, err := i.opts.Templates.Pagination(PaginationView{
		BaseView:    i.baseView(),
		CurrentPage: i.state.CurrentPage,
		TotalPages:  i.state.TotalPages,
	})

	return string(markup), err
}

func (i *Instance) renderRepliesLocked(v viewer, el *html.Node, replies []*discuss.Comment) error {
	if len(replies) == 0 {
		markup, err := i.opts.Templates.Empty(i.baseView())
		if err != nil {
			return fmt.Errorf("failed to render replies: %w", err)
		}

		return i.doc.SetInnerHTML(el, string(markup))
	}

	var sb strings.Builder

	for _, r := range replies {
		markup, err := i.opts.Templates.ReplyItem(i.commentView(v, r))
		if err != nil {
			return fmt.Errorf("failed to render reply %s: %w", r.ID, err)
		}

		sb.WriteString(string(markup))
	}

	err := i.doc.SetInnerHTML(el, sb.String())
	if err != nil {
		return fmt.Errorf("failed to render replies: %w", err)
	}

	return nil
}

// applyEditingLocked swaps the body of the comment being edited for an edit
// composer. It does nothing when that comment is not on screen.
func (i *Instance) applyEditingLocked() error {
	id := i.state.EditingComment
	if id == "" {
		return nil
	}

	body := i.doc.Query(i.container, dom.ByClass(i.opts.class("comment-body")).With(attrCommentID, id))
	if body == nil {
		return nil
	}

	content, _ := i.contentOfLocked(id)

	markup, err := i.opts.Templates.Editor(EditorView{
		BaseView:  i.baseView(),
		Mode:      EditorEdit,
		CommentID: id,
		Content:   content,
	})
	if err != nil {
		return fmt.Errorf("failed to render edit composer: %w", err)
	}

	err = i.doc.SetInnerHTML(body, string(markup))
	if err != nil {
		return fmt.Errorf("failed to render edit composer: %w", err)
	}

	return nil
}
