package widget

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nasermirzaei89/commentbox/dom"
	"golang.org/x/net/html"
)

type ActionKind string

const (
	ActionSubmit        ActionKind = "submit"
	ActionCancel        ActionKind = "cancel"
	ActionReply         ActionKind = "reply"
	ActionEdit          ActionKind = "edit"
	ActionDelete        ActionKind = "delete"
	ActionToggleReplies ActionKind = "toggle-replies"
	ActionChangePage    ActionKind = "change-page"
	ActionLogin         ActionKind = "login"
)

// Action is a user intent produced by the delegation layer and consumed by
// Instance.Dispatch. Which fields are meaningful depends on Kind:
//
//   - ActionSubmit: Content, plus CommentID for an edit or ParentID for a reply.
//   - ActionCancel: CommentID for an edit composer or ParentID for a reply composer.
//   - ActionReply, ActionEdit, ActionDelete, ActionToggleReplies: CommentID.
//   - ActionChangePage: Page.
//   - ActionLogin: no fields.
type Action struct {
	Kind      ActionKind
	CommentID string
	ParentID  string
	Page      int
	Content   string
}

type UnknownActionError struct {
	Kind ActionKind
}

func (err UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", err.Kind)
}

// ContentField is the event value that carries the composer text.
const ContentField = "content"

const (
	attrAction    = "data-action"
	attrCommentID = "data-comment-id"
	attrParentID  = "data-parent-id"
	attrPage      = "data-page"
)

type actionDecoder func(ev dom.Event, matched *html.Node) (Action, bool)

// setupDelegation attaches one click listener per control class for the
// lifetime of the instance.
func (i *Instance) setupDelegation() {
	bindings := []struct {
		class  string
		decode actionDecoder
	}{
		{class: "editor-submit", decode: i.decodeEditor(ActionSubmit)},
		{class: "editor-cancel", decode: i.decodeEditor(ActionCancel)},
		{class: "action-btn", decode: i.decodeCommentAction},
		{class: "reply-toggle", decode: i.decodeReplyToggle},
		{class: "page-btn", decode: i.decodePageButton},
		{class: "login-btn", decode: decodeLogin},
	}

	for _, b := range bindings {
		decode := b.decode

		remove := i.doc.Delegate(i.container, "click", dom.ByClass(i.opts.class(b.class)),
			func(ctx context.Context, ev dom.Event, matched *html.Node) {
				action, ok := decode(ev, matched)
				if !ok {
					return
				}

				err := i.Dispatch(ctx, action)
				if err != nil {
					slog.DebugContext(ctx, "widget action failed", "action", action.Kind, "error", err)
				}
			},
		)

		i.cleanup = append(i.cleanup, remove)
	}
}

func (i *Instance) decodeEditor(kind ActionKind) actionDecoder {
	return func(ev dom.Event, matched *html.Node) (Action, bool) {
		editor := i.doc.Closest(matched, dom.ByClass(i.opts.class("editor")))
		if editor == nil {
			return Action{}, false
		}

		action := Action{Kind: kind}
		action.CommentID, _ = i.doc.Attr(editor, attrCommentID)
		action.ParentID, _ = i.doc.Attr(editor, attrParentID)

		if kind == ActionSubmit {
			content, ok := ev.Values[ContentField]
			if !ok {
				textarea := i.doc.Query(editor, dom.ByClass(i.opts.class("editor-textarea")))
				if textarea != nil {
					content = i.doc.Text(textarea)
				}
			}

			action.Content = content
		}

		return action, true
	}
}

func (i *Instance) decodeCommentAction(_ dom.Event, matched *html.Node) (Action, bool) {
	name, _ := i.doc.Attr(matched, attrAction)
	commentID, _ := i.doc.Attr(matched, attrCommentID)

	if commentID == "" {
		return Action{}, false
	}

	kind := ActionKind(name)

	switch kind {
	case ActionReply, ActionEdit, ActionDelete:
		return Action{Kind: kind, CommentID: commentID}, true
	default:
		return Action{}, false
	}
}

func (i *Instance) decodeReplyToggle(_ dom.Event, matched *html.Node) (Action, bool) {
	commentID, _ := i.doc.Attr(matched, attrCommentID)
	if commentID == "" {
		return Action{}, false
	}

	return Action{Kind: ActionToggleReplies, CommentID: commentID}, true
}

func (i *Instance) decodePageButton(_ dom.Event, matched *html.Node) (Action, bool) {
	if _, disabled := i.doc.Attr(matched, "disabled"); disabled {
		return Action{}, false
	}

	value, ok := i.doc.Attr(matched, attrPage)
	if !ok {
		return Action{}, false
	}

	page, err := strconv.Atoi(value)
	if err != nil {
		return Action{}, false
	}

	return Action{Kind: ActionChangePage, Page: page}, true
}

func decodeLogin(dom.Event, *html.Node) (Action, bool) {
	return Action{Kind: ActionLogin}, true
}
