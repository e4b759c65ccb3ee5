package discuss

import (
	"context"
	"fmt"
	"log/slog"

	authcontext "github.com/nasermirzaei89/commentbox/authentication/context"
	"github.com/nasermirzaei89/commentbox/authorization"
)

const (
	ActionListComments  = "listComments"
	ActionCreateComment = "createComment"
	ActionCreateReply   = "createReply"
	ActionUpdateComment = "updateComment"
	ActionDeleteComment = "deleteComment"
)

// ownerActions are granted to the author of every new comment.
var ownerActions = []string{ActionUpdateComment, ActionDeleteComment}

// AuthorizationMiddleware checks every call against the authorization policy
// before handing it to next.
type AuthorizationMiddleware struct {
	authzClient *authorization.Client
	next        API
}

var _ API = (*AuthorizationMiddleware)(nil)

func NewAuthorizationMiddleware(authzClient *authorization.Client, next API) *AuthorizationMiddleware {
	return &AuthorizationMiddleware{
		authzClient: authzClient,
		next:        next,
	}
}

func (mw *AuthorizationMiddleware) GetComments(ctx context.Context, params GetCommentsParams) (*CommentsPage, error) {
	err := mw.authzClient.CheckAccess(ctx, ServiceName, params.ObjectID, ActionListComments)
	if err != nil {
		return nil, fmt.Errorf("failed to check authorization: %w", err)
	}

	page, err := mw.next.GetComments(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to call next method: %w", err)
	}

	return page, nil
}

func (mw *AuthorizationMiddleware) CreateComment(
	ctx context.Context,
	objectID string,
	data CreateCommentData,
) (*Comment, error) {
	err := mw.authzClient.CheckAccess(ctx, ServiceName, objectID, ActionCreateComment)
	if err != nil {
		return nil, fmt.Errorf("failed to check authorization: %w", err)
	}

	comment, err := mw.next.CreateComment(ctx, objectID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call next method: %w", err)
	}

	mw.grantOwner(ctx, comment.ID)

	return comment, nil
}

func (mw *AuthorizationMiddleware) UpdateComment(
	ctx context.Context,
	commentID string,
	data UpdateCommentData,
) (*Comment, error) {
	err := mw.authzClient.CheckAccess(ctx, ServiceName, commentID, ActionUpdateComment)
	if err != nil {
		return nil, fmt.Errorf("failed to check authorization: %w", err)
	}

	comment, err := mw.next.UpdateComment(ctx, commentID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call next method: %w", err)
	}

	return comment, nil
}

func (mw *AuthorizationMiddleware) DeleteComment(ctx context.Context, commentID string) error {
	err := mw.authzClient.CheckAccess(ctx, ServiceName, commentID, ActionDeleteComment)
	if err != nil {
		return fmt.Errorf("failed to check authorization: %w", err)
	}

	err = mw.next.DeleteComment(ctx, commentID)
	if err != nil {
		return fmt.Errorf("failed to call next method: %w", err)
	}

	if !authcontext.IsAnonymous(ctx) {
		err = mw.authzClient.Revoke(ctx, authcontext.GetSubject(ctx), ServiceName, commentID, ownerActions...)
		if err != nil {
			slog.ErrorContext(ctx, "failed to revoke comment owner policies", "commentId", commentID, "error", err)
		}
	}

	return nil
}

func (mw *AuthorizationMiddleware) GetReplies(
	ctx context.Context,
	parentID string,
	params GetRepliesParams,
) (*RepliesPage, error) {
	err := mw.authzClient.CheckAccess(ctx, ServiceName, parentID, ActionListComments)
	if err != nil {
		return nil, fmt.Errorf("failed to check authorization: %w", err)
	}

	page, err := mw.next.GetReplies(ctx, parentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to call next method: %w", err)
	}

	return page, nil
}

func (mw *AuthorizationMiddleware) CreateReply(
	ctx context.Context,
	parentID string,
	data CreateCommentData,
) (*Comment, error) {
	err := mw.authzClient.CheckAccess(ctx, ServiceName, parentID, ActionCreateReply)
	if err != nil {
		return nil, fmt.Errorf("failed to check authorization: %w", err)
	}

	reply, err := mw.next.CreateReply(ctx, parentID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call next method: %w", err)
	}

	mw.grantOwner(ctx, reply.ID)

	return reply, nil
}

// grantOwner lets the creator edit and delete the comment. The comment already
// exists at this point, so a failure is logged rather than returned.
func (mw *AuthorizationMiddleware) grantOwner(ctx context.Context, commentID string) {
	if authcontext.IsAnonymous(ctx) {
		return
	}

	err := mw.authzClient.Grant(ctx, authcontext.GetSubject(ctx), ServiceName, commentID, ownerActions...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to grant comment owner policies", "commentId", commentID, "error", err)
	}
}
