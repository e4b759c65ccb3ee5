package discuss_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/google/uuid"
	authcontext "github.com/nasermirzaei89/commentbox/authentication/context"
	"github.com/nasermirzaei89/commentbox/authorization"
	"github.com/nasermirzaei89/commentbox/authorization/casbin"
	"github.com/nasermirzaei89/commentbox/discuss"
	"github.com/nasermirzaei89/commentbox/discuss/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPolicy = `g, system:anonymous, system:unauthenticated

p, system:unauthenticated, github.com/nasermirzaei89/commentbox/discuss, *, listComments
p, system:authenticated, github.com/nasermirzaei89/commentbox/discuss, *, listComments
p, system:authenticated, github.com/nasermirzaei89/commentbox/discuss, *, createComment
p, system:authenticated, github.com/nasermirzaei89/commentbox/discuss, *, createReply
p, system:manager, github.com/nasermirzaei89/commentbox/discuss, *, updateComment
p, system:manager, github.com/nasermirzaei89/commentbox/discuss, *, deleteComment
`

func newAuthzClient(t *testing.T) *authorization.Client {
	t.Helper()

	tmpFile := filepath.Join(t.TempDir(), "policy.csv")

	err := os.WriteFile(tmpFile, []byte(testPolicy), 0o600)
	require.NoError(t, err)

	provider, err := casbin.NewAuthorizationProvider(fileadapter.NewAdapter(tmpFile))
	require.NoError(t, err)

	authzSvc, err := authorization.NewService(provider)
	require.NoError(t, err)

	return authorization.NewClient(authzSvc)
}

func requireAccessDenied(t *testing.T, err error) {
	t.Helper()

	var accessDenied *authorization.AccessDeniedError
	require.ErrorAs(t, err, &accessDenied)
}

func TestAuthorizationMiddleware(t *testing.T) {
	ctx := context.Background()

	client := newAuthzClient(t)
	store := memory.NewStore(memory.WithDelay(0))
	api := discuss.NewAuthorizationMiddleware(client, store)

	authorID := uuid.NewString()
	otherID := uuid.NewString()
	managerID := uuid.NewString()

	require.NoError(t, client.AddToGroup(ctx, authorID, authcontext.Authenticated))
	require.NoError(t, client.AddToGroup(ctx, otherID, authcontext.Authenticated))
	require.NoError(t, client.AddToGroup(ctx, managerID, authcontext.Authenticated, authcontext.Manager))

	anonymousCtx := ctx
	authorCtx := authcontext.WithSubject(ctx, authorID)
	otherCtx := authcontext.WithSubject(ctx, otherID)
	managerCtx := authcontext.WithSubject(ctx, managerID)

	t.Run("anonymous can list but not write", func(t *testing.T) {
		page, err := api.GetComments(anonymousCtx, discuss.GetCommentsParams{ObjectID: memory.SeedObjectID})
		require.NoError(t, err)
		assert.Equal(t, 3, page.TotalCount)

		_, err = api.GetReplies(anonymousCtx, "comment-1", discuss.GetRepliesParams{})
		require.NoError(t, err)

		_, err = api.CreateComment(anonymousCtx, memory.SeedObjectID, discuss.CreateCommentData{Content: "hi"})
		requireAccessDenied(t, err)

		_, err = api.CreateReply(anonymousCtx, "comment-1", discuss.CreateCommentData{Content: "hi"})
		requireAccessDenied(t, err)

		err = api.DeleteComment(anonymousCtx, "comment-1")
		requireAccessDenied(t, err)
	})

	var commentID string

	t.Run("authenticated creates and owns a comment", func(t *testing.T) {
		comment, err := api.CreateComment(authorCtx, memory.SeedObjectID, discuss.CreateCommentData{Content: "mine"})
		require.NoError(t, err)

		commentID = comment.ID

		updated, err := api.UpdateComment(authorCtx, commentID, discuss.UpdateCommentData{Content: "edited"})
		require.NoError(t, err)
		assert.Equal(t, "edited", updated.Content)
	})

	t.Run("other user cannot touch foreign comment", func(t *testing.T) {
		_, err := api.UpdateComment(otherCtx, commentID, discuss.UpdateCommentData{Content: "hijack"})
		requireAccessDenied(t, err)

		err = api.DeleteComment(otherCtx, commentID)
		requireAccessDenied(t, err)
	})

	t.Run("authenticated can reply and owns the reply", func(t *testing.T) {
		reply, err := api.CreateReply(otherCtx, commentID, discuss.CreateCommentData{Content: "reply"})
		require.NoError(t, err)

		err = api.DeleteComment(otherCtx, reply.ID)
		require.NoError(t, err)
	})

	t.Run("manager can edit and delete any comment", func(t *testing.T) {
		_, err := api.UpdateComment(managerCtx, "comment-2", discuss.UpdateCommentData{Content: "moderated"})
		require.NoError(t, err)

		err = api.DeleteComment(managerCtx, "comment-2")
		require.NoError(t, err)
	})

	t.Run("owner loses rights after deleting", func(t *testing.T) {
		err := api.DeleteComment(authorCtx, commentID)
		require.NoError(t, err)

		assert.False(t, client.Can(ctx, authorID, discuss.ServiceName, commentID, discuss.ActionUpdateComment))
	})

	t.Run("store errors pass through", func(t *testing.T) {
		_, err := api.UpdateComment(managerCtx, "missing", discuss.UpdateCommentData{Content: "x"})

		var notFound *discuss.CommentNotFoundError
		require.ErrorAs(t, err, &notFound)
	})
}
