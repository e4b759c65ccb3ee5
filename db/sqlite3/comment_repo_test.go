package sqlite3_test

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/nasermirzaei89/commentbox/db/sqlite3"
	"github.com/nasermirzaei89/commentbox/discuss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())

	db, err := sqlite3.NewDB(t.Context(), "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	err = sqlite3.MigrateUp(t.Context(), db)
	require.NoError(t, err)

	return db
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	ts := int64(1_700_000_000)

	return func() time.Time {
		ts++

		return time.Unix(ts, 0)
	}
}

func newService(t *testing.T) (*discuss.Service, *sqlite3.CommentRepository) {
	t.Helper()

	repo := sqlite3.NewCommentRepository(newDB(t))

	return discuss.NewService(repo).WithClock(steppingClock()), repo
}

func ids(comments []*discuss.Comment) []string {
	out := make([]string, 0, len(comments))
	for _, c := range comments {
		out = append(out, c.ID)
	}

	return out
}

func TestCommentRepositoryInsertAndFind(t *testing.T) {
	t.Parallel()

	repo := sqlite3.NewCommentRepository(newDB(t))

	comment := &discuss.Comment{
		ID:       "c1",
		ObjectID: "obj",
		Content:  "hello",
		Author: discuss.Author{
			ID:         "u1",
			Nickname:   "nick",
			ProfileURL: "https://example.com/a.png",
			IsManager:  true,
		},
		CreatedAt: 10,
		UpdatedAt: 10,
	}

	require.NoError(t, repo.Insert(t.Context(), comment))

	got, err := repo.Find(t.Context(), "c1")
	require.NoError(t, err)
	assert.Equal(t, comment, got)

	_, err = repo.Find(t.Context(), "missing")

	var notFound *discuss.CommentNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.ID)
}

func TestCommentRepositoryUpdate(t *testing.T) {
	t.Parallel()

	svc, repo := newService(t)

	created, err := svc.CreateComment(t.Context(), "obj", discuss.CreateCommentData{Content: "before"})
	require.NoError(t, err)

	updated, err := svc.UpdateComment(t.Context(), created.ID, discuss.UpdateCommentData{Content: "after"})
	require.NoError(t, err)
	assert.Greater(t, updated.UpdatedAt, updated.CreatedAt)

	stored, err := repo.Find(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", stored.Content)
	assert.Equal(t, updated.UpdatedAt, stored.UpdatedAt)

	err = repo.Update(t.Context(), &discuss.Comment{ID: "missing"})

	var notFound *discuss.CommentNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCommentRepositorySorting(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)

	a, err := svc.CreateComment(t.Context(), "obj", discuss.CreateCommentData{Content: "a"})
	require.NoError(t, err)

	b, err := svc.CreateComment(t.Context(), "obj", discuss.CreateCommentData{Content: "b"})
	require.NoError(t, err)

	c, err := svc.CreateComment(t.Context(), "obj", discuss.CreateCommentData{Content: "c"})
	require.NoError(t, err)

	_, err = svc.CreateReply(t.Context(), a.ID, discuss.CreateCommentData{Content: "r"})
	require.NoError(t, err)

	tests := []struct {
		name string
		sort discuss.Sort
		want []string
	}{
		{name: "latest", sort: discuss.SortLatest, want: []string{c.ID, b.ID, a.ID}},
		{name: "popular keeps natural order on ties", sort: discuss.SortPopular, want: []string{a.ID, c.ID, b.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.GetComments(t.Context(), discuss.GetCommentsParams{
				ObjectID: "obj",
				PageSize: 10,
				Sort:     tt.sort,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(page.Comments))
			assert.Equal(t, 3, page.TotalCount)
		})
	}
}

func TestCommentRepositoryPagination(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)

	created := make([]string, 0, 5)

	for range 5 {
		c, err := svc.CreateComment(t.Context(), "obj", discuss.CreateCommentData{Content: "x"})
		require.NoError(t, err)

		created = append(created, c.ID)
	}

	tests := []struct {
		page    int
		want    []string
		hasNext bool
	}{
		{page: 0, want: []string{created[4], created[3]}, hasNext: true},
		{page: 1, want: []string{created[2], created[1]}, hasNext: true},
		{page: 2, want: []string{created[0]}, hasNext: false},
		{page: 3, want: []string{}, hasNext: false},
	}

	for _, tt := range tests {
		page, err := svc.GetComments(t.Context(), discuss.GetCommentsParams{ObjectID: "obj", Page: tt.page, PageSize: 2})
		require.NoError(t, err)

		assert.Equal(t, tt.want, ids(page.Comments), "page %d", tt.page)
		assert.Equal(t, tt.hasNext, page.HasNext, "page %d", tt.page)
		assert.Equal(t, 5, page.TotalCount)
		assert.Equal(t, tt.page, page.CurrentPage)
	}
}

func TestCommentRepositoryObjectIsolation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)

	_, err := svc.CreateComment(t.Context(), "one", discuss.CreateCommentData{Content: "x"})
	require.NoError(t, err)

	other, err := svc.CreateComment(t.Context(), "two", discuss.CreateCommentData{Content: "y"})
	require.NoError(t, err)

	page, err := svc.GetComments(t.Context(), discuss.GetCommentsParams{ObjectID: "two", PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{other.ID}, ids(page.Comments))
}

func TestCommentRepositoryReplies(t *testing.T) {
	t.Parallel()

	svc, repo := newService(t)

	parent, err := svc.CreateComment(t.Context(), "obj", discuss.CreateCommentData{Content: "parent"})
	require.NoError(t, err)

	first, err := svc.CreateReply(t.Context(), parent.ID, discuss.CreateCommentData{Content: "first"})
	require.NoError(t, err)
	assert.Equal(t, "obj", first.ObjectID)
	require.NotNil(t, first.ParentID)
	assert.Equal(t, parent.ID, *first.ParentID)

	second, err := svc.CreateReply(t.Context(), parent.ID, discuss.CreateCommentData{Content: "second"})
	require.NoError(t, err)

	stored, err := repo.Find(t.Context(), parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ReplyCount)

	replies, err := svc.GetReplies(t.Context(), parent.ID, discuss.GetRepliesParams{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, ids(replies.Replies))
	assert.Equal(t, 2, replies.TotalCount)

	page, err := svc.GetComments(t.Context(), discuss.GetCommentsParams{ObjectID: "obj", PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{parent.ID}, ids(page.Comments), "replies are not listed at top level")

	_, err = svc.CreateReply(t.Context(), first.ID, discuss.CreateCommentData{Content: "nested"})

	var nested *discuss.NestedReplyError
	require.ErrorAs(t, err, &nested)

	_, err = svc.CreateReply(t.Context(), "missing", discuss.CreateCommentData{Content: "orphan"})

	var notFound *discuss.CommentNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCommentRepositorySoftDelete(t *testing.T) {
	t.Parallel()

	svc, repo := newService(t)

	parent, err := svc.CreateComment(t.Context(), "obj", discuss.CreateCommentData{Content: "parent"})
	require.NoError(t, err)

	reply, err := svc.CreateReply(t.Context(), parent.ID, discuss.CreateCommentData{Content: "reply"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteComment(t.Context(), reply.ID))
	require.NoError(t, svc.DeleteComment(t.Context(), reply.ID), "deleting twice is a no-op")

	stored, err := repo.Find(t.Context(), parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ReplyCount)

	deleted, err := repo.Find(t.Context(), reply.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	replies, err := svc.GetReplies(t.Context(), parent.ID, discuss.GetRepliesParams{PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, replies.Replies)

	err = svc.DeleteComment(t.Context(), "missing")

	var notFound *discuss.CommentNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCommentRepositoryDeleteParentKeepsReplies(t *testing.T) {
	t.Parallel()

	svc, repo := newService(t)

	parent, err := svc.CreateComment(t.Context(), "obj", discuss.CreateCommentData{Content: "parent"})
	require.NoError(t, err)

	reply, err := svc.CreateReply(t.Context(), parent.ID, discuss.CreateCommentData{Content: "reply"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteComment(t.Context(), parent.ID))

	page, err := svc.GetComments(t.Context(), discuss.GetCommentsParams{ObjectID: "obj", PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Comments)
	assert.Zero(t, page.TotalCount)

	stored, err := repo.Find(t.Context(), reply.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDeleted)
}

func TestMigrateDown(t *testing.T) {
	t.Parallel()

	db := newDB(t)

	version, dirty, err := sqlite3.MigrationVersion(db)
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	require.NoError(t, sqlite3.MigrateDown(t.Context(), db))

	version, _, err = sqlite3.MigrationVersion(db)
	require.NoError(t, err)
	assert.Zero(t, version)

	_, err = sqlite3.NewCommentRepository(db).Find(t.Context(), "any")
	require.Error(t, err)

	var notFound *discuss.CommentNotFoundError
	assert.NotErrorAs(t, err, &notFound, "the table is gone")
}
