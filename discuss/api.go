package discuss

import (
	"context"
	"fmt"
	"sort"
)

const ServiceName = "github.com/nasermirzaei89/commentbox/discuss"

const DefaultPageSize = 10

// API is the data access contract every comment widget talks to.
type API interface {
	GetComments(ctx context.Context, params GetCommentsParams) (page *CommentsPage, err error)
	CreateComment(ctx context.Context, objectID string, data CreateCommentData) (comment *Comment, err error)
	UpdateComment(ctx context.Context, commentID string, data UpdateCommentData) (comment *Comment, err error)
	DeleteComment(ctx context.Context, commentID string) (err error)
	GetReplies(ctx context.Context, parentID string, params GetRepliesParams) (page *RepliesPage, err error)
	CreateReply(ctx context.Context, parentID string, data CreateCommentData) (reply *Comment, err error)
}

type Sort string

const (
	SortLatest  Sort = "latest"
	SortPopular Sort = "popular"
)

func (s Sort) IsValid() bool {
	switch s {
	case SortLatest, SortPopular:
		return true
	default:
		return false
	}
}

type InvalidSortError struct {
	Sort Sort
}

func (err InvalidSortError) Error() string {
	return fmt.Sprintf("invalid sort: %q", err.Sort)
}

type GetCommentsParams struct {
	ObjectID string
	Page     int
	PageSize int
	Sort     Sort
}

type CommentsPage struct {
	Comments    []*Comment
	TotalCount  int
	HasNext     bool
	CurrentPage int
}

type GetRepliesParams struct {
	Page     int
	PageSize int
}

type RepliesPage struct {
	Replies    []*Comment
	TotalCount int
	HasNext    bool
}

type CreateCommentData struct {
	Content string
	Author  *Author
}

type UpdateCommentData struct {
	Content string
}

// NormalizePage treats a negative page as the first one.
func NormalizePage(page int) int {
	return max(page, 0)
}

func normalizePageSize(pageSize int) int {
	if pageSize <= 0 {
		return DefaultPageSize
	}

	return pageSize
}

// Window normalizes a zero-based page request and returns the slice bounds
// [start, end) it covers within total rows. Pages past the end yield an empty
// window at total.
func Window(page, pageSize, total int) (start, end int) {
	page = NormalizePage(page)
	pageSize = normalizePageSize(pageSize)

	if page > total/pageSize {
		return total, total
	}

	start = min(page*pageSize, total)
	end = start + min(pageSize, total-start)

	return start, end
}

// HasNext reports whether rows remain after the requested page.
func HasNext(page, pageSize, total int) bool {
	page = NormalizePage(page)
	pageSize = normalizePageSize(pageSize)

	if page > total/pageSize {
		return false
	}

	return total-page*pageSize > pageSize
}

// SortComments orders top-level comments in place. The sort is stable, so ties
// keep the order the store returned them in.
func SortComments(comments []*Comment, s Sort) {
	switch s {
	case SortPopular:
		sort.SliceStable(comments, func(i, j int) bool {
			return comments[i].ReplyCount > comments[j].ReplyCount
		})
	default:
		sort.SliceStable(comments, func(i, j int) bool {
			return comments[i].CreatedAt > comments[j].CreatedAt
		})
	}
}

// SortReplies orders replies oldest first, stable on ties.
func SortReplies(replies []*Comment) {
	sort.SliceStable(replies, func(i, j int) bool {
		return replies[i].CreatedAt < replies[j].CreatedAt
	})
}

// ResolveAuthor returns the given author or the anonymous identity when nil.
func ResolveAuthor(author *Author) Author {
	if author == nil {
		return AnonymousAuthor
	}

	return *author
}
