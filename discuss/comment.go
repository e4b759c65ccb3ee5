package discuss

import (
	"context"
	"fmt"
)

// Author is a snapshot of the commenter taken when the comment is written.
type Author struct {
	ID         string
	Nickname   string
	ProfileURL string
	IsManager  bool
}

// AnonymousAuthor is used when a comment is created without an author.
var AnonymousAuthor = Author{
	ID:        "anonymous",
	Nickname:  "Anonymous",
	IsManager: false,
}

type Comment struct {
	ID         string
	ObjectID   string
	ParentID   *string
	Content    string
	Author     Author
	CreatedAt  int64
	UpdatedAt  int64
	IsDeleted  bool
	ReplyCount int
}

// IsReply reports whether the comment belongs to another comment.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

// Clone returns a copy that shares no memory with c.
func (c *Comment) Clone() *Comment {
	clone := *c

	if c.ParentID != nil {
		parentID := *c.ParentID
		clone.ParentID = &parentID
	}

	return &clone
}

type CommentRepository interface {
	Insert(ctx context.Context, comment *Comment) (err error)
	// InsertReply stores reply and increments the reply count of its parent in one step.
	InsertReply(ctx context.Context, reply *Comment) (err error)
	Find(ctx context.Context, id string) (comment *Comment, err error)
	Update(ctx context.Context, comment *Comment) (err error)
	// SoftDelete flags the comment as deleted and decrements its parent's reply count, floored at zero.
	// Deleting an already deleted comment changes nothing.
	SoftDelete(ctx context.Context, id string) (err error)
	List(ctx context.Context, params *ListCommentsParams) (comments []*Comment, err error)
	Count(ctx context.Context, params *ListCommentsParams) (count int, err error)
}

type ListCommentsParams struct {
	ObjectID string
	// ParentID selects replies of a comment; empty selects top-level comments.
	ParentID string
	Sort     Sort
	Offset   int
	Limit    int
}

type CommentNotFoundError struct {
	ID string
}

func (err CommentNotFoundError) Error() string {
	return fmt.Sprintf("comment with id %q not found", err.ID)
}

type NestedReplyError struct {
	ParentID string
}

func (err NestedReplyError) Error() string {
	return fmt.Sprintf("comment with id %q is a reply and cannot have replies", err.ParentID)
}
