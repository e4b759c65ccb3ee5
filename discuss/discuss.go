package discuss

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service implements API on top of a CommentRepository.
type Service struct {
	commentRepo CommentRepository
	now         func() time.Time
}

var _ API = (*Service)(nil)

func NewService(commentRepo CommentRepository) *Service {
	return &Service{
		commentRepo: commentRepo,
		now:         time.Now,
	}
}

// WithClock replaces the clock used for timestamps.
func (svc *Service) WithClock(now func() time.Time) *Service {
	svc.now = now

	return svc
}

func (svc *Service) GetComments(ctx context.Context, params GetCommentsParams) (*CommentsPage, error) {
	if params.Sort == "" {
		params.Sort = SortLatest
	}

	if !params.Sort.IsValid() {
		return nil, &InvalidSortError{Sort: params.Sort}
	}

	listParams := &ListCommentsParams{ObjectID: params.ObjectID}

	total, err := svc.commentRepo.Count(ctx, listParams)
	if err != nil {
		return nil, fmt.Errorf("failed to count comments: %w", err)
	}

	start, end := Window(params.Page, params.PageSize, total)

	listParams.Sort = params.Sort
	listParams.Offset = start
	listParams.Limit = end - start

	comments := make([]*Comment, 0)

	if listParams.Limit > 0 {
		comments, err = svc.commentRepo.List(ctx, listParams)
		if err != nil {
			return nil, fmt.Errorf("failed to list comments: %w", err)
		}
	}

	return &CommentsPage{
		Comments:    comments,
		TotalCount:  total,
		HasNext:     HasNext(params.Page, params.PageSize, total),
		CurrentPage: NormalizePage(params.Page),
	}, nil
}

func (svc *Service) CreateComment(ctx context.Context, objectID string, data CreateCommentData) (*Comment, error) {
	now := svc.now().Unix()

	comment := &Comment{
		ID:         uuid.NewString(),
		ObjectID:   objectID,
		ParentID:   nil,
		Content:    data.Content,
		Author:     ResolveAuthor(data.Author),
		CreatedAt:  now,
		UpdatedAt:  now,
		IsDeleted:  false,
		ReplyCount: 0,
	}

	err := svc.commentRepo.Insert(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	return comment, nil
}

func (svc *Service) UpdateComment(ctx context.Context, commentID string, data UpdateCommentData) (*Comment, error) {
	comment, err := svc.commentRepo.Find(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}

	comment.Content = data.Content
	comment.UpdatedAt = svc.now().Unix()

	err = svc.commentRepo.Update(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}

	return comment, nil
}

func (svc *Service) DeleteComment(ctx context.Context, commentID string) error {
	err := svc.commentRepo.SoftDelete(ctx, commentID)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	return nil
}

func (svc *Service) GetReplies(ctx context.Context, parentID string, params GetRepliesParams) (*RepliesPage, error) {
	listParams := &ListCommentsParams{ParentID: parentID}

	total, err := svc.commentRepo.Count(ctx, listParams)
	if err != nil {
		return nil, fmt.Errorf("failed to count replies: %w", err)
	}

	start, end := Window(params.Page, params.PageSize, total)

	listParams.Offset = start
	listParams.Limit = end - start

	replies := make([]*Comment, 0)

	if listParams.Limit > 0 {
		replies, err = svc.commentRepo.List(ctx, listParams)
		if err != nil {
			return nil, fmt.Errorf("failed to list replies: %w", err)
		}
	}

	return &RepliesPage{
		Replies:    replies,
		TotalCount: total,
		HasNext:    HasNext(params.Page, params.PageSize, total),
	}, nil
}

func (svc *Service) CreateReply(ctx context.Context, parentID string, data CreateCommentData) (*Comment, error) {
	parent, err := svc.commentRepo.Find(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find parent comment: %w", err)
	}

	if parent.IsReply() {
		return nil, &NestedReplyError{ParentID: parentID}
	}

	now := svc.now().Unix()

	reply := &Comment{
		ID:         uuid.NewString(),
		ObjectID:   parent.ObjectID,
		ParentID:   &parent.ID,
		Content:    data.Content,
		Author:     ResolveAuthor(data.Author),
		CreatedAt:  now,
		UpdatedAt:  now,
		IsDeleted:  false,
		ReplyCount: 0,
	}

	err = svc.commentRepo.InsertReply(ctx, reply)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reply: %w", err)
	}

	return reply, nil
}
