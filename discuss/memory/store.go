// Package memory provides the reference in-memory implementation of the
// comment data access contract, used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nasermirzaei89/commentbox/discuss"
)

const DefaultDelay = 300 * time.Millisecond

// Store keeps comments in a slice whose order is the store's natural order:
// new top-level comments are inserted at the head, replies appended at the end.
type Store struct {
	mu        sync.Mutex
	comments  []*discuss.Comment
	idCounter int
	delay     time.Duration
	now       func() time.Time
	seed      func(now time.Time) []*discuss.Comment
}

var _ discuss.API = (*Store)(nil)

type Option func(*Store)

// WithDelay sets the artificial latency of every call.
func WithDelay(delay time.Duration) Option {
	return func(s *Store) {
		s.delay = delay
	}
}

// WithClock replaces the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithComments replaces the seed data. Comments are copied.
func WithComments(comments []*discuss.Comment) Option {
	return func(s *Store) {
		s.seed = func(time.Time) []*discuss.Comment {
			return cloneAll(comments)
		}
	}
}

// NewStore returns a store seeded with SeedComments unless WithComments is given.
func NewStore(opts ...Option) *Store {
	s := &Store{
		delay: DefaultDelay,
		now:   time.Now,
		seed:  SeedComments,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.comments = s.seed(s.now())
	s.idCounter = 1

	return s
}

func (s *Store) simulateDelay(ctx context.Context) error {
	if s.delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for store: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// generateID must be called with mu held. Ids already taken by seed data are skipped.
func (s *Store) generateID() string {
	for {
		id := fmt.Sprintf("comment-%d", s.idCounter)
		s.idCounter++

		if s.find(id) == nil {
			return id
		}
	}
}

// find must be called with mu held.
func (s *Store) find(id string) *discuss.Comment {
	for _, comment := range s.comments {
		if comment.ID == id {
			return comment
		}
	}

	return nil
}

func (s *Store) GetComments(ctx context.Context, params discuss.GetCommentsParams) (*discuss.CommentsPage, error) {
	err := s.simulateDelay(ctx)
	if err != nil {
		return nil, err
	}

	if params.Sort == "" {
		params.Sort = discuss.SortLatest
	}

	if !params.Sort.IsValid() {
		return nil, &discuss.InvalidSortError{Sort: params.Sort}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]*discuss.Comment, 0)

	for _, comment := range s.comments {
		if comment.ObjectID == params.ObjectID && !comment.IsReply() && !comment.IsDeleted {
			filtered = append(filtered, comment.Clone())
		}
	}

	discuss.SortComments(filtered, params.Sort)

	start, end := discuss.Window(params.Page, params.PageSize, len(filtered))

	return &discuss.CommentsPage{
		Comments:    filtered[start:end],
		TotalCount:  len(filtered),
		HasNext:     discuss.HasNext(params.Page, params.PageSize, len(filtered)),
		CurrentPage: discuss.NormalizePage(params.Page),
	}, nil
}

func (s *Store) CreateComment(
	ctx context.Context,
	objectID string,
	data discuss.CreateCommentData,
) (*discuss.Comment, error) {
	err := s.simulateDelay(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()

	comment := &discuss.Comment{
		ID:         s.generateID(),
		ObjectID:   objectID,
		ParentID:   nil,
		Content:    data.Content,
		Author:     discuss.ResolveAuthor(data.Author),
		CreatedAt:  now,
		UpdatedAt:  now,
		IsDeleted:  false,
		ReplyCount: 0,
	}

	s.comments = append([]*discuss.Comment{comment}, s.comments...)

	return comment.Clone(), nil
}

func (s *Store) UpdateComment(
	ctx context.Context,
	commentID string,
	data discuss.UpdateCommentData,
) (*discuss.Comment, error) {
	err := s.simulateDelay(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	comment := s.find(commentID)
	if comment == nil {
		return nil, &discuss.CommentNotFoundError{ID: commentID}
	}

	comment.Content = data.Content
	comment.UpdatedAt = s.now().Unix()

	return comment.Clone(), nil
}

func (s *Store) DeleteComment(ctx context.Context, commentID string) error {
	err := s.simulateDelay(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	comment := s.find(commentID)
	if comment == nil {
		return &discuss.CommentNotFoundError{ID: commentID}
	}

	if comment.IsDeleted {
		return nil
	}

	comment.IsDeleted = true

	if comment.IsReply() {
		parent := s.find(*comment.ParentID)
		if parent != nil && parent.ReplyCount > 0 {
			parent.ReplyCount--
		}
	}

	return nil
}

func (s *Store) GetReplies(
	ctx context.Context,
	parentID string,
	params discuss.GetRepliesParams,
) (*discuss.RepliesPage, error) {
	err := s.simulateDelay(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replies := make([]*discuss.Comment, 0)

	for _, comment := range s.comments {
		if comment.IsReply() && *comment.ParentID == parentID && !comment.IsDeleted {
			replies = append(replies, comment.Clone())
		}
	}

	discuss.SortReplies(replies)

	start, end := discuss.Window(params.Page, params.PageSize, len(replies))

	return &discuss.RepliesPage{
		Replies:    replies[start:end],
		TotalCount: len(replies),
		HasNext:    discuss.HasNext(params.Page, params.PageSize, len(replies)),
	}, nil
}

func (s *Store) CreateReply(
	ctx context.Context,
	parentID string,
	data discuss.CreateCommentData,
) (*discuss.Comment, error) {
	err := s.simulateDelay(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent := s.find(parentID)
	if parent == nil {
		return nil, &discuss.CommentNotFoundError{ID: parentID}
	}

	if parent.IsReply() {
		return nil, &discuss.NestedReplyError{ParentID: parentID}
	}

	now := s.now().Unix()
	replyTo := parent.ID

	reply := &discuss.Comment{
		ID:         s.generateID(),
		ObjectID:   parent.ObjectID,
		ParentID:   &replyTo,
		Content:    data.Content,
		Author:     discuss.ResolveAuthor(data.Author),
		CreatedAt:  now,
		UpdatedAt:  now,
		IsDeleted:  false,
		ReplyCount: 0,
	}

	s.comments = append(s.comments, reply)
	parent.ReplyCount++

	return reply.Clone(), nil
}

// Reset restores the seed data and moves the id counter past the seeded ids.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.comments = s.seed(s.now())
	s.idCounter = 100
}

// All returns a copy of every stored comment, deleted ones included, in natural order.
func (s *Store) All() []*discuss.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneAll(s.comments)
}

func cloneAll(comments []*discuss.Comment) []*discuss.Comment {
	out := make([]*discuss.Comment, 0, len(comments))

	for _, comment := range comments {
		out = append(out, comment.Clone())
	}

	return out
}
