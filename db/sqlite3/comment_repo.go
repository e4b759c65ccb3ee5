package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/nasermirzaei89/commentbox/discuss"
)

const tableComments = "comments"

type CommentRepository struct {
	db *sql.DB
}

var _ discuss.CommentRepository = (*CommentRepository)(nil)

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// commentFieldSeq orders rows by insertion; it is never exposed.
const commentFieldSeq = "seq"

const (
	commentFieldID               = "id"
	commentFieldObjectID         = "object_id"
	commentFieldParentID         = "parent_id"
	commentFieldContent          = "content"
	commentFieldAuthorID         = "author_id"
	commentFieldAuthorNickname   = "author_nickname"
	commentFieldAuthorProfileURL = "author_profile_url"
	commentFieldAuthorIsManager  = "author_is_manager"
	commentFieldCreatedAt        = "created_at"
	commentFieldUpdatedAt        = "updated_at"
	commentFieldIsDeleted        = "is_deleted"
	commentFieldReplyCount       = "reply_count"
)

func commentColumns() []string {
	return []string{
		commentFieldID,
		commentFieldObjectID,
		commentFieldParentID,
		commentFieldContent,
		commentFieldAuthorID,
		commentFieldAuthorNickname,
		commentFieldAuthorProfileURL,
		commentFieldAuthorIsManager,
		commentFieldCreatedAt,
		commentFieldUpdatedAt,
		commentFieldIsDeleted,
		commentFieldReplyCount,
	}
}

func commentValues(comment *discuss.Comment) []any {
	return []any{
		comment.ID,
		comment.ObjectID,
		comment.ParentID,
		comment.Content,
		comment.Author.ID,
		comment.Author.Nickname,
		comment.Author.ProfileURL,
		comment.Author.IsManager,
		comment.CreatedAt,
		comment.UpdatedAt,
		comment.IsDeleted,
		comment.ReplyCount,
	}
}

func scanComment(row sq.RowScanner) (*discuss.Comment, error) {
	var comment discuss.Comment

	err := row.Scan(
		&comment.ID,
		&comment.ObjectID,
		&comment.ParentID,
		&comment.Content,
		&comment.Author.ID,
		&comment.Author.Nickname,
		&comment.Author.ProfileURL,
		&comment.Author.IsManager,
		&comment.CreatedAt,
		&comment.UpdatedAt,
		&comment.IsDeleted,
		&comment.ReplyCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &comment, nil
}

func (repo *CommentRepository) Insert(ctx context.Context, comment *discuss.Comment) error {
	q := sq.Insert(tableComments).
		Columns(commentColumns()...).
		Values(commentValues(comment)...)

	q = q.RunWith(repo.db)

	_, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec insert: %w", err)
	}

	return nil
}

func (repo *CommentRepository) InsertReply(ctx context.Context, reply *discuss.Comment) error {
	if reply.ParentID == nil {
		return fmt.Errorf("failed to insert reply %q: parent id is missing", reply.ID)
	}

	return repo.inTx(ctx, func(tx *sql.Tx) error {
		_, err := sq.Insert(tableComments).
			Columns(commentColumns()...).
			Values(commentValues(reply)...).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to exec insert: %w", err)
		}

		result, err := sq.Update(tableComments).
			Set(commentFieldReplyCount, sq.Expr(commentFieldReplyCount+" + 1")).
			Where(sq.Eq{commentFieldID: *reply.ParentID}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to exec parent update: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rowsAffected == 0 {
			return &discuss.CommentNotFoundError{ID: *reply.ParentID}
		}

		return nil
	})
}

func (repo *CommentRepository) Find(ctx context.Context, id string) (*discuss.Comment, error) {
	q := sq.Select(commentColumns()...).
		From(tableComments).
		Where(sq.Eq{commentFieldID: id})

	q = q.RunWith(repo.db)

	comment, err := scanComment(q.QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &discuss.CommentNotFoundError{ID: id}
		}

		return nil, fmt.Errorf("failed to scan comment: %w", err)
	}

	return comment, nil
}

func (repo *CommentRepository) Update(ctx context.Context, comment *discuss.Comment) error {
	q := sq.Update(tableComments).
		Set(commentFieldContent, comment.Content).
		Set(commentFieldUpdatedAt, comment.UpdatedAt).
		Where(sq.Eq{commentFieldID: comment.ID})

	q = q.RunWith(repo.db)

	result, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &discuss.CommentNotFoundError{ID: comment.ID}
	}

	return nil
}

func (repo *CommentRepository) SoftDelete(ctx context.Context, id string) error {
	return repo.inTx(ctx, func(tx *sql.Tx) error {
		var (
			parentID  *string
			isDeleted bool
		)

		err := sq.Select(commentFieldParentID, commentFieldIsDeleted).
			From(tableComments).
			Where(sq.Eq{commentFieldID: id}).
			RunWith(tx).
			QueryRowContext(ctx).
			Scan(&parentID, &isDeleted)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &discuss.CommentNotFoundError{ID: id}
			}

			return fmt.Errorf("failed to scan comment: %w", err)
		}

		if isDeleted {
			return nil
		}

		_, err = sq.Update(tableComments).
			Set(commentFieldIsDeleted, true).
			Where(sq.Eq{commentFieldID: id}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to exec update: %w", err)
		}

		if parentID == nil {
			return nil
		}

		_, err = sq.Update(tableComments).
			Set(commentFieldReplyCount, sq.Expr("MAX("+commentFieldReplyCount+" - 1, 0)")).
			Where(sq.Eq{commentFieldID: *parentID}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to exec parent update: %w", err)
		}

		return nil
	})
}

func listFilter(params *discuss.ListCommentsParams) sq.And {
	filter := sq.And{sq.Eq{commentFieldIsDeleted: false}}

	if params.ObjectID != "" {
		filter = append(filter, sq.Eq{commentFieldObjectID: params.ObjectID})
	}

	if params.ParentID == "" {
		filter = append(filter, sq.Eq{commentFieldParentID: nil})
	} else {
		filter = append(filter, sq.Eq{commentFieldParentID: params.ParentID})
	}

	return filter
}

func listOrder(params *discuss.ListCommentsParams) []string {
	if params.ParentID != "" {
		return []string{commentFieldCreatedAt + " ASC", commentFieldSeq + " ASC"}
	}

	if params.Sort == discuss.SortPopular {
		return []string{commentFieldReplyCount + " DESC", commentFieldSeq + " DESC"}
	}

	return []string{commentFieldCreatedAt + " DESC", commentFieldSeq + " DESC"}
}

func (repo *CommentRepository) List(
	ctx context.Context,
	params *discuss.ListCommentsParams,
) ([]*discuss.Comment, error) {
	query := sq.Select(commentColumns()...).
		From(tableComments).
		Where(listFilter(params)).
		OrderBy(listOrder(params)...)

	if params.Limit > 0 {
		query = query.Limit(uint64(params.Limit)).Offset(uint64(max(params.Offset, 0)))
	}

	query = query.RunWith(repo.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	comments := make([]*discuss.Comment, 0)

	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment failed: %w", err)
		}

		comments = append(comments, comment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return comments, nil
}

func (repo *CommentRepository) Count(ctx context.Context, params *discuss.ListCommentsParams) (int, error) {
	q := sq.Select("COUNT(*)").
		From(tableComments).
		Where(listFilter(params))

	q = q.RunWith(repo.db)

	var count int

	err := q.QueryRowContext(ctx).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to scan count: %w", err)
	}

	return count, nil
}

func (repo *CommentRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(tx)
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			slog.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
		}

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
