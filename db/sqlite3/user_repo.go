package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/nasermirzaei89/commentbox/authentication"
)

const tableUsers = "users"

type UserRepository struct {
	db *sql.DB
}

var _ authentication.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const (
	userFieldID           = "id"
	userFieldUsername     = "username"
	userFieldPasswordHash = "password_hash"
	userFieldRegisteredAt = "registered_at"
)

func userColumns() []string {
	return []string{
		userFieldID,
		userFieldUsername,
		userFieldPasswordHash,
		userFieldRegisteredAt,
	}
}

func scanUser(row sq.RowScanner) (*authentication.User, error) {
	var user authentication.User

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.RegisteredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &user, nil
}

func isUniqueViolation(err error, column string) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

func (repo *UserRepository) Insert(ctx context.Context, user *authentication.User) error {
	q := sq.Insert(tableUsers).
		Columns(userColumns()...).
		Values(user.ID, user.Username, user.PasswordHash, user.RegisteredAt)

	q = q.RunWith(repo.db)

	_, err := q.ExecContext(ctx)
	if err != nil {
		if isUniqueViolation(err, tableUsers+"."+userFieldUsername) {
			return &authentication.UserAlreadyExistsError{Username: user.Username}
		}

		return fmt.Errorf("failed to exec insert: %w", err)
	}

	return nil
}

func (repo *UserRepository) findOne(ctx context.Context, where sq.Eq) (*authentication.User, error) {
	q := sq.Select(userColumns()...).
		From(tableUsers).
		Where(where).
		RunWith(repo.db)

	return scanUser(q.QueryRowContext(ctx))
}

func (repo *UserRepository) Find(ctx context.Context, userID string) (*authentication.User, error) {
	user, err := repo.findOne(ctx, sq.Eq{userFieldID: userID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &authentication.UserNotFoundError{ID: userID}
		}

		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return user, nil
}

func (repo *UserRepository) FindByUsername(ctx context.Context, username string) (*authentication.User, error) {
	user, err := repo.findOne(ctx, sq.Eq{userFieldUsername: username})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &authentication.UserByUsernameNotFoundError{Username: username}
		}

		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return user, nil
}

func (repo *UserRepository) ListUsernames(ctx context.Context) ([]string, error) {
	q := sq.Select(userFieldUsername).
		From(tableUsers).
		OrderBy(userFieldUsername).
		RunWith(repo.db)

	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query usernames: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	usernames := make([]string, 0)

	for rows.Next() {
		var username string

		err := rows.Scan(&username)
		if err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}

		usernames = append(usernames, username)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate usernames: %w", err)
	}

	return usernames, nil
}
