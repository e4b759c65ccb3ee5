package authentication

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

type User struct {
	ID           string
	Username     string
	PasswordHash string
	RegisteredAt time.Time
}

type UserRepository interface {
	Insert(ctx context.Context, user *User) (err error)
	Find(ctx context.Context, userID string) (user *User, err error)
	FindByUsername(ctx context.Context, username string) (user *User, err error)
	ListUsernames(ctx context.Context) (usernames []string, err error)
}

type UserNotFoundError struct {
	ID string
}

func (err UserNotFoundError) Error() string {
	return fmt.Sprintf("user with id %q not found", err.ID)
}

type UserByUsernameNotFoundError struct {
	Username string
}

func (err UserByUsernameNotFoundError) Error() string {
	return fmt.Sprintf("user with username %q not found", err.Username)
}

type UserAlreadyExistsError struct {
	Username string
}

func (err UserAlreadyExistsError) Error() string {
	return fmt.Sprintf("user with username %q already exists", err.Username)
}

var ErrCurrentUserNotFound = errors.New("current user not found")

const (
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt ignores the rest
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

type InvalidCredentialsFormatError struct {
	Field  string
	Reason string
}

func (err InvalidCredentialsFormatError) Error() string {
	return fmt.Sprintf("invalid %s: %s", err.Field, err.Reason)
}

// ValidateCredentials checks the shape of a username and password before registration.
func ValidateCredentials(username, password string) error {
	if !usernamePattern.MatchString(username) {
		return &InvalidCredentialsFormatError{
			Field:  "username",
			Reason: "use 3 to 32 letters, digits, dots, dashes or underscores",
		}
	}

	if len(password) < MinPasswordLength {
		return &InvalidCredentialsFormatError{
			Field:  "password",
			Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		}
	}

	if len(password) > MaxPasswordLength {
		return &InvalidCredentialsFormatError{
			Field:  "password",
			Reason: fmt.Sprintf("must be at most %d bytes", MaxPasswordLength),
		}
	}

	return nil
}
