package authentication

import (
	"context"
	"fmt"
	"time"
)

// Session is a login. Times are stored in UTC with second precision.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type SessionRepository interface {
	Insert(ctx context.Context, session *Session) (err error)
	Find(ctx context.Context, id string) (session *Session, err error)
	Delete(ctx context.Context, id string) (err error)
	DeleteExpired(ctx context.Context, now time.Time) (count int, err error)
}

type SessionNotFoundError struct {
	ID string
}

func (err SessionNotFoundError) Error() string {
	return fmt.Sprintf("session with id %q not found", err.ID)
}

type SessionExpiredError struct {
	ID string
}

func (err SessionExpiredError) Error() string {
	return fmt.Sprintf("session with id %q has expired", err.ID)
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
