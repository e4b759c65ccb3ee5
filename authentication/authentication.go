// Package authentication manages users and their login sessions and tells the
// authorization layer which groups a user belongs to.
package authentication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	authcontext "github.com/nasermirzaei89/commentbox/authentication/context"
	"github.com/nasermirzaei89/commentbox/authorization"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	userRepo    UserRepository
	sessionRepo SessionRepository
	authzClient *authorization.Client
	usernames   *BloomFilter
	managers    []string
	now         func() time.Time
}

// NewService returns a service whose users named in managerUsernames join the
// manager group when they register or log in.
func NewService(
	userRepo UserRepository,
	sessionRepo SessionRepository,
	authzClient *authorization.Client,
	managerUsernames []string,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		authzClient: authzClient,
		usernames:   nil,
		managers:    managerUsernames,
		now:         time.Now,
	}
}

// WithClock replaces the clock used for session times.
func (svc *Service) WithClock(now func() time.Time) *Service {
	svc.now = now

	return svc
}

func (svc *Service) timeNow() time.Time {
	return svc.now().UTC().Truncate(time.Second)
}

// LoadBloomFilter fills the username filter that lets Register skip the
// database lookup for names that were never taken.
func (svc *Service) LoadBloomFilter(ctx context.Context, minCapacity uint, falsePositiveRate float64) error {
	usernames, err := svc.userRepo.ListUsernames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list usernames for bloom filter: %w", err)
	}

	capacity := max(uint(len(usernames)), minCapacity)

	bf := NewBloomFilter(capacity, falsePositiveRate)
	for _, u := range usernames {
		bf.Add(u)
	}

	svc.usernames = bf

	slog.InfoContext(ctx, "username bloom filter loaded", "usernames", len(usernames), "capacity", capacity)

	return nil
}

func HashPassword(password string) (string, error) {
	bcryptHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(bcryptHash), nil
}

// IsManager reports whether username moderates every thread.
func (svc *Service) IsManager(username string) bool {
	return slices.Contains(svc.managers, username)
}

// syncGroups makes the user's group membership match MANAGER_USERNAMES, which
// may have changed since the user last logged in.
func (svc *Service) syncGroups(ctx context.Context, user *User) error {
	if svc.IsManager(user.Username) {
		return svc.authzClient.AddToGroup(ctx, user.ID, authcontext.Authenticated, authcontext.Manager)
	}

	err := svc.authzClient.AddToGroup(ctx, user.ID, authcontext.Authenticated)
	if err != nil {
		return err
	}

	return svc.authzClient.RemoveFromGroup(ctx, user.ID, authcontext.Manager)
}

func (svc *Service) usernameTaken(ctx context.Context, username string) (bool, error) {
	if svc.usernames != nil && !svc.usernames.Test(username) {
		return false, nil
	}

	_, err := svc.userRepo.FindByUsername(ctx, username)
	if err != nil {
		var notFoundErr *UserByUsernameNotFoundError
		if errors.As(err, &notFoundErr) {
			return false, nil
		}

		return false, fmt.Errorf("failed to find user by username: %w", err)
	}

	return true, nil
}

func (svc *Service) Register(ctx context.Context, username, password string) (*User, error) {
	err := ValidateCredentials(username, password)
	if err != nil {
		return nil, err
	}

	taken, err := svc.usernameTaken(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check if username already exists: %w", err)
	}

	if taken {
		return nil, &UserAlreadyExistsError{Username: username}
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		RegisteredAt: svc.timeNow(),
	}

	err = svc.userRepo.Insert(ctx, user)
	if err != nil {
		var alreadyExistsErr *UserAlreadyExistsError
		if errors.As(err, &alreadyExistsErr) {
			return nil, alreadyExistsErr
		}

		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	if svc.usernames != nil {
		svc.usernames.Add(username)
	}

	err = svc.syncGroups(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to sync user groups: %w", err)
	}

	user.PasswordHash = ""

	return user, nil
}

var ErrInvalidCredentials = errors.New("invalid credentials")

const defaultSessionDuration = 30 * 24 * time.Hour

func (svc *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := svc.userRepo.FindByUsername(ctx, username)
	if err != nil {
		var notFoundErr *UserByUsernameNotFoundError
		if errors.As(err, &notFoundErr) {
			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	err = svc.syncGroups(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to sync user groups: %w", err)
	}

	timeNow := svc.timeNow()

	session := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: timeNow,
		ExpiresAt: timeNow.Add(defaultSessionDuration),
	}

	err = svc.sessionRepo.Insert(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

func (svc *Service) Logout(ctx context.Context, sessionID string) error {
	err := svc.sessionRepo.Delete(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

func (svc *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	session, err := svc.sessionRepo.Find(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if session.Expired(svc.timeNow()) {
		err = svc.sessionRepo.Delete(ctx, sessionID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to delete expired session", "sessionId", sessionID, "error", err)
		}

		return nil, &SessionExpiredError{ID: sessionID}
	}

	return session, nil
}

// DeleteExpiredSessions removes sessions nobody came back for.
func (svc *Service) DeleteExpiredSessions(ctx context.Context) (int, error) {
	count, err := svc.sessionRepo.DeleteExpired(ctx, svc.timeNow())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return count, nil
}

func (svc *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := svc.userRepo.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}

	user.PasswordHash = "" // clear password hash before returning user

	return user, nil
}

func (svc *Service) GetCurrentUser(ctx context.Context) (*User, error) {
	if authcontext.IsAnonymous(ctx) {
		return nil, ErrCurrentUserNotFound
	}

	user, err := svc.GetUser(ctx, authcontext.GetSubject(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	return user, nil
}
