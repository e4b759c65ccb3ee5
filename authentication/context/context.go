package context

import "context"

type contextKeySessionID struct{}

func SessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(contextKeySessionID{}).(string)
	if !ok {
		return "", false
	}

	return sessionID, true
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKeySessionID{}, sessionID)
}

const (
	// Anonymous is the guest user id.
	Anonymous = "system:anonymous"

	Authenticated   = "system:authenticated"
	Unauthenticated = "system:unauthenticated"
	// Manager is the group of users allowed to edit and delete any comment.
	Manager = "system:manager"
)

type contextKeySubject struct{}

func GetSubject(ctx context.Context) string {
	userID, ok := ctx.Value(contextKeySubject{}).(string)
	if !ok {
		return Anonymous
	}

	return userID
}

func WithSubject(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeySubject{}, userID)
}

func IsAnonymous(ctx context.Context) bool {
	return GetSubject(ctx) == Anonymous
}
