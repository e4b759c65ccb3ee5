package web

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nasermirzaei89/commentbox/authentication"
	authcontext "github.com/nasermirzaei89/commentbox/authentication/context"
	"github.com/nasermirzaei89/commentbox/widget"
)

// eventState carries what the browser told us about one event, and what the
// widget asked of the browser in return.
type eventState struct {
	confirmed      bool
	loginRequested bool
}

type contextKeyEventState struct{}

func withEventState(ctx context.Context, state *eventState) context.Context {
	return context.WithValue(ctx, contextKeyEventState{}, state)
}

func eventStateFromContext(ctx context.Context) (*eventState, bool) {
	state, ok := ctx.Value(contextKeyEventState{}).(*eventState)

	return state, ok
}

// sessionAuth answers the widget's identity questions from the request
// context filled in by authMiddleware.
type sessionAuth struct {
	authSvc *authentication.Service
}

var _ widget.Auth = sessionAuth{}

func (a sessionAuth) IsLoggedIn(ctx context.Context) bool {
	return !authcontext.IsAnonymous(ctx)
}

func (a sessionAuth) UserInfo(ctx context.Context) *widget.UserInfo {
	user, err := a.authSvc.GetCurrentUser(ctx)
	if err != nil {
		if !errors.Is(err, authentication.ErrCurrentUserNotFound) {
			slog.ErrorContext(ctx, "failed to get current user", "error", err)
		}

		return nil
	}

	return &widget.UserInfo{
		ID:         user.ID,
		Nickname:   user.Username,
		ProfileURL: "",
	}
}

func (a sessionAuth) LoginRequired(ctx context.Context) {
	state, ok := eventStateFromContext(ctx)
	if !ok {
		return
	}

	state.loginRequested = true
}

// confirmFromRequest uses the answer the browser collected before posting
// the event. Without one the action is declined.
var confirmFromRequest = widget.ConfirmFunc(func(ctx context.Context, _ string) (bool, error) {
	state, ok := eventStateFromContext(ctx)
	if !ok {
		return false, nil
	}

	return state.confirmed, nil
})
