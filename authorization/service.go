// Package authorization decides what a subject may do with comments. Rules
// are (subject, domain, object, action) tuples and subjects inherit the rules
// of the groups they belong to.
package authorization

import (
	"context"
	"errors"
	"fmt"
)

type Service struct {
	authzProvider AuthorizationProvider
}

type AuthorizationProvider interface {
	CheckAccess(ctx context.Context, req CheckAccessRequest) (res *CheckAccessResponse, err error)
	AddRules(ctx context.Context, rules ...Rule) (err error)
	RemoveRules(ctx context.Context, rules ...Rule) (err error)
	AddToGroup(ctx context.Context, sub string, groups ...string) (err error)
	RemoveFromGroup(ctx context.Context, sub string, groups ...string) (err error)
	GroupsOf(ctx context.Context, sub string) (groups []string, err error)
}

var ErrNilProvider = errors.New("authorization provider must not be nil")

func NewService(authzProvider AuthorizationProvider) (*Service, error) {
	if authzProvider == nil {
		return nil, ErrNilProvider
	}

	return &Service{
		authzProvider: authzProvider,
	}, nil
}

// Rule allows Subject to perform Action on Object within Domain. An empty
// Object stands for requests that are not about a single object.
type Rule struct {
	Subject string
	Domain  string
	Object  string
	Action  string
}

type CheckAccessRequest Rule

type CheckAccessResponse struct {
	// Allowed is required. True if the action would be allowed, false otherwise.
	Allowed bool
	// Reason is optional. It indicates why a request was allowed or denied.
	Reason string
}

type AccessDeniedError struct {
	Subject string
	Domain  string
	Object  string
	Action  string
}

func (err AccessDeniedError) Error() string {
	if err.Object != "" {
		return fmt.Sprintf("subject %q may not %s %q in %s", err.Subject, err.Action, err.Object, err.Domain)
	}

	return fmt.Sprintf("subject %q may not %s in %s", err.Subject, err.Action, err.Domain)
}

func (svc *Service) CheckAccess(ctx context.Context, req CheckAccessRequest) (*CheckAccessResponse, error) {
	res, err := svc.authzProvider.CheckAccess(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to check permission: %w", err)
	}

	return res, nil
}

func (svc *Service) AddRules(ctx context.Context, rules ...Rule) error {
	if len(rules) == 0 {
		return nil
	}

	err := svc.authzProvider.AddRules(ctx, rules...)
	if err != nil {
		return fmt.Errorf("failed to add rules: %w", err)
	}

	return nil
}

func (svc *Service) RemoveRules(ctx context.Context, rules ...Rule) error {
	if len(rules) == 0 {
		return nil
	}

	err := svc.authzProvider.RemoveRules(ctx, rules...)
	if err != nil {
		return fmt.Errorf("failed to remove rules: %w", err)
	}

	return nil
}

func (svc *Service) AddToGroup(ctx context.Context, sub string, groups ...string) error {
	if len(groups) == 0 {
		return nil
	}

	err := svc.authzProvider.AddToGroup(ctx, sub, groups...)
	if err != nil {
		return fmt.Errorf("failed to add %q to groups: %w", sub, err)
	}

	return nil
}

func (svc *Service) RemoveFromGroup(ctx context.Context, sub string, groups ...string) error {
	if len(groups) == 0 {
		return nil
	}

	err := svc.authzProvider.RemoveFromGroup(ctx, sub, groups...)
	if err != nil {
		return fmt.Errorf("failed to remove %q from groups: %w", sub, err)
	}

	return nil
}

func (svc *Service) GroupsOf(ctx context.Context, sub string) ([]string, error) {
	groups, err := svc.authzProvider.GroupsOf(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to get groups of %q: %w", sub, err)
	}

	return groups, nil
}

// Seed adds every rule and grouping of policy. Entries that already exist are
// kept as they are.
func (svc *Service) Seed(ctx context.Context, policy *Policy) error {
	err := svc.AddRules(ctx, policy.Rules...)
	if err != nil {
		return err
	}

	for _, grouping := range policy.Groupings {
		err = svc.AddToGroup(ctx, grouping.Subject, grouping.Group)
		if err != nil {
			return err
		}
	}

	return nil
}
