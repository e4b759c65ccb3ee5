package authorization

import (
	"context"
	"fmt"
	"slices"

	authcontext "github.com/nasermirzaei89/commentbox/authentication/context"
)

// Client checks permissions for the subject carried by a context.
type Client struct {
	authzSvc *Service
}

func NewClient(authzSvc *Service) *Client {
	return &Client{
		authzSvc: authzSvc,
	}
}

func (c *Client) allowed(ctx context.Context, subject, domain, object, action string) (bool, error) {
	res, err := c.authzSvc.CheckAccess(ctx, CheckAccessRequest{
		Subject: subject,
		Domain:  domain,
		Object:  object,
		Action:  action,
	})
	if err != nil {
		return false, fmt.Errorf("error on check permission: %w", err)
	}

	return res.Allowed, nil
}

// CheckAccess returns an *AccessDeniedError unless the context subject may perform action on object within domain.
func (c *Client) CheckAccess(ctx context.Context, domain, object, action string) error {
	subject := authcontext.GetSubject(ctx)

	ok, err := c.allowed(ctx, subject, domain, object, action)
	if err != nil {
		return err
	}

	if !ok {
		return &AccessDeniedError{
			Subject: subject,
			Domain:  domain,
			Object:  object,
			Action:  action,
		}
	}

	return nil
}

// Can reports whether subject may perform action. Provider errors count as a denial.
func (c *Client) Can(ctx context.Context, subject, domain, object, action string) bool {
	ok, err := c.allowed(ctx, subject, domain, object, action)

	return err == nil && ok
}

func rulesFor(subject, domain, object string, actions []string) []Rule {
	rules := make([]Rule, 0, len(actions))

	for _, action := range actions {
		rules = append(rules, Rule{Subject: subject, Domain: domain, Object: object, Action: action})
	}

	return rules
}

// Grant allows subject to perform each of actions on object.
func (c *Client) Grant(ctx context.Context, subject, domain, object string, actions ...string) error {
	err := c.authzSvc.AddRules(ctx, rulesFor(subject, domain, object, actions)...)
	if err != nil {
		return fmt.Errorf("error on grant: %w", err)
	}

	return nil
}

// Revoke removes rules previously added with Grant.
func (c *Client) Revoke(ctx context.Context, subject, domain, object string, actions ...string) error {
	err := c.authzSvc.RemoveRules(ctx, rulesFor(subject, domain, object, actions)...)
	if err != nil {
		return fmt.Errorf("error on revoke: %w", err)
	}

	return nil
}

func (c *Client) AddToGroup(ctx context.Context, sub string, groups ...string) error {
	err := c.authzSvc.AddToGroup(ctx, sub, groups...)
	if err != nil {
		return fmt.Errorf("error on add to group: %w", err)
	}

	return nil
}

func (c *Client) RemoveFromGroup(ctx context.Context, sub string, groups ...string) error {
	err := c.authzSvc.RemoveFromGroup(ctx, sub, groups...)
	if err != nil {
		return fmt.Errorf("error on remove from group: %w", err)
	}

	return nil
}

// InGroup reports whether sub was added to group. Provider errors count as not a member.
func (c *Client) InGroup(ctx context.Context, sub, group string) bool {
	groups, err := c.authzSvc.GroupsOf(ctx, sub)

	return err == nil && slices.Contains(groups, group)
}
