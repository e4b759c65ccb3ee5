// Package casbin enforces authorization rules with a casbin RBAC-with-domains
// model.
package casbin

import (
	"context"
	_ "embed"
	"fmt"
	"slices"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	"github.com/nasermirzaei89/commentbox/authorization"
)

// ObjectNone is stored in place of an empty object, since casbin rules can
// not hold empty fields.
const ObjectNone = "-"

//go:embed model.conf
var casbinModelContent string

type AuthorizationProvider struct {
	enforcer *casbin.SyncedEnforcer
}

var _ authorization.AuthorizationProvider = (*AuthorizationProvider)(nil)

func NewAuthorizationProvider(persistAdapter persist.Adapter) (*AuthorizationProvider, error) {
	casbinModel, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(casbinModel, persistAdapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)

	err = enforcer.LoadPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	return &AuthorizationProvider{
		enforcer: enforcer,
	}, nil
}

func objectOrNone(object string) string {
	if object == "" {
		return ObjectNone
	}

	return object
}

func ruleOf(rule authorization.Rule) []string {
	return []string{rule.Subject, rule.Domain, objectOrNone(rule.Object), rule.Action}
}

func (ap *AuthorizationProvider) CheckAccess(
	_ context.Context,
	req authorization.CheckAccessRequest,
) (*authorization.CheckAccessResponse, error) {
	allowed, err := ap.enforcer.Enforce(req.Subject, req.Domain, objectOrNone(req.Object), req.Action)
	if err != nil {
		return nil, fmt.Errorf("failed to enforce: %w", err)
	}

	res := &authorization.CheckAccessResponse{
		Allowed: allowed,
		Reason:  "no matching rule",
	}

	if allowed {
		res.Reason = ""
	}

	return res, nil
}

func (ap *AuthorizationProvider) AddRules(_ context.Context, rules ...authorization.Rule) error {
	casbinRules := make([][]string, 0, len(rules))

	for _, rule := range rules {
		casbinRules = append(casbinRules, ruleOf(rule))
	}

	_, err := ap.enforcer.AddPoliciesEx(casbinRules)
	if err != nil {
		return fmt.Errorf("failed to add policies: %w", err)
	}

	return nil
}

func (ap *AuthorizationProvider) RemoveRules(_ context.Context, rules ...authorization.Rule) error {
	for _, rule := range rules {
		_, err := ap.enforcer.RemovePolicy(ruleOf(rule))
		if err != nil {
			return fmt.Errorf("failed to remove policy: %w", err)
		}
	}

	return nil
}

func (ap *AuthorizationProvider) AddToGroup(_ context.Context, sub string, groups ...string) error {
	casbinRules := make([][]string, 0, len(groups))

	for _, group := range groups {
		casbinRules = append(casbinRules, []string{sub, group})
	}

	_, err := ap.enforcer.AddGroupingPoliciesEx(casbinRules)
	if err != nil {
		return fmt.Errorf("failed to add grouping policies: %w", err)
	}

	return nil
}

func (ap *AuthorizationProvider) RemoveFromGroup(_ context.Context, sub string, groups ...string) error {
	for _, group := range groups {
		_, err := ap.enforcer.RemoveGroupingPolicy(sub, group)
		if err != nil {
			return fmt.Errorf("failed to remove grouping policy: %w", err)
		}
	}

	return nil
}

// GroupsOf returns the groups sub was added to directly, sorted.
func (ap *AuthorizationProvider) GroupsOf(_ context.Context, sub string) ([]string, error) {
	groups, err := ap.enforcer.GetRolesForUser(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}

	slices.Sort(groups)

	return groups, nil
}
