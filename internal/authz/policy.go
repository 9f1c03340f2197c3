package authz

import "github.com/brightpath/agency-portal/internal/identity"

const (
	// TagSEO is the pseudo-role guarding SEO tooling.
	TagSEO = "seo"

	SEOExpertTeamRole = "SEO Expert"
)

// Rule grants tag to id beyond a plain base-role match.
type Rule func(id *identity.Identity, tag string) bool

// Policy decides whether an identity satisfies one of a set of role tags.
type Policy struct {
	rules []Rule
}

func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: rules}
}

// DefaultPolicy lets the SEO Expert team role through routes tagged seo.
func DefaultPolicy() *Policy {
	return NewPolicy(TeamRoleRule(SEOExpertTeamRole, TagSEO))
}

// With returns a copy of p extended with rules.
func (p *Policy) With(rules ...Rule) *Policy {
	merged := make([]Rule, 0, len(p.rules)+len(rules))
	merged = append(merged, p.rules...)
	merged = append(merged, rules...)
	return &Policy{rules: merged}
}

func (p *Policy) Allows(id *identity.Identity, allowed ...string) bool {
	if id == nil {
		return false
	}
	for _, tag := range allowed {
		if id.Role == tag {
			return true
		}
		for _, rule := range p.rules {
			if rule(id, tag) {
				return true
			}
		}
	}
	return false
}

// TeamRoleRule grants tag to identities whose team role equals teamRole.
func TeamRoleRule(teamRole, tag string) Rule {
	return func(id *identity.Identity, t string) bool {
		return t == tag && id.TeamRole == teamRole
	}
}

// PermissionRule grants tag to identities holding permission.
func PermissionRule(permission, tag string) Rule {
	return func(id *identity.Identity, t string) bool {
		return t == tag && id.HasPermission(permission)
	}
}
