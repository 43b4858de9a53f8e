// Package rbac maps session roles to permissions through a casbin enforcer.
package rbac

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	RecordsView       Permission = "records.view"
	RecordsManage     Permission = "records.manage"
	AttachmentsView   Permission = "attachments.view"
	AttachmentsManage Permission = "attachments.manage"
	ReportsView       Permission = "reports.view"
	ConfigView        Permission = "config.view"
	AuditView         Permission = "audit.view"
)

const RoleOwner = "owner"

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// Every account is the owner of its log; other roles exist only through Grant.
var defaultGrants = map[string][]Permission{
	RoleOwner: {RecordsView, RecordsManage, AttachmentsView, AttachmentsManage, ReportsView, ConfigView, AuditView},
}

type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	p := &Policy{enforcer: e}
	for role, perms := range defaultGrants {
		for _, perm := range perms {
			if err := p.Grant(role, perm); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func split(perm Permission) (string, string) {
	obj, act, ok := strings.Cut(string(perm), ".")
	if !ok {
		return obj, ""
	}
	return obj, act
}

func (p *Policy) Grant(role string, perm Permission) error {
	obj, act := split(perm)
	if _, err := p.enforcer.AddPolicy(role, obj, act); err != nil {
		return fmt.Errorf("rbac grant %s %s: %w", role, perm, err)
	}
	return nil
}

// Allowed reports whether any of roles carries perm.
func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil {
		return false
	}
	obj, act := split(perm)
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(role, obj, act)
		if err == nil && ok {
			return true
		}
	}
	return false
}
