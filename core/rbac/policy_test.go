package rbac

import "testing"

func TestPolicyDefaults(t *testing.T) {
	p, err := NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if !p.Allowed([]string{RoleOwner}, RecordsManage) {
		t.Fatalf("owner must manage records")
	}
	if p.Allowed([]string{"viewer"}, RecordsView) {
		t.Fatalf("roles without grants must be denied")
	}
	if !p.Allowed([]string{"nobody", RoleOwner}, ReportsView) {
		t.Fatalf("any matching role must grant")
	}
	if p.Allowed(nil, RecordsView) {
		t.Fatalf("no roles must not grant")
	}
}

func TestPolicyGrant(t *testing.T) {
	p, err := NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if p.Allowed([]string{"auditor"}, ReportsView) {
		t.Fatalf("unexpected grant")
	}
	if err := p.Grant("auditor", ReportsView); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !p.Allowed([]string{"auditor"}, ReportsView) {
		t.Fatalf("grant not applied")
	}
	var nilPolicy *Policy
	if nilPolicy.Allowed([]string{RoleOwner}, RecordsView) {
		t.Fatalf("nil policy must deny")
	}
}
