package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "user read", role: RoleUser, action: ActionRead, allow: true},
		{name: "user submit", role: RoleUser, action: ActionSubmit, allow: true},
		{name: "user vote", role: RoleUser, action: ActionVote, allow: true},
		{name: "user queue", role: RoleUser, action: ActionQueue, allow: false},
		{name: "user triage", role: RoleUser, action: ActionTriage, allow: false},
		{name: "user admin", role: RoleUser, action: ActionAdmin, allow: false},
		{name: "reviewer queue", role: RoleReviewer, action: ActionQueue, allow: true},
		{name: "reviewer triage", role: RoleReviewer, action: ActionTriage, allow: false},
		{name: "transformer comment", role: RoleTransformer, action: ActionComment, allow: true},
		{name: "transformer admin", role: RoleTransformer, action: ActionAdmin, allow: false},
		{name: "implementer queue", role: RoleImplementer, action: ActionQueue, allow: true},
		{name: "implementer export", role: RoleImplementer, action: ActionExport, allow: false},
		{name: "admin triage", role: RoleAdmin, action: ActionTriage, allow: true},
		{name: "admin export", role: RoleAdmin, action: ActionExport, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown read", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalizeDefaultsToUser(t *testing.T) {
	if got := Normalize("superuser"); got != RoleUser {
		t.Fatalf("Normalize(superuser) = %q, want %q", got, RoleUser)
	}
	if got := Normalize("implementer"); got != RoleImplementer {
		t.Fatalf("Normalize(implementer) = %q, want %q", got, RoleImplementer)
	}
}

func TestAssignable(t *testing.T) {
	for _, role := range []string{"reviewer", "transformer", "implementer"} {
		if !Assignable(role) {
			t.Fatalf("Assignable(%q) = false, want true", role)
		}
	}
	for _, role := range []string{"user", "admin", ""} {
		if Assignable(role) {
			t.Fatalf("Assignable(%q) = true, want false", role)
		}
	}
}
