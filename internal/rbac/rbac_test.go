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
		{name: "user write", role: RoleUser, action: ActionWrite, allow: true},
		{name: "user moderate", role: RoleUser, action: ActionModerate, allow: false},
		{name: "moderator moderate", role: RoleModerator, action: ActionModerate, allow: true},
		{name: "moderator manage", role: RoleModerator, action: ActionManage, allow: false},
		{name: "manager manage", role: RoleManager, action: ActionManage, allow: true},
		{name: "manager admin", role: RoleManager, action: ActionAdmin, allow: false},
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

func TestNormalize(t *testing.T) {
	if Normalize("manager") != RoleManager {
		t.Fatal("expected manager")
	}
	if Normalize("editor") != RoleUser {
		t.Fatal("expected unknown roles to fall back to user")
	}
}

func TestHighest(t *testing.T) {
	if got := Highest(RoleUser, RoleManager, RoleModerator); got != RoleManager {
		t.Fatalf("Highest() = %q, want manager", got)
	}
	if got := Highest(); got != RoleUser {
		t.Fatalf("Highest() = %q, want user", got)
	}
}
