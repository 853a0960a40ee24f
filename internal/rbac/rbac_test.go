package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "client post", role: RoleClient, action: ActionPost, allow: true},
		{name: "client decide", role: RoleClient, action: ActionDecide, allow: true},
		{name: "client offer", role: RoleClient, action: ActionOffer, allow: false},
		{name: "professional offer", role: RoleProfessional, action: ActionOffer, allow: true},
		{name: "professional decide", role: RoleProfessional, action: ActionDecide, allow: false},
		{name: "professional post", role: RoleProfessional, action: ActionPost, allow: false},
		{name: "professional track", role: RoleProfessional, action: ActionTrack, allow: true},
		{name: "both rate", role: RoleClient, action: ActionRate, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
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
	if Normalize("professional") != RoleProfessional {
		t.Fatal("known role must pass through")
	}
	if Normalize("superuser") != RoleClient {
		t.Fatal("unknown role must default to client")
	}
}
