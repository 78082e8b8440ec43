package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRoleValid(t *testing.T) {
	for _, r := range Roles {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("ROOT").Valid() {
		t.Error("ROOT should not be valid")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"ADMIN", RoleAdmin, true},
		{" researcher ", RoleResearcher, true},
		{"Coordinator", RoleCoordinator, true},
		{"", "", false},
		{"owner", "OWNER", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseRole(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPlanLevel(t *testing.T) {
	if !(PlanFree.Level() < PlanProfessional.Level() && PlanProfessional.Level() < PlanInstitutional.Level()) {
		t.Error("plan levels out of order")
	}
	if Plan("").Level() != PlanFree.Level() {
		t.Error("unknown plan should rank as FREE")
	}
}

func TestPublicUserNeverCarriesPasswordHash(t *testing.T) {
	u := &User{
		ID:           NewUserID(),
		Email:        "researcher@site.org",
		PasswordHash: "$argon2id$secret",
		FullName:     "Ana",
		Role:         RoleResearcher,
		CreatedAt:    time.Now(),
	}
	data, err := json.Marshal(u.Public())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), "argon2id") || strings.Contains(strings.ToLower(string(data)), "password") {
		t.Errorf("public view leaks password material: %s", data)
	}
	if !strings.Contains(string(data), `"role":"RESEARCHER"`) {
		t.Errorf("role missing from public view: %s", data)
	}
}

func TestProfileUpdateApply(t *testing.T) {
	u := &User{FullName: "Old", Bio: "keep"}
	name := "  New Name "
	(&ProfileUpdate{FullName: &name}).Apply(u)
	if u.FullName != "New Name" {
		t.Errorf("FullName = %q", u.FullName)
	}
	if u.Bio != "keep" {
		t.Errorf("Bio changed to %q", u.Bio)
	}
}
