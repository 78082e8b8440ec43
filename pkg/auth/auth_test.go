package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/rhuss/digsite/pkg/api"
)

// mockAuthn is a test authenticator with configurable behavior.
type mockAuthn struct {
	result AuthResult
	calls  int
}

func (m *mockAuthn) Authenticate(_ context.Context, _ *http.Request) AuthResult {
	m.calls++
	return m.result
}

func yes(userID string, role api.Role) *mockAuthn {
	return &mockAuthn{result: AuthResult{Decision: Yes, Principal: &Principal{UserID: userID, Role: role, Method: MethodJWT}}}
}

func TestAuthChain_FirstYesStops(t *testing.T) {
	second := &mockAuthn{result: AuthResult{Decision: No, Err: ErrTokenInvalid}}
	chain := NewAuthChain(yes("alice", api.RoleResearcher), second)

	r, _ := http.NewRequest("GET", "/", nil)
	result := chain.Authenticate(context.Background(), r)

	if result.Decision != Yes {
		t.Errorf("Decision = %d, want Yes", result.Decision)
	}
	if result.Principal.UserID != "alice" {
		t.Errorf("UserID = %q, want %q", result.Principal.UserID, "alice")
	}
	if second.calls != 0 {
		t.Errorf("second authenticator called %d times, want 0", second.calls)
	}
}

func TestAuthChain_FirstNoStops(t *testing.T) {
	chain := NewAuthChain(
		&mockAuthn{result: AuthResult{Decision: No, Err: ErrTokenExpired}},
		yes("bob", api.RoleStudent),
	)

	r, _ := http.NewRequest("GET", "/", nil)
	result := chain.Authenticate(context.Background(), r)

	if result.Decision != No {
		t.Errorf("Decision = %d, want No", result.Decision)
	}
	if !errors.Is(result.Err, ErrTokenExpired) {
		t.Errorf("Err = %v, want ErrTokenExpired", result.Err)
	}
}

func TestAuthChain_AllAbstain_Rejects(t *testing.T) {
	chain := NewAuthChain(
		&mockAuthn{result: AuthResult{Decision: Abstain}},
		&mockAuthn{result: AuthResult{Decision: Abstain}},
	)

	r, _ := http.NewRequest("GET", "/", nil)
	result := chain.Authenticate(context.Background(), r)

	if result.Decision != No {
		t.Errorf("Decision = %d, want No", result.Decision)
	}
	if !errors.Is(result.Err, ErrUnauthenticated) {
		t.Errorf("Err = %v, want ErrUnauthenticated", result.Err)
	}
}

func TestAuthChain_Empty_Rejects(t *testing.T) {
	chain := NewAuthChain()

	r, _ := http.NewRequest("GET", "/", nil)
	result := chain.Authenticate(context.Background(), r)

	if result.Decision != No {
		t.Errorf("Decision = %d, want No", result.Decision)
	}
}

func TestAuthChain_AbstainThenYes(t *testing.T) {
	chain := NewAuthChain(
		&mockAuthn{result: AuthResult{Decision: Abstain}},
		yes("carol", api.RoleDirector),
	)

	r, _ := http.NewRequest("GET", "/", nil)
	result := chain.Authenticate(context.Background(), r)

	if result.Decision != Yes {
		t.Errorf("Decision = %d, want Yes", result.Decision)
	}
	if result.Principal.Role != api.RoleDirector {
		t.Errorf("Role = %q, want DIRECTOR", result.Principal.Role)
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrUnauthenticated, "missing"},
		{ErrTokenExpired, "expired"},
		{fmt.Errorf("verify: %w", ErrTokenExpired), "expired"},
		{ErrTokenInvalid, "invalid"},
		{nil, "invalid"},
	}
	for _, tt := range tests {
		if got := failureReason(tt.err); got != tt.want {
			t.Errorf("failureReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()

	if _, ok := PrincipalFromContext(ctx); ok {
		t.Error("expected no principal in empty context")
	}

	p := Principal{UserID: "u-1", Role: api.RoleAdmin, Method: MethodJWT}
	ctx = SetPrincipal(ctx, p)

	got, ok := PrincipalFromContext(ctx)
	if !ok {
		t.Fatal("expected principal in context")
	}
	if got != p {
		t.Errorf("principal = %+v, want %+v", got, p)
	}
}

func TestRoleTable(t *testing.T) {
	for _, role := range api.Roles {
		if Rank(role) == 0 {
			t.Errorf("role %s has no rank", role)
		}
		if len(Capabilities(role)) == 0 {
			t.Errorf("role %s has no capabilities", role)
		}
	}
	if Rank(api.Role("ROOT")) != 0 {
		t.Error("unknown role should rank 0")
	}
}

func TestRankOrder(t *testing.T) {
	order := []api.Role{
		api.RoleGuest, api.RoleStudent, api.RoleResearcher, api.RoleDirector,
		api.RoleCoordinator, api.RoleInstitution, api.RoleAdmin,
	}
	for i := 1; i < len(order); i++ {
		if Rank(order[i]) <= Rank(order[i-1]) {
			t.Errorf("Rank(%s) = %d should exceed Rank(%s) = %d",
				order[i], Rank(order[i]), order[i-1], Rank(order[i-1]))
		}
	}
	if !AtLeast(api.RoleAdmin, api.RoleDirector) {
		t.Error("ADMIN should be at least DIRECTOR")
	}
	if AtLeast(api.RoleStudent, api.RoleResearcher) {
		t.Error("STUDENT should not be at least RESEARCHER")
	}
	if AtLeast(api.Role("ROOT"), api.Role("ROOT")) {
		t.Error("unknown role should never satisfy AtLeast")
	}
}

func TestCan(t *testing.T) {
	tests := []struct {
		role api.Role
		cap  Capability
		want bool
	}{
		{api.RoleAdmin, CapUsersManage, true},
		{api.RoleDirector, CapFindingsApprove, true},
		{api.RoleResearcher, CapFindingsApprove, false},
		{api.RoleResearcher, CapFindingsCreate, true},
		{api.RoleStudent, CapFindingsCreate, false},
		{api.RoleGuest, CapMapsView, true},
		{api.RoleGuest, CapProjectsView, false},
		{api.RoleInstitution, CapBillingManage, true},
		// No inheritance: ADMIN only holds what is listed.
		{api.RoleAdmin, CapBillingManage, false},
	}
	for _, tt := range tests {
		if got := Can(tt.role, tt.cap); got != tt.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tt.role, tt.cap, got, tt.want)
		}
	}
}

func TestCapabilitiesReturnsCopy(t *testing.T) {
	caps := Capabilities(api.RoleGuest)
	caps[0] = CapSystemFullAccess
	if Can(api.RoleGuest, CapSystemFullAccess) {
		t.Error("mutating the returned slice changed the role table")
	}
}
