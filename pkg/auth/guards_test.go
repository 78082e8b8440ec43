package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/storage"
)

// okHandler records whether it ran.
type okHandler struct{ called bool }

func (h *okHandler) ServeAuthenticated(w http.ResponseWriter, _ *http.Request, _ Principal) {
	h.called = true
	w.WriteHeader(http.StatusOK)
}

func serveGuarded(t *testing.T, g Guard, p Principal) (int, bool) {
	t.Helper()
	h := &okHandler{}
	rec := httptest.NewRecorder()
	g(h).ServeAuthenticated(rec, httptest.NewRequest("GET", "/sites/s-1", nil), p)
	return rec.Code, h.called
}

func staticLoader(res Resource, err error) Loader {
	return func(context.Context, *http.Request) (Resource, error) {
		return res, err
	}
}

func TestRequireRole(t *testing.T) {
	guard := RequireRole(api.RoleDirector, api.RoleAdmin)

	tests := []struct {
		role       api.Role
		wantStatus int
	}{
		{api.RoleDirector, http.StatusOK},
		{api.RoleAdmin, http.StatusOK},
		{api.RoleResearcher, http.StatusForbidden},
		{api.RoleGuest, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			code, called := serveGuarded(t, guard, Principal{UserID: "u", Role: tt.role})
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
		})
	}
}

func TestRequireRole_NoImplicitAdminBypass(t *testing.T) {
	code, called := serveGuarded(t, RequireRole(api.RoleStudent), Principal{UserID: "u", Role: api.RoleAdmin})
	if code != http.StatusForbidden || called {
		t.Errorf("ADMIN on a STUDENT-only route: status = %d, called = %v", code, called)
	}
}

func TestRequireCapability(t *testing.T) {
	guard := RequireCapability(CapFindingsApprove)

	if code, _ := serveGuarded(t, guard, Principal{UserID: "u", Role: api.RoleDirector}); code != http.StatusOK {
		t.Errorf("DIRECTOR status = %d, want 200", code)
	}
	if code, _ := serveGuarded(t, guard, Principal{UserID: "u", Role: api.RoleResearcher}); code != http.StatusForbidden {
		t.Errorf("RESEARCHER status = %d, want 403", code)
	}
}

func TestRequireRank(t *testing.T) {
	guard := RequireRank(api.RoleResearcher)

	tests := []struct {
		role       api.Role
		wantStatus int
	}{
		{api.RoleResearcher, http.StatusOK},
		{api.RoleDirector, http.StatusOK},
		{api.RoleAdmin, http.StatusOK},
		{api.RoleStudent, http.StatusForbidden},
		{api.RoleGuest, http.StatusForbidden},
	}
	for _, tt := range tests {
		if code, _ := serveGuarded(t, guard, Principal{UserID: "u", Role: tt.role}); code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.role, code, tt.wantStatus)
		}
	}
}

func TestRequireOwner(t *testing.T) {
	tests := []struct {
		name       string
		loader     Loader
		wantStatus int
	}{
		{"owner", staticLoader(Resource{"ownerId": "u-1"}, nil), http.StatusOK},
		{"other owner", staticLoader(Resource{"ownerId": "u-2"}, nil), http.StatusForbidden},
		{"missing field", staticLoader(Resource{"name": "Tiwanaku"}, nil), http.StatusForbidden},
		{"nil field", staticLoader(Resource{"ownerId": nil}, nil), http.StatusForbidden},
		{"not found", staticLoader(nil, fmt.Errorf("site s-1: %w", storage.ErrNotFound)), http.StatusNotFound},
		{"loader failure", staticLoader(nil, errors.New("connection reset")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, called := serveGuarded(t, RequireOwner("ownerId", tt.loader), Principal{UserID: "u-1", Role: api.RoleResearcher})
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
		})
	}
}

func TestAnyOf_OwnerOrRole(t *testing.T) {
	guard := Require(AnyOf(
		Owner("directorId", staticLoader(Resource{"directorId": "u-1"}, nil)),
		Roles(api.RoleCoordinator, api.RoleInstitution),
	))

	tests := []struct {
		name       string
		p          Principal
		wantStatus int
	}{
		{"owner", Principal{UserID: "u-1", Role: api.RoleDirector}, http.StatusOK},
		{"coordinator", Principal{UserID: "u-9", Role: api.RoleCoordinator}, http.StatusOK},
		{"neither", Principal{UserID: "u-9", Role: api.RoleDirector}, http.StatusForbidden},
	}
	for _, tt := range tests {
		if code, _ := serveGuarded(t, guard, tt.p); code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.name, code, tt.wantStatus)
		}
	}
}

func TestAnyOf_ReportsFirstRefusal(t *testing.T) {
	policy := AnyOf(
		Owner("ownerId", staticLoader(nil, storage.ErrNotFound)),
		Roles(api.RoleAdmin),
	)
	apiErr := policy(httptest.NewRequest("GET", "/", nil), Principal{UserID: "u", Role: api.RoleGuest})
	if apiErr == nil || apiErr.Type != api.ErrorTypeNotFound {
		t.Errorf("got %v, want not_found", apiErr)
	}
}

func TestAnyOf_ServerErrorWins(t *testing.T) {
	policy := AnyOf(
		Roles(api.RoleAdmin),
		Owner("ownerId", staticLoader(nil, errors.New("boom"))),
	)
	apiErr := policy(httptest.NewRequest("GET", "/", nil), Principal{UserID: "u", Role: api.RoleGuest})
	if apiErr == nil || apiErr.Type != api.ErrorTypeServerError {
		t.Errorf("got %v, want server_error", apiErr)
	}
}

func TestAnyOf_Empty(t *testing.T) {
	if AnyOf()(httptest.NewRequest("GET", "/", nil), Principal{UserID: "u", Role: api.RoleAdmin}) == nil {
		t.Error("empty AnyOf should refuse")
	}
}

func TestAllOf(t *testing.T) {
	policy := AllOf(MinRank(api.RoleResearcher), HasCapability(CapFindingsCreate))
	r := httptest.NewRequest("GET", "/", nil)

	if apiErr := policy(r, Principal{UserID: "u", Role: api.RoleResearcher}); apiErr != nil {
		t.Errorf("RESEARCHER refused: %v", apiErr)
	}
	// DIRECTOR outranks RESEARCHER but lacks findings:create.
	if apiErr := policy(r, Principal{UserID: "u", Role: api.RoleDirector}); apiErr == nil {
		t.Error("DIRECTOR should be refused")
	}
	if AllOf()(r, Principal{}) != nil {
		t.Error("empty AllOf should admit")
	}
}

func TestRequirePlan(t *testing.T) {
	plans := map[string]api.Plan{"free": api.PlanFree, "pro": api.PlanProfessional}
	lookup := func(_ context.Context, userID string) (api.Plan, error) {
		if userID == "broken" {
			return "", errors.New("db down")
		}
		plan, ok := plans[userID]
		if !ok {
			return "", storage.ErrNotFound
		}
		return plan, nil
	}
	guard := RequirePlan(api.PlanProfessional, lookup)

	tests := []struct {
		userID     string
		wantStatus int
	}{
		{"pro", http.StatusOK},
		{"free", http.StatusPaymentRequired},
		{"gone", http.StatusNotFound},
		{"broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if code, _ := serveGuarded(t, guard, Principal{UserID: tt.userID, Role: api.RoleResearcher}); code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.userID, code, tt.wantStatus)
		}
	}
}

func TestProtectOrder(t *testing.T) {
	var order []string
	mark := func(name string) Guard {
		return func(next AuthenticatedHandler) AuthenticatedHandler {
			return AuthenticatedHandlerFunc(func(w http.ResponseWriter, r *http.Request, p Principal) {
				order = append(order, name)
				next.ServeAuthenticated(w, r, p)
			})
		}
	}

	h := Protect(&okHandler{}, mark("a"), mark("b"))
	h.ServeAuthenticated(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil), Principal{UserID: "u"})

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}
}

func TestGuardBehindAuthenticate(t *testing.T) {
	chain := NewAuthChain(yes("u-1", api.RoleStudent))
	handler := Authenticate(chain)(Protect(&okHandler{}, RequireRole(api.RoleAdmin)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/auth/users", nil))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
