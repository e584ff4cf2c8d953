package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"claviger.org/internal/pool"
	"claviger.org/internal/rbac"
)

const testTenant = "8b3cf173-59ed-4baf-a351-33ee4de0ac95"

// stubRoleService records calls and returns canned results.
type stubRoleService struct {
	result bool
	err    error

	lastOp   string
	lastArgs []string

	roles   []rbac.Role
	perms   []rbac.Permission
	members []rbac.Membership
	names   []string
}

func (s *stubRoleService) record(op string, args ...string) {
	s.lastOp = op
	s.lastArgs = args
}

func (s *stubRoleService) Roles(_ context.Context, tenant string) ([]rbac.Role, error) {
	s.record("roles", tenant)
	return s.roles, s.err
}

func (s *stubRoleService) AddRole(_ context.Context, tenant, role, description string) (bool, error) {
	s.record("add_role", tenant, role, description)
	return s.result, s.err
}

func (s *stubRoleService) DelRole(_ context.Context, tenant, role string) (bool, error) {
	s.record("del_role", tenant, role)
	return s.result, s.err
}

func (s *stubRoleService) AddPermission(_ context.Context, tenant, role, name string) (bool, error) {
	s.record("add_permission", tenant, role, name)
	return s.result, s.err
}

func (s *stubRoleService) DelPermission(_ context.Context, tenant, role, name string) (bool, error) {
	s.record("del_permission", tenant, role, name)
	return s.result, s.err
}

func (s *stubRoleService) HasPermission(_ context.Context, tenant, role, name string) (bool, error) {
	s.record("has_permission", tenant, role, name)
	return s.result, s.err
}

func (s *stubRoleService) AddMembership(_ context.Context, tenant, user, role string) (bool, error) {
	s.record("add_membership", tenant, user, role)
	return s.result, s.err
}

func (s *stubRoleService) DelMembership(_ context.Context, tenant, user, role string) (bool, error) {
	s.record("del_membership", tenant, user, role)
	return s.result, s.err
}

func (s *stubRoleService) HasMembership(_ context.Context, tenant, user, role string) (bool, error) {
	s.record("has_membership", tenant, user, role)
	return s.result, s.err
}

func (s *stubRoleService) UserHasPermission(_ context.Context, tenant, user, name string) (bool, error) {
	s.record("user_has_permission", tenant, user, name)
	return s.result, s.err
}

func (s *stubRoleService) GetUserPermissions(_ context.Context, tenant, user string) ([]rbac.Permission, error) {
	s.record("user_permissions", tenant, user)
	return s.perms, s.err
}

func (s *stubRoleService) GetUserRoles(_ context.Context, tenant, user string) ([]rbac.Membership, error) {
	s.record("user_roles", tenant, user)
	return s.members, s.err
}

func (s *stubRoleService) GetRoleMembers(_ context.Context, tenant, role string) ([]rbac.Membership, error) {
	s.record("members", tenant, role)
	return s.members, s.err
}

func (s *stubRoleService) GetPermissions(_ context.Context, tenant, role string) ([]rbac.Permission, error) {
	s.record("permissions", tenant, role)
	return s.perms, s.err
}

func (s *stubRoleService) WhichRolesCan(_ context.Context, tenant, name string) ([]string, error) {
	s.record("which_roles_can", tenant, name)
	return s.names, s.err
}

func (s *stubRoleService) WhichUsersCan(_ context.Context, tenant, name string) ([]rbac.Membership, error) {
	s.record("which_users_can", tenant, name)
	return s.members, s.err
}

func newTestAPI(stub *stubRoleService, opts ...Option) *API {
	return New(stub, ReadyProbe{}, "test", opts...)
}

func doRequest(t *testing.T, a *API, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	a.mux.ServeHTTP(rr, req)
	return rr
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder) bool {
	t.Helper()
	var body resultResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body.Result
}

func TestBooleanEndpointsReturnResult(t *testing.T) {
	stub := &stubRoleService{result: true}
	a := newTestAPI(stub)

	cases := []struct {
		method string
		path   string
		op     string
	}{
		{http.MethodPost, "/api/role/%s/admin", "add_role"},
		{http.MethodDelete, "/api/role/%s/admin", "del_role"},
		{http.MethodPost, "/api/permission/%s/admin/manage_users", "add_permission"},
		{http.MethodDelete, "/api/permission/%s/admin/manage_users", "del_permission"},
		{http.MethodGet, "/api/permission/%s/admin/manage_users", "has_permission"},
		{http.MethodPost, "/api/membership/%s/alice/admin", "add_membership"},
		{http.MethodDelete, "/api/membership/%s/alice/admin", "del_membership"},
		{http.MethodGet, "/api/membership/%s/alice/admin", "has_membership"},
		{http.MethodGet, "/api/has_permission/%s/alice/manage_users", "user_has_permission"},
	}
	for _, tc := range cases {
		rr := doRequest(t, a, tc.method, fmt.Sprintf(tc.path, testTenant))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s %s: status %d", tc.method, tc.path, rr.Code)
		}
		if !decodeResult(t, rr) {
			t.Fatalf("%s %s: expected result true", tc.method, tc.path)
		}
		if stub.lastOp != tc.op {
			t.Fatalf("%s %s: dispatched %s, want %s", tc.method, tc.path, stub.lastOp, tc.op)
		}
		if stub.lastArgs[0] != testTenant {
			t.Fatalf("%s %s: tenant not threaded, got %v", tc.method, tc.path, stub.lastArgs)
		}
	}
}

func TestAddRoleBodyHandling(t *testing.T) {
	stub := &stubRoleService{result: true}
	a := newTestAPI(stub)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/role/"+testTenant+"/admin", strings.NewReader(body))
		rr := httptest.NewRecorder()
		a.mux.ServeHTTP(rr, req)
		return rr
	}

	rr := post(`{"description": "administrators"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("valid body: status %d", rr.Code)
	}
	if len(stub.lastArgs) != 3 || stub.lastArgs[2] != "administrators" {
		t.Fatalf("description not threaded: %v", stub.lastArgs)
	}

	// An empty body is fine; the description just stays empty.
	rr = post("")
	if rr.Code != http.StatusOK {
		t.Fatalf("empty body: status %d", rr.Code)
	}
	if stub.lastArgs[2] != "" {
		t.Fatalf("empty body must leave description empty: %v", stub.lastArgs)
	}

	stub.lastOp = ""
	rr = post(`{"description": `)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d, want 400", rr.Code)
	}
	if stub.lastOp != "" {
		t.Fatalf("malformed body must not reach the service, called %q", stub.lastOp)
	}
}

func TestFalseResultIsStill200(t *testing.T) {
	stub := &stubRoleService{result: false}
	a := newTestAPI(stub)

	rr := doRequest(t, a, http.MethodPost, "/api/membership/"+testTenant+"/alice/ghost")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if decodeResult(t, rr) {
		t.Fatal("expected result false")
	}
}

func TestInvalidInputMapsTo400(t *testing.T) {
	stub := &stubRoleService{err: fmt.Errorf("%w: role name", rbac.ErrInvalidInput)}
	a := newTestAPI(stub)

	rr := doRequest(t, a, http.MethodPost, "/api/role/"+testTenant+"/bad")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestInfrastructureFailuresMapTo503(t *testing.T) {
	for _, err := range []error{pool.ErrCircuitOpen, pool.ErrPoolTimeout} {
		stub := &stubRoleService{err: err}
		a := newTestAPI(stub)

		rr := doRequest(t, a, http.MethodGet, "/api/has_permission/"+testTenant+"/alice/manage_users")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%v: expected 503, got %d", err, rr.Code)
		}
	}
}

func TestUnknownErrorMapsTo500(t *testing.T) {
	stub := &stubRoleService{err: fmt.Errorf("boom")}
	a := newTestAPI(stub)

	rr := doRequest(t, a, http.MethodGet, "/api/roles/"+testTenant)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Fatal("internal error details must not leak to the client")
	}
}

func TestListingEndpoints(t *testing.T) {
	stub := &stubRoleService{
		roles:   []rbac.Role{{Name: "admin", Description: "administrators"}, {Name: "viewer"}},
		perms:   []rbac.Permission{{Name: "manage_users"}, {Name: "view_reports"}},
		members: []rbac.Membership{{User: "alice", Role: "admin"}},
		names:   []string{"admin"},
	}
	a := newTestAPI(stub)

	rr := doRequest(t, a, http.MethodGet, "/api/roles/"+testTenant)
	if rr.Code != http.StatusOK {
		t.Fatalf("roles: status %d", rr.Code)
	}
	var roles []roleResponse
	if err := json.NewDecoder(rr.Body).Decode(&roles); err != nil {
		t.Fatalf("decode roles: %v", err)
	}
	if len(roles) != 2 || roles[0].Role != "admin" || roles[0].Description != "administrators" {
		t.Fatalf("unexpected roles payload: %+v", roles)
	}

	rr = doRequest(t, a, http.MethodGet, "/api/permissions/"+testTenant+"/admin")
	var rolePerms []string
	if err := json.NewDecoder(rr.Body).Decode(&rolePerms); err != nil {
		t.Fatalf("decode role permissions: %v", err)
	}
	if len(rolePerms) != 2 || rolePerms[0] != "manage_users" || rolePerms[1] != "view_reports" {
		t.Fatalf("unexpected role permissions payload: %v", rolePerms)
	}

	rr = doRequest(t, a, http.MethodGet, "/api/user_permissions/"+testTenant+"/alice")
	var perms []string
	if err := json.NewDecoder(rr.Body).Decode(&perms); err != nil {
		t.Fatalf("decode permissions: %v", err)
	}
	if len(perms) != 2 || perms[0] != "manage_users" {
		t.Fatalf("unexpected permissions payload: %v", perms)
	}

	rr = doRequest(t, a, http.MethodGet, "/api/user_roles/"+testTenant+"/alice")
	var userRoles []string
	if err := json.NewDecoder(rr.Body).Decode(&userRoles); err != nil {
		t.Fatalf("decode user roles: %v", err)
	}
	if len(userRoles) != 1 || userRoles[0] != "admin" {
		t.Fatalf("unexpected user roles payload: %v", userRoles)
	}

	rr = doRequest(t, a, http.MethodGet, "/api/members/"+testTenant+"/admin")
	var members []string
	if err := json.NewDecoder(rr.Body).Decode(&members); err != nil {
		t.Fatalf("decode members: %v", err)
	}
	if len(members) != 1 || members[0] != "alice" {
		t.Fatalf("unexpected members payload: %v", members)
	}

	rr = doRequest(t, a, http.MethodGet, "/api/which_roles_can/"+testTenant+"/manage_users")
	var canRoles []string
	if err := json.NewDecoder(rr.Body).Decode(&canRoles); err != nil {
		t.Fatalf("decode which_roles_can: %v", err)
	}
	if len(canRoles) != 1 || canRoles[0] != "admin" {
		t.Fatalf("unexpected which_roles_can payload: %v", canRoles)
	}

	rr = doRequest(t, a, http.MethodGet, "/api/which_users_can/"+testTenant+"/manage_users")
	var canUsers []memberResponse
	if err := json.NewDecoder(rr.Body).Decode(&canUsers); err != nil {
		t.Fatalf("decode which_users_can: %v", err)
	}
	if len(canUsers) != 1 || canUsers[0].User != "alice" || canUsers[0].Role != "admin" {
		t.Fatalf("unexpected which_users_can payload: %+v", canUsers)
	}
}

func TestMethodAndPathErrors(t *testing.T) {
	a := newTestAPI(&stubRoleService{result: true})

	rr := doRequest(t, a, http.MethodPut, "/api/role/"+testTenant+"/admin")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); !strings.Contains(allow, http.MethodPost) {
		t.Fatalf("expected Allow header, got %q", allow)
	}

	rr = doRequest(t, a, http.MethodGet, "/api/unknown_verb/"+testTenant)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = doRequest(t, a, http.MethodPost, "/api/role/"+testTenant)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing segment, got %d", rr.Code)
	}
}

func TestPingAndHealth(t *testing.T) {
	a := newTestAPI(&stubRoleService{})

	rr := doRequest(t, a, http.MethodGet, "/ping")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "PONG") {
		t.Fatalf("ping: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, a, http.MethodGet, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rr.Code)
	}
}
