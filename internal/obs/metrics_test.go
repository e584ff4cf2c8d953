package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"": "/",
		"/metrics": "/metrics",
		"/healthz": "/healthz",
		"/api/roles/4fa81003-4b39-45b0-8de2-0c44e0c8b2f5":                       "/api/roles/:client",
		"/api/role/4fa81003-4b39-45b0-8de2-0c44e0c8b2f5/admin":                  "/api/role/:client/:role",
		"/api/membership/4fa81003-4b39-45b0-8de2-0c44e0c8b2f5/alice/admin":      "/api/membership/:client/:user/:role",
		"/api/permission/4fa81003-4b39-45b0-8de2-0c44e0c8b2f5/admin/manage":     "/api/permission/:client/:role/:name",
		"/api/has_permission/4fa81003-4b39-45b0-8de2-0c44e0c8b2f5/alice/manage": "/api/has_permission/:client/:user/:name",
		"/api/which_users_can/4fa81003-4b39-45b0-8de2-0c44e0c8b2f5/manage":      "/api/which_users_can/:client/:name",
		"/api/roles/abc?pretty=1":   "/api/roles/:client",
		"/api/unknown/abc/def":      "/api/unknown/abc/def",
		"/api/membership/a/b":       "/api/membership/a/b", // wrong arity passes through
		"/v1/info":                  "/v1/info",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestObserveRBACDoesNotPanic(t *testing.T) {
	ObserveRBAC("user_has_permission", "allowed")
	SetBreakerState("database", 0)
	SetPoolStats(3, 7)
	SetReady(true)
}
