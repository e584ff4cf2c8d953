package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	a := newTestAPI(&stubRoleService{result: true}, WithJWTSecret("service-secret"))
	h := a.withAuth(a.mux)

	req := httptest.NewRequest(http.MethodGet, "/api/roles/"+testTenant, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthAcceptsValidToken(t *testing.T) {
	a := newTestAPI(&stubRoleService{result: true}, WithJWTSecret("service-secret"))
	h := a.withAuth(a.mux)

	req := httptest.NewRequest(http.MethodGet, "/api/roles/"+testTenant, nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "service-secret", "svc-billing"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestWithAuthRejectsWrongSecret(t *testing.T) {
	a := newTestAPI(&stubRoleService{result: true}, WithJWTSecret("service-secret"))
	h := a.withAuth(a.mux)

	req := httptest.NewRequest(http.MethodGet, "/api/roles/"+testTenant, nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", "svc-billing"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthAllowsPublicPaths(t *testing.T) {
	a := newTestAPI(&stubRoleService{}, WithJWTSecret("service-secret"))
	h := a.withAuth(a.mux)

	for _, path := range []string{"/ping", "/healthz", "/readyz", "/v1/info", "/openapi.yaml"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusUnauthorized {
			t.Fatalf("%s must be reachable without a token", path)
		}
	}
}

func TestWithAuthDisabledWithoutSecret(t *testing.T) {
	a := newTestAPI(&stubRoleService{result: true})
	h := a.withAuth(a.mux)

	req := httptest.NewRequest(http.MethodGet, "/api/roles/"+testTenant, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", rr.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	if _, err := extractBearerToken(""); err == nil {
		t.Fatal("expected error for empty header")
	}
	if _, err := extractBearerToken("Basic abc"); err == nil {
		t.Fatal("expected error for wrong scheme")
	}
	token, err := extractBearerToken("Bearer abc.def.ghi")
	if err != nil || token != "abc.def.ghi" {
		t.Fatalf("unexpected result: %q %v", token, err)
	}
}
