package httpapi

import (
	"context"
	"net/http"
	"time"

	"claviger.org/api/spec"
	"claviger.org/internal/obs"
	"claviger.org/internal/rbac"
)

// RoleService is the part of the resolver the HTTP layer consumes.
type RoleService interface {
	Roles(ctx context.Context, tenant string) ([]rbac.Role, error)
	AddRole(ctx context.Context, tenant, role, description string) (bool, error)
	DelRole(ctx context.Context, tenant, role string) (bool, error)
	AddPermission(ctx context.Context, tenant, role, name string) (bool, error)
	DelPermission(ctx context.Context, tenant, role, name string) (bool, error)
	HasPermission(ctx context.Context, tenant, role, name string) (bool, error)
	AddMembership(ctx context.Context, tenant, user, role string) (bool, error)
	DelMembership(ctx context.Context, tenant, user, role string) (bool, error)
	HasMembership(ctx context.Context, tenant, user, role string) (bool, error)
	UserHasPermission(ctx context.Context, tenant, user, name string) (bool, error)
	GetUserPermissions(ctx context.Context, tenant, user string) ([]rbac.Permission, error)
	GetUserRoles(ctx context.Context, tenant, user string) ([]rbac.Membership, error)
	GetRoleMembers(ctx context.Context, tenant, role string) ([]rbac.Membership, error)
	GetPermissions(ctx context.Context, tenant, role string) ([]rbac.Permission, error)
	WhichRolesCan(ctx context.Context, tenant, name string) ([]string, error)
	WhichUsersCan(ctx context.Context, tenant, name string) ([]rbac.Membership, error)
}

// ReadyProbe checks the backing store before reporting the process ready.
type ReadyProbe struct {
	Pinger interface {
		Ping(ctx context.Context) error
	}
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Pinger == nil {
		return nil
	}
	return rp.Pinger.Ping(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	rbac       RoleService
	readyProbe ReadyProbe
	version    string
	jwtSecret  []byte
	rateBurst  int
	ratePerSec int
}

// Option configures the API.
type Option func(*API)

// WithJWTSecret enables bearer-token authentication on the RBAC endpoints.
// Without it the API trusts the network boundary.
func WithJWTSecret(secret string) Option {
	return func(a *API) {
		if secret != "" {
			a.jwtSecret = []byte(secret)
		}
	}
}

// WithRateLimit overrides the default per-IP rate limit.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSecond
		}
	}
}

func New(svc RoleService, rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		rbac:       svc,
		readyProbe: rp,
		version:    version,
		rateBurst:  100,
		ratePerSec: 50,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/ping", a.Ping)
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	a.mux.Handle("/metrics", obs.Handler())

	// All role-graph endpoints share one dispatcher; the verb is the
	// first path segment after /api/.
	a.mux.HandleFunc("/api/", a.handleAPI)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestContext(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "PONG"})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "claviger-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "claviger-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}
