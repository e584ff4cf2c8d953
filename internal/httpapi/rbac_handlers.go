package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"claviger.org/internal/obs"
	"claviger.org/internal/pool"
	"claviger.org/internal/rbac"
)

type resultResponse struct {
	Result bool `json:"result"`
}

type roleResponse struct {
	Role        string `json:"role"`
	Description string `json:"description,omitempty"`
}

type memberResponse struct {
	User string `json:"user"`
	Role string `json:"role"`
}

// handleAPI dispatches /api/<verb>/<segments...> to the role graph. The
// verb decides the expected segment count and allowed methods.
func (a *API) handleAPI(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, http.StatusServiceUnavailable, "role service unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	verb, args := parts[0], parts[1:]

	switch verb {
	case "role":
		a.handleRole(w, r, args)
	case "roles":
		a.handleRoles(w, r, args)
	case "permission":
		a.handlePermission(w, r, args)
	case "permissions":
		a.handlePermissions(w, r, args)
	case "membership":
		a.handleMembership(w, r, args)
	case "has_permission":
		a.handleHasPermission(w, r, args)
	case "user_permissions":
		a.handleUserPermissions(w, r, args)
	case "user_roles":
		a.handleUserRoles(w, r, args)
	case "members":
		a.handleMembers(w, r, args)
	case "which_roles_can":
		a.handleWhichRolesCan(w, r, args)
	case "which_users_can":
		a.handleWhichUsersCan(w, r, args)
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, args []string) {
	if len(args) != 2 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	client, role := args[0], args[1]
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Description string `json:"description"`
		}
		// The body is optional; a bare POST creates a role without a
		// description. A present but malformed body is rejected.
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		ok, err := a.rbac.AddRole(r.Context(), client, role, body.Description)
		a.respondResult(w, "role.add", ok, err)
	case http.MethodDelete:
		ok, err := a.rbac.DelRole(r.Context(), client, role)
		a.respondResult(w, "role.delete", ok, err)
	default:
		methodNotAllowed(w, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request, args []string) {
	if len(args) != 1 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	roles, err := a.rbac.Roles(r.Context(), args[0])
	if err != nil {
		handleRBACError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse{Role: role.Name, Description: role.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handlePermission(w http.ResponseWriter, r *http.Request, args []string) {
	if len(args) != 3 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	client, role, name := args[0], args[1], args[2]
	switch r.Method {
	case http.MethodGet:
		ok, err := a.rbac.HasPermission(r.Context(), client, role, name)
		a.respondResult(w, "permission.has", ok, err)
	case http.MethodPost:
		ok, err := a.rbac.AddPermission(r.Context(), client, role, name)
		a.respondResult(w, "permission.add", ok, err)
	case http.MethodDelete:
		ok, err := a.rbac.DelPermission(r.Context(), client, role, name)
		a.respondResult(w, "permission.delete", ok, err)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request, args []string) {
	if len(args) != 2 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	perms, err := a.rbac.GetPermissions(r.Context(), args[0], args[1])
	if err != nil {
		handleRBACError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionNames(perms))
}

func (a *API) handleMembership(w http.ResponseWriter, r *http.Request, args []string) {
	if len(args) != 3 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	client, user, role := args[0], args[1], args[2]
	switch r.Method {
	case http.MethodGet:
		ok, err := a.rbac.HasMembership(r.Context(), client, user, role)
		a.respondResult(w, "membership.has", ok, err)
	case http.MethodPost:
		ok, err := a.rbac.AddMembership(r.Context(), client, user, role)
		a.respondResult(w, "membership.add", ok, err)
	case http.MethodDelete:
		ok, err := a.rbac.DelMembership(r.Context(), client, user, role)
		a.respondResult(w, "membership.delete", ok, err)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleHasPermission(w http.ResponseWriter, r *http.Request, args []string) {
	if len(args) != 3 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	ok, err := a.rbac.UserHasPermission(r.Context(), args[0], args[1], args[2])
	a.respondResult(w, "user.has_permission", ok, err)
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request, args []string) {
	if len(args) != 2 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	perms, err := a.rbac.GetUserPermissions(r.Context(), args[0], args[1])
	if err != nil {
		handleRBACError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionNames(perms))
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, args []string) {
	if len(args) != 2 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	members, err := a.rbac.GetUserRoles(r.Context(), args[0], args[1])
	if err != nil {
		handleRBACError(w, err)
		return
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Role)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleMembers(w http.ResponseWriter, r *http.Request, args []string) {
	if len(args) != 2 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	members, err := a.rbac.GetRoleMembers(r.Context(), args[0], args[1])
	if err != nil {
		handleRBACError(w, err)
		return
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.User)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleWhichRolesCan(w http.ResponseWriter, r *http.Request, args []string) {
	if len(args) != 2 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	roles, err := a.rbac.WhichRolesCan(r.Context(), args[0], args[1])
	if err != nil {
		handleRBACError(w, err)
		return
	}
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) handleWhichUsersCan(w http.ResponseWriter, r *http.Request, args []string) {
	if len(args) != 2 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	members, err := a.rbac.WhichUsersCan(r.Context(), args[0], args[1])
	if err != nil {
		handleRBACError(w, err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{User: m.User, Role: m.Role})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- helpers ---

func (a *API) respondResult(w http.ResponseWriter, op string, ok bool, err error) {
	if err != nil {
		obs.ObserveRBAC(op, "error")
		handleRBACError(w, err)
		return
	}
	if ok {
		obs.ObserveRBAC(op, "ok")
	} else {
		obs.ObserveRBAC(op, "denied")
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: ok})
}

func handleRBACError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidTenant), errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pool.ErrCircuitOpen), errors.Is(err, pool.ErrPoolTimeout):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "role graph operation failed")
	}
}

func permissionNames(perms []rbac.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.Name)
	}
	return out
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
