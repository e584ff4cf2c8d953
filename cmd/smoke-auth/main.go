package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// Smoke test against a running claviger-api: builds a tiny role graph
// under a fresh tenant key, checks resolution both ways, then tears the
// role down and verifies the cascade.
func main() {
	base := os.Getenv("AUTH_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	tenant := uuid.NewString()

	call := func(method, path string, want bool) {
		req, err := http.NewRequestWithContext(ctx, method, base+path, nil)
		if err != nil {
			log.Fatalf("%s %s: %v", method, path, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			log.Fatalf("%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			log.Fatalf("%s %s: status %d", method, path, resp.StatusCode)
		}
		var body struct {
			Result bool `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			log.Fatalf("%s %s: decode: %v", method, path, err)
		}
		if body.Result != want {
			log.Fatalf("%s %s: result=%v, want %v", method, path, body.Result, want)
		}
	}

	call(http.MethodPost, "/api/role/"+tenant+"/admin", true)
	call(http.MethodPost, "/api/permission/"+tenant+"/admin/manage_users", true)
	call(http.MethodPost, "/api/membership/"+tenant+"/alice/admin", true)

	call(http.MethodGet, "/api/has_permission/"+tenant+"/alice/manage_users", true)
	call(http.MethodGet, "/api/has_permission/"+tenant+"/bob/manage_users", false)

	// Duplicate create is success; granting to a missing role is not.
	call(http.MethodPost, "/api/role/"+tenant+"/admin", true)
	call(http.MethodPost, "/api/permission/"+tenant+"/ghost/manage_users", false)

	// Deleting the role cascades grants and memberships.
	call(http.MethodDelete, "/api/role/"+tenant+"/admin", true)
	call(http.MethodGet, "/api/has_permission/"+tenant+"/alice/manage_users", false)
	call(http.MethodGet, "/api/membership/"+tenant+"/alice/admin", false)

	fmt.Printf("✅ claviger-api smoke test passed: tenant=%s\n", tenant)
}
