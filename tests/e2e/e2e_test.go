//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tasklist/tasklist/internal/repository"
)

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type taskResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	User        string `json:"user"`
}

func TestE2ESmoke(t *testing.T) {
	baseURL := envOrDefault("TASKLIST_BASE_URL", "http://localhost:8080")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatalf("DATABASE_URL is required for e2e tests")
	}

	alice := uniqueName("alice")
	bob := uniqueName("bob")
	admin := uniqueName("admin")

	aliceTokens := signup(t, baseURL, alice)
	bobTokens := signup(t, baseURL, bob)
	signup(t, baseURL, admin)
	promoteAdmin(t, dbURL, admin)
	adminTokens := login(t, baseURL, admin)

	var task taskResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/tasks/", aliceTokens.Access, map[string]any{"title": "Buy milk"}, &task)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from task create, got %d", status)
	}
	if task.User != alice {
		t.Fatalf("task owner = %q, want %q", task.User, alice)
	}
	detail := baseURL + "/api/v1/tasks/" + task.ID + "/"

	var bobList []taskResponse
	if status := doJSON(t, http.MethodGet, baseURL+"/api/v1/tasks/", bobTokens.Access, nil, &bobList); status != http.StatusOK {
		t.Fatalf("expected 200 from bob's list, got %d", status)
	}
	for _, other := range bobList {
		if other.ID == task.ID {
			t.Fatal("bob's listing contains alice's task")
		}
	}

	if status := doJSON(t, http.MethodGet, detail, bobTokens.Access, nil, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner read, got %d", status)
	}
	if status := doJSON(t, http.MethodDelete, detail, bobTokens.Access, nil, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner delete, got %d", status)
	}

	if status := doJSON(t, http.MethodGet, baseURL+"/api/v1/admin/tasks/", aliceTokens.Access, nil, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin listing, got %d", status)
	}

	var all []taskResponse
	if status := doJSON(t, http.MethodGet, baseURL+"/api/v1/admin/tasks/", adminTokens.Access, nil, &all); status != http.StatusOK {
		t.Fatalf("expected 200 from admin listing, got %d", status)
	}
	found := false
	for _, other := range all {
		if other.ID == task.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("admin listing is missing alice's task")
	}

	var patched taskResponse
	if status := doJSON(t, http.MethodPatch, detail, aliceTokens.Access, map[string]any{"completed": true}, &patched); status != http.StatusOK {
		t.Fatalf("expected 200 from patch, got %d", status)
	}
	if !patched.Completed || patched.Title != "Buy milk" {
		t.Fatalf("patch result = %+v", patched)
	}

	if status := doJSON(t, http.MethodDelete, detail, aliceTokens.Access, nil, nil); status != http.StatusNoContent {
		t.Fatalf("expected 204 from delete, got %d", status)
	}
	if status := doJSON(t, http.MethodGet, detail, aliceTokens.Access, nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
}

// TestE2ERefreshRotation validates that a refresh token works exactly once.
func TestE2ERefreshRotation(t *testing.T) {
	baseURL := envOrDefault("TASKLIST_BASE_URL", "http://localhost:8080")

	tokens := signup(t, baseURL, uniqueName("rotate"))

	var rotated tokenPair
	if status := doJSON(t, http.MethodPost, baseURL+"/api/v1/token/refresh/", "", map[string]string{"refresh": tokens.Refresh}, &rotated); status != http.StatusOK {
		t.Fatalf("expected 200 from first refresh, got %d", status)
	}
	if status := doJSON(t, http.MethodPost, baseURL+"/api/v1/token/refresh/", "", map[string]string{"refresh": tokens.Refresh}, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 from reused refresh token, got %d", status)
	}
	if status := doJSON(t, http.MethodGet, baseURL+"/api/v1/tasks/", rotated.Access, nil, nil); status != http.StatusOK {
		t.Fatalf("rotated access token rejected: %d", status)
	}
}

// TestE2ERateLimiting validates that the auth endpoints return 429 with proper headers.
func TestE2ERateLimiting(t *testing.T) {
	baseURL := envOrDefault("TASKLIST_BASE_URL", "http://localhost:8080")

	client := &http.Client{Timeout: 10 * time.Second}
	var lastResp *http.Response

	// Default auth limit is 5 rps with a burst of 10.
	for i := 0; i < 40; i++ {
		body := strings.NewReader(`{"username":"nobody","password":"wrong"}`)
		resp, err := client.Post(baseURL+"/api/v1/token/", "application/json", body)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastResp = resp
			break
		}
		resp.Body.Close()
	}

	if lastResp == nil {
		t.Fatalf("expected 429 rate limit after burst, but never hit rate limit")
	}
	defer lastResp.Body.Close()

	if lastResp.Header.Get("X-RateLimit-Limit") == "" {
		t.Error("missing X-RateLimit-Limit header on 429 response")
	}
	if remaining := lastResp.Header.Get("X-RateLimit-Remaining"); remaining != "0" {
		t.Errorf("expected X-RateLimit-Remaining=0, got %s", remaining)
	}
	if lastResp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header on 429 response")
	}

	var errResp map[string]any
	if err := json.NewDecoder(lastResp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode 429 response: %v", err)
	}
	if errResp["code"] != "RATE_LIMITED" {
		t.Errorf("code = %v, want RATE_LIMITED", errResp["code"])
	}
}

// TestE2ENoSecretsInResponses validates that credentials are never echoed back.
func TestE2ENoSecretsInResponses(t *testing.T) {
	baseURL := envOrDefault("TASKLIST_BASE_URL", "http://localhost:8080")

	fake := "eyJhbGciOiJIUzI1NiJ9." + strings.Repeat("x", 32) + ".sig"
	body := rawRequest(t, http.MethodGet, baseURL+"/api/v1/tasks/", fake, nil)
	if strings.Contains(body, fake) {
		t.Error("SECURITY: error response leaked Authorization header value")
	}

	username := uniqueName("secret")
	password := "correct horse battery staple"
	body = rawRequest(t, http.MethodPost, baseURL+"/api/v1/user/register/", "", map[string]string{"username": username, "password": password})
	if strings.Contains(body, password) {
		t.Error("SECURITY: registration response echoed the password")
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("e2e_%s_%d", prefix, time.Now().UnixNano())
}

func signup(t *testing.T, baseURL, username string) tokenPair {
	t.Helper()
	payload := map[string]string{"username": username, "password": "pw-" + username}
	if status := doJSON(t, http.MethodPost, baseURL+"/api/v1/user/register/", "", payload, nil); status != http.StatusCreated {
		t.Fatalf("expected 201 from register, got %d", status)
	}
	return login(t, baseURL, username)
}

func login(t *testing.T, baseURL, username string) tokenPair {
	t.Helper()
	var pair tokenPair
	payload := map[string]string{"username": username, "password": "pw-" + username}
	if status := doJSON(t, http.MethodPost, baseURL+"/api/v1/token/", "", payload, &pair); status != http.StatusOK {
		t.Fatalf("expected 200 from token, got %d", status)
	}
	return pair
}

// promoteAdmin flips the admin flag directly since the API never grants it.
func promoteAdmin(t *testing.T, dbURL, username string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer repo.Close()

	if err := repo.SetUserAdmin(ctx, username, true); err != nil {
		t.Fatalf("promote admin: %v", err)
	}
}

func rawRequest(t *testing.T, method, url, token string, body any) string {
	t.Helper()
	var out json.RawMessage
	doJSON(t, method, url, token, body, &out)
	return string(out)
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		buf = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(out); err != nil && resp.ContentLength != 0 {
			t.Fatalf("decode response: %v", err)
		}
	}

	return resp.StatusCode
}
