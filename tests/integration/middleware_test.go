//go:build integration

package integration

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"testing"
)

// headerList splits a comma separated header into lowercased names.
func headerList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func preflight(t *testing.T, path, method, headers string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, baseURL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:8501")
	req.Header.Set("Access-Control-Request-Method", method)
	if headers != "" {
		req.Header.Set("Access-Control-Request-Headers", headers)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestRequestID_OnErrorResponses(t *testing.T) {
	resp := doGet(t, apiPrefix+"/products/does-not-exist")
	requestID := resp.Header.Get("X-Request-ID")
	body := expect[errorResponse](t, resp, http.StatusNotFound)

	if requestID == "" {
		t.Error("X-Request-ID header not present on 404")
	}
	if body.Code != http.StatusNotFound || body.Details["entity"] != "product" {
		t.Errorf("unexpected error body: %+v", body)
	}
}

func TestRequestID_Echoed(t *testing.T) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, baseURL+apiPrefix+"/cart", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("X-Request-ID", "checkout-trace-42")

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	// The ID survives an authentication failure.
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "checkout-trace-42" {
		t.Errorf("X-Request-ID: got %q, want %q", got, "checkout-trace-42")
	}
}

func TestCORS_PreflightAllowsBearerAuth(t *testing.T) {
	resp := preflight(t, apiPrefix+"/orders/temp/add_item", http.MethodPost, "authorization, content-type")
	defer resp.Body.Close()

	// Preflights never reach the authenticated handler.
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin: got %q, want *", got)
	}
	allowed := headerList(resp.Header.Get("Access-Control-Allow-Headers"))
	for _, h := range []string{"authorization", "content-type", "x-request-id"} {
		if !slices.Contains(allowed, h) {
			t.Errorf("Access-Control-Allow-Headers %v lacks %s", allowed, h)
		}
	}
	if got := resp.Header.Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("Access-Control-Max-Age: got %q, want 86400", got)
	}
}

func TestCORS_PreflightAdminMethods(t *testing.T) {
	for _, method := range []string{http.MethodPut, http.MethodDelete} {
		resp := preflight(t, apiPrefix+"/products/kb-mech-87", method, "authorization")
		resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("%s: expected 204, got %d", method, resp.StatusCode)
		}
		methods := headerList(resp.Header.Get("Access-Control-Allow-Methods"))
		if !slices.Contains(methods, strings.ToLower(method)) {
			t.Errorf("Access-Control-Allow-Methods %v lacks %s", methods, method)
		}
	}
}

func TestCORS_ExposesStorefrontHeaders(t *testing.T) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, baseURL+apiPrefix+"/products", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:8501")

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin: got %q, want *", got)
	}
	exposed := headerList(resp.Header.Get("Access-Control-Expose-Headers"))
	for _, h := range []string{"x-request-id", "retry-after", "x-ratelimit-remaining"} {
		if !slices.Contains(exposed, h) {
			t.Errorf("Access-Control-Expose-Headers %v lacks %s", exposed, h)
		}
	}
}

func TestRateLimit_Headers(t *testing.T) {
	resp := doGet(t, apiPrefix+"/products")
	defer resp.Body.Close()

	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "100000" {
		t.Errorf("X-RateLimit-Limit: got %q, want 100000", limit)
	}
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining == "" {
		t.Error("X-RateLimit-Remaining header not present")
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset == "" {
		t.Error("X-RateLimit-Reset header not present")
	}
}

func TestRateLimit_HealthChecksExempt(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		resp := doGet(t, path)
		resp.Body.Close()

		if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
			t.Errorf("%s is rate limited, got X-RateLimit-Limit %q", path, limit)
		}
	}
}

func TestUnmatchedRoutes_JSON(t *testing.T) {
	body := expect[errorResponse](t, doGet(t, apiPrefix+"/no-such-route"), http.StatusNotFound)
	if body.Message != "route not found" {
		t.Errorf("404 message: got %q", body.Message)
	}

	resp := doRequest(t, http.MethodPatch, apiPrefix+"/products/kb-mech-87", "", nil)
	body = expect[errorResponse](t, resp, http.StatusMethodNotAllowed)
	if body.Code != http.StatusMethodNotAllowed {
		t.Errorf("405 code: got %d", body.Code)
	}
}
