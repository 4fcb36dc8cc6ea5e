package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pixelpress/api/internal/auth"
	"github.com/pixelpress/api/internal/logger"
)

const testSecret = "middleware-secret"

func whoami(c *fiber.Ctx) error {
	return c.SendString(GetUserID(c) + "|" + GetUserEmail(c))
}

func do(t *testing.T, app *fiber.App, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestAuthenticate(t *testing.T) {
	app := fiber.New()
	app.Get("/", NewAuthMiddleware(auth.NewHMACVerifier(testSecret)).Authenticate(), whoami)

	valid, err := auth.IssueHMACToken(testSecret, "u-1", "u1@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueHMACToken() error = %v", err)
	}
	forged, err := auth.IssueHMACToken("other-secret", "u-1", "u1@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueHMACToken() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, "u-1|u1@example.com"},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "u-1|u1@example.com"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized, ""},
		{"forged", "Bearer " + forged, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			status, body := do(t, app, headers)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if tt.body != "" && body != tt.body {
				t.Errorf("body = %q, want %q", body, tt.body)
			}
		})
	}
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", GatewayAuthMiddleware(), whoami)

	status, body := do(t, app, map[string]string{
		"X-User-Id":    "u-2",
		"X-User-Email": "u2@example.com",
	})
	if status != http.StatusOK || body != "u-2|u2@example.com" {
		t.Errorf("got %d %q", status, body)
	}

	status, _ = do(t, app, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", status)
	}
}

func TestRateLimiter_WithoutRedisAllows(t *testing.T) {
	rl := NewRateLimiter(nil, logger.Discard())
	app := fiber.New()
	app.Get("/", rl.SubmitLimit(1), whoami)

	for i := 0; i < 3; i++ {
		if status, _ := do(t, app, nil); status != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, status)
		}
	}
}
