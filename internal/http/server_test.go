package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"hail/internal/auth"
	"hail/internal/config"
	"hail/internal/modules/driver"
	"hail/internal/modules/ride"
)

const testSecret = "test-secret"

// buildTestRouter wires the router over nil stores. Only paths that fail
// before touching storage can be exercised here; the full flows live in the
// store integration tests.
func buildTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRouter(Deps{
		Rides:   ride.NewService(nil, config.DispatchConfig{}, log),
		Drivers: driver.NewService(nil),
		Engine:  nil,
		Secret:  testSecret,
		Log:     log,
	})
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func signedToken(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := auth.SignToken(auth.Principal{UserID: userID, Role: role}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func do(t *testing.T, r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutes_RequireAuth(t *testing.T) {
	r := buildTestRouter()
	paths := []struct{ method, path string }{
		{http.MethodPost, "/api/rides"},
		{http.MethodPatch, "/api/rides/1/accept"},
		{http.MethodPatch, "/api/rides/1/reject"},
		{http.MethodPatch, "/api/rides/1/start"},
		{http.MethodPatch, "/api/rides/1/complete"},
		{http.MethodPatch, "/api/rides/1/cancel"},
		{http.MethodGet, "/api/rides/1"},
		{http.MethodGet, "/api/rides/active"},
		{http.MethodPost, "/api/drivers"},
		{http.MethodPatch, "/api/drivers/status"},
		{http.MethodPatch, "/api/drivers/location"},
		{http.MethodGet, "/api/drivers/1/rides"},
	}
	for _, p := range paths {
		if w := do(t, r, p.method, p.path, "", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestRoutes_RoleGates(t *testing.T) {
	r := buildTestRouter()
	riderTok := signedToken(t, 1, auth.RolePassenger)
	driverTok := signedToken(t, 2, auth.RoleDriver)

	// Driver-only mutations rejected for riders.
	for _, path := range []string{"/api/rides/1/accept", "/api/rides/1/reject", "/api/rides/1/start", "/api/rides/1/complete"} {
		if w := do(t, r, http.MethodPatch, path, riderTok, "{}"); w.Code != http.StatusForbidden {
			t.Errorf("PATCH %s as rider: status = %d, want 403", path, w.Code)
		}
	}
	// Rider-only routes rejected for drivers.
	if w := do(t, r, http.MethodPost, "/api/rides", driverTok, "{}"); w.Code != http.StatusForbidden {
		t.Errorf("POST /api/rides as driver: status = %d, want 403", w.Code)
	}
	if w := do(t, r, http.MethodPatch, "/api/rides/1/cancel", driverTok, "{}"); w.Code != http.StatusForbidden {
		t.Errorf("cancel as driver: status = %d, want 403", w.Code)
	}
}

func TestRequestRide_Validation(t *testing.T) {
	r := buildTestRouter()
	tok := signedToken(t, 1, auth.RolePassenger)

	cases := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"zero passengers", `{"pickup_lat":25,"pickup_lng":121,"dropoff_lat":25,"dropoff_lng":121,"passenger_count":0}`},
		{"latitude out of range", `{"pickup_lat":95,"pickup_lng":121,"dropoff_lat":25,"dropoff_lng":121,"passenger_count":1}`},
		{"longitude out of range", `{"pickup_lat":25,"pickup_lng":181,"dropoff_lat":25,"dropoff_lng":121,"passenger_count":1}`},
		{"not json", `pickup=25`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(t, r, http.MethodPost, "/api/rides", tok, tc.body); w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestPathIDValidation(t *testing.T) {
	r := buildTestRouter()
	tok := signedToken(t, 2, auth.RoleDriver)
	if w := do(t, r, http.MethodPatch, "/api/rides/abc/accept", tok, "{}"); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHealth(t *testing.T) {
	r := buildTestRouter()
	if w := do(t, r, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
