package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"hail/internal/auth"
)

const testSecret = "test-secret"

func testRouter(role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	grp := r.Group("/", Authenticate(testSecret))
	if role != "" {
		grp = grp.Group("/", RequireRole(role))
	}
	grp.GET("/ping", func(c *gin.Context) {
		p := PrincipalFrom(c)
		c.JSON(http.StatusOK, gin.H{"uid": p.UserID})
	})
	return r
}

func doGet(t *testing.T, r *gin.Engine, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	w := doGet(t, testRouter(""), "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuthenticate_BadToken(t *testing.T) {
	w := doGet(t, testRouter(""), "not-a-token")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuthenticate_ValidToken(t *testing.T) {
	tok, err := auth.SignToken(auth.Principal{UserID: 5, Role: auth.RolePassenger}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w := doGet(t, testRouter(""), tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	tok, err := auth.SignToken(auth.Principal{UserID: 5, Role: auth.RolePassenger}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if w := doGet(t, testRouter(auth.RoleDriver), tok); w.Code != http.StatusForbidden {
		t.Fatalf("wrong role: status = %d, want 403", w.Code)
	}
	if w := doGet(t, testRouter(auth.RolePassenger), tok); w.Code != http.StatusOK {
		t.Fatalf("matching role: status = %d, want 200", w.Code)
	}
}
