package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must only be sent over TLS")
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newAuthRouter(secret string) *gin.Engine {
	router := gin.New()
	router.Use(AuthMiddleware(secret), AdminMiddleware())
	router.GET("/whoami", func(c *gin.Context) {
		actor := Actor(c)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "email": actor.Email})
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	router := newAuthRouter(secret)
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", jwt.MapClaims{"user_id": 1, "role": "admin", "exp": exp}), http.StatusUnauthorized},
		{"no expiry", "Bearer " + signToken(t, secret, jwt.MapClaims{"user_id": 1, "role": "admin"}), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, secret, jwt.MapClaims{"user_id": 1, "role": "admin", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"not admin", "Bearer " + signToken(t, secret, jwt.MapClaims{"user_id": 1, "role": "editor", "exp": exp}), http.StatusForbidden},
		{"admin", "Bearer " + signToken(t, secret, jwt.MapClaims{"user_id": 7, "email": "a@example.com", "role": "admin", "exp": exp}), http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestCriticalOperationRateLimit(t *testing.T) {
	manager := NewRateLimitManager(context.Background())
	defer manager.Shutdown()

	router := gin.New()
	router.POST("/backup", CriticalOperationRateLimit(manager, "backup", 2, 3600), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backup", nil))
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestRateLimitBypassesHealth(t *testing.T) {
	manager := NewRateLimitManager(context.Background())
	defer manager.Shutdown()

	router := gin.New()
	router.Use(RateLimitMiddleware(manager, RateLimitConfig{Requests: 1, WindowSeconds: 3600}))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("health check %d limited: %d", i, rec.Code)
		}
	}
}
