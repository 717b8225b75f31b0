package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newRouter(min Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", NewAuth(testSecret).RequireRole(min), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(KeyIdentity))
	})
	return r
}

func TestRequireRole(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	cases := []struct {
		name   string
		header string
		min    Role
		code   int
		body   string
	}{
		{"missing", "", RoleView, http.StatusUnauthorized, ""},
		{"bad format", "Token abc", RoleView, http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + signToken(t, []byte("other"), jwt.MapClaims{"sub": "u1", "role": "ADMIN", "exp": exp}), RoleView, http.StatusUnauthorized, ""},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": "ADMIN", "exp": time.Now().Add(-time.Minute).Unix()}), RoleView, http.StatusUnauthorized, ""},
		{"unknown role", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": "owner", "exp": exp}), RoleView, http.StatusUnauthorized, ""},
		{"too low", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": "REQUEST", "exp": exp}), RoleApprover, http.StatusForbidden, ""},
		{"higher role passes", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "email": "lee@example.com", "role": "admin", "exp": exp}), RoleApprover, http.StatusOK, "lee@example.com"},
		{"subject as identity", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": "VIEW", "exp": exp}), RoleView, http.StatusOK, "u1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			newRouter(tc.min).ServeHTTP(w, req)
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d (%s)", tc.code, w.Code, w.Body.String())
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Errorf("expected identity %q, got %q", tc.body, w.Body.String())
			}
		})
	}
}

func TestRequireRole_Cookie(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "u2", "role": "APPROVER", "exp": time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	w := httptest.NewRecorder()
	newRouter(RoleApprover).ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "u2" {
		t.Errorf("expected cookie auth to pass, got %d %s", w.Code, w.Body.String())
	}
}
