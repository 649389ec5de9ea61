package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const testKey = "test-signing-key"

func signToken(t *testing.T, roles []string, key string) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func runRequest(mw []echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, string) {
	e := echo.New()
	var uid string
	handler := func(c echo.Context) error {
		uid = UserIDFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, uid
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: []byte(testKey)})
	token := signToken(t, []string{"physician"}, testKey)

	rec, uid := runRequest([]echo.MiddlewareFunc{mw}, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if uid != "user-123" {
		t.Errorf("user id = %q, want user-123", uid)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: []byte(testKey)})
	rec, _ := runRequest([]echo.MiddlewareFunc{mw}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: []byte(testKey)})
	token := signToken(t, []string{"physician"}, "other-key")
	rec, _ := runRequest([]echo.MiddlewareFunc{mw}, "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireRole_Allowed(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: []byte(testKey)})
	token := signToken(t, []string{"front_desk"}, testKey)

	rec, _ := runRequest([]echo.MiddlewareFunc{mw, RequireRole("front_desk", "physician")}, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: []byte(testKey)})
	token := signToken(t, []string{"nurse"}, testKey)

	rec, _ := runRequest([]echo.MiddlewareFunc{mw, RequireRole("physician")}, "Bearer "+token)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: []byte(testKey)})
	token := signToken(t, []string{"admin"}, testKey)

	rec, _ := runRequest([]echo.MiddlewareFunc{mw, RequireRole("physician")}, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDevAuthMiddleware_DefaultsAdmin(t *testing.T) {
	rec, uid := runRequest([]echo.MiddlewareFunc{DevAuthMiddleware(), RequireRole("physician")}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if uid != "dev-user" {
		t.Errorf("user id = %q, want dev-user", uid)
	}
}
