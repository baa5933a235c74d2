package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

// roleContext builds an echo context carrying the given role names, as
// JWTAuth would have stashed them.
func roleContext(names []string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if names != nil {
		c.Set(ctxRolesKey, names)
	}
	return c, rec
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		held     []string
		wantCode int
	}{
		{"matching role", []string{"admin"}, []string{"admin"}, http.StatusOK},
		{"one of several", []string{"admin", "auditor"}, []string{"user", "auditor"}, http.StatusOK},
		{"no intersection", []string{"admin"}, []string{"user"}, http.StatusForbidden},
		{"zero roles", []string{"admin"}, []string{}, http.StatusForbidden},
		{"unauthenticated context", []string{"admin"}, nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := roleContext(tt.held)
			mw := RequireRole(tt.allowed...)
			err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
			if err != nil {
				t.Fatalf("middleware error: %v", err)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	c, rec := roleContext([]string{"user"})
	err := RequireAdmin()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	if err != nil {
		t.Fatalf("middleware error: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin status = %d, want 403", rec.Code)
	}

	c, rec = roleContext([]string{"admin", "user"})
	err = RequireAdmin()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	if err != nil {
		t.Fatalf("middleware error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("admin status = %d, want 200", rec.Code)
	}
}
