package middlewares

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/compliance_backend/utils"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/whoami", func(c *gin.Context) {
		ctx := c.Request.Context()
		companyId, _ := utils.GetCompanyIdFromContext(ctx)
		userId, _ := utils.GetUserIdFromContext(ctx)
		role, _ := utils.GetUserRoleFromContext(ctx)
		authenticated, _ := utils.GetAuthenticatedFromContext(ctx)
		c.JSON(http.StatusOK, gin.H{"company_id": companyId, "user_id": userId, "role": role, "authenticated": authenticated})
	})
	r.GET("/dpa", RequireRole("DPA"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	token, err := utils.JwtGenerate(7, "fleet-1", "Capt. Moe", "MASTER,DPA")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	r := newRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`"company_id":"fleet-1"`, `"user_id":7`, `"authenticated":true`} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in %s", want, body)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/dpa", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("DPA role should pass, got %d", w.Code)
	}
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	r := newRouter()
	for _, header := range []string{"Bearer nope", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", header, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/dpa", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("anonymous caller must be forbidden, got %d", w.Code)
	}
}
