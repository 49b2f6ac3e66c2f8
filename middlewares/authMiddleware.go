package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/compliance_backend/utils"
)

// AuthMiddleware validates the bearer token and puts the caller's company, user and
// role on the request context. Requests without a token pass through; operations that
// need an identity reject them.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		token := strings.TrimSpace(auth[len(bearer):])

		claim, err := utils.JwtValidate(token)
		if err != nil || claim.CompanyId == "" || claim.ID <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(withClaim(c.Request.Context(), claim))
		c.Next()
	}
}

func withClaim(ctx context.Context, claim *utils.JwtCustomClaim) context.Context {
	ctx = utils.SetCompanyIdInContext(ctx, claim.CompanyId)
	ctx = utils.SetUserIdInContext(ctx, claim.ID)
	ctx = utils.SetUserNameInContext(ctx, claim.Name)
	ctx = utils.SetUserRoleInContext(ctx, claim.Role)
	ctx = utils.SetAuthenticatedInContext(ctx, true)
	return ctx
}

// RequireIdentity aborts with 401 unless AuthMiddleware accepted a token.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, _ := utils.GetCompanyIdFromContext(c.Request.Context())
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		if companyId == "" || userId <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "IdentityRequired"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole aborts with 403 unless the caller holds one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		held, _ := utils.GetUserRoleFromContext(c.Request.Context())
		for _, r := range utils.SplitAndTrim(held) {
			for _, want := range roles {
				if strings.EqualFold(r, want) {
					c.Next()
					return
				}
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		c.Abort()
	}
}
