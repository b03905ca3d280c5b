package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docvault-api/internal/models"
	appErrors "github.com/noah-isme/docvault-api/pkg/errors"
	"github.com/noah-isme/docvault-api/pkg/response"
)

// Role groups used by the document routes.
var (
	ReadRoles  = []models.UserRole{models.RoleOwner, models.RoleAdmin, models.RoleMember, models.RoleViewer}
	WriteRoles = []models.UserRole{models.RoleOwner, models.RoleAdmin, models.RoleMember}
)

// RequireRoles rejects callers whose token role is not in roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
