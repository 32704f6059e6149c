// internal/middleware/helpers.go
package middleware

import (
	"tuma-service/internal/domain/tenant"

	"github.com/gin-gonic/gin"
)

// GetTenantID gets the acting tenant from context
func GetTenantID(c *gin.Context) (int64, bool) {
	v, exists := c.Get("tenant_id")
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// MustGetTenantID gets the acting tenant from context or panics
func MustGetTenantID(c *gin.Context) int64 {
	id, exists := GetTenantID(c)
	if !exists {
		panic("tenant_id not found in context")
	}
	return id
}

// GetRole gets the acting role from context, defaulting to merchant
func GetRole(c *gin.Context) tenant.Role {
	v, exists := c.Get("role")
	if !exists {
		return tenant.RoleMerchant
	}
	role, ok := v.(tenant.Role)
	if !ok {
		return tenant.RoleMerchant
	}
	return role
}

// IsSuperAdmin checks if the acting user bypasses entitlement checks
func IsSuperAdmin(c *gin.Context) bool {
	return GetRole(c).IsSuperAdmin()
}
