package handler

import (
	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// SetIdentity stores the authenticated caller on the request context.
func SetIdentity(c *gin.Context, id domain.Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the caller set by the auth middleware.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok
}

// caller aborts with 401 when no identity is present.
func caller(c *gin.Context) (domain.Identity, bool) {
	id, ok := IdentityFrom(c)
	if !ok {
		RespondUnauthorized(c, "authentication required")
		return domain.Identity{}, false
	}
	return id, true
}
