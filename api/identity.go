package api

import (
	"strings"

	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"

	actorKey = "actor"
)

// IdentityResolver supplies the tenant and user a request runs as.
// Authentication happens upstream; resolved values are trusted.
type IdentityResolver interface {
	Resolve(c *gin.Context) (domain.Actor, error)
}

// HeaderIdentityResolver reads identity set by the authenticating gateway.
type HeaderIdentityResolver struct{}

func (HeaderIdentityResolver) Resolve(c *gin.Context) (domain.Actor, error) {
	actor := domain.Actor{
		TenantID:  strings.TrimSpace(c.GetHeader(HeaderTenantID)),
		UserID:    strings.TrimSpace(c.GetHeader(HeaderUserID)),
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if !actor.Valid() {
		return domain.Actor{}, domain.ErrIdentityRequired
	}
	return actor, nil
}

// Identity resolves the caller once per request and stores it on the context.
func Identity(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := resolver.Resolve(c)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) domain.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(domain.Actor)
	return actor
}
