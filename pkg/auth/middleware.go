package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/mahaj/bizchat/pkg/apperr"
)

const identityKey = "identity"

// Middleware rejects requests without a valid bearer token and attaches
// the caller's Identity otherwise. onError renders the rejection.
func Middleware(v *Verifier, onError func(c *gin.Context, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := v.Verify(BearerToken(c.Request))
		if err != nil {
			onError(c, apperr.Unauthenticated(err.Error()))
			c.Abort()
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
