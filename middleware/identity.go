package middleware

import (
	"log"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/auth"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
)

// identityKey is the gin context key under which the resolved identity is stored.
const identityKey = "identity"

// Identity resolves the acting identity for every request. A valid bearer
// token yields an account-scoped identity; everything else falls back to a
// device-scoped anonymous identity taken from the X-Device-ID header (a fresh
// one is minted when the header is absent). Resolution never fails: the
// absence of a session always means Anonymous.
func Identity(authClient auth.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token := strings.TrimPrefix(header, "Bearer ")
			accountID, err := authClient.ResolveAccount(c.Request.Context(), token)
			if err == nil && accountID != "" {
				c.Set(identityKey, models.Identity{AccountID: accountID})
				c.Next()
				return
			}
			log.Printf("WARN: [Identity] Bearer token rejected, falling back to anonymous: %v", err)
		}

		deviceID := c.GetHeader("X-Device-ID")
		if deviceID == "" {
			deviceID = uuid.NewString()
		}
		c.Set(identityKey, models.Identity{DeviceID: deviceID})
		c.Next()
	}
}

// IdentityFrom returns the identity resolved for the current request.
func IdentityFrom(c *gin.Context) models.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{DeviceID: uuid.NewString()}
	}
	identity, _ := v.(models.Identity)
	return identity
}
