package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/userauth"
)

// ClaimsKey is the gin context key holding *userauth.AccessClaims.
const ClaimsKey = "userauth.claims"

// RequireAccess is Guard for gin. Claims are stored under ClaimsKey and on the
// request context.
func RequireAccess(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			abortUnauthorized(c)
			return
		}
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c)
			return
		}
		claims, err := v.ValidateAccess(c.Request.Context(), token)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(ClaimsKey, claims)
		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// RequireRole must run after RequireAccess. It answers 403 unless the claims
// carry one of roles.
func RequireRole(roles ...userauth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		for _, role := range roles {
			if claims.HasRole(role) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

// Claims returns the claims RequireAccess stored on c.
func Claims(c *gin.Context) (*userauth.AccessClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*userauth.AccessClaims)
	return claims, ok && claims != nil
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
}
