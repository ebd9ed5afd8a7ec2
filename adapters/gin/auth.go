package membergin

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/powlax/memberkit/adapters/ginutil"
)

// AuthRequired verifies an HS256 bearer token and stores its subject claim
// under "auth.user_id". Token issuance belongs to the embedding app; this
// gate only needs the shared secret.
func AuthRequired(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		const prefix = "Bearer "
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, prefix) {
			ginutil.Unauthorized(c)
			c.Abort()
			return
		}
		token, err := jwt.Parse(strings.TrimPrefix(header, prefix), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			ginutil.Unauthorized(c)
			c.Abort()
			return
		}
		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			ginutil.Unauthorized(c)
			c.Abort()
			return
		}
		c.Set("auth.user_id", sub)
		c.Next()
	}
}
