package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/powlax/memberkit/adapters/ginutil"
	"github.com/powlax/memberkit/purchases"
)

// authedUserID reads the user id the auth middleware stored.
func authedUserID(c *gin.Context) string {
	if v, ok := c.Get("auth.user_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func HandleFamilyGET(mgr *purchases.Manager, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLFamilyGet) {
			ginutil.TooMany(c)
			return
		}
		parentID := authedUserID(c)
		if parentID == "" {
			ginutil.Unauthorized(c)
			return
		}
		account, err := mgr.FamilyAccount(c.Request.Context(), parentID)
		if err != nil {
			ginutil.ServerErr(c, "failed_to_load_family")
			return
		}
		c.JSON(http.StatusOK, account)
	}
}
