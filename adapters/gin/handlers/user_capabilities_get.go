package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/powlax/memberkit/adapters/ginutil"
	"github.com/powlax/memberkit/capabilities"
)

func HandleUserCapabilitiesGET(engine *capabilities.Engine, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLCapabilitiesGet) {
			ginutil.TooMany(c)
			return
		}
		userID := strings.TrimSpace(c.Param("id"))
		if userID == "" {
			ginutil.BadRequest(c, "missing_user_id")
			return
		}
		caps, err := engine.UserCapabilities(c.Request.Context(), userID)
		if err != nil {
			ginutil.ServerErr(c, "failed_to_resolve_capabilities")
			return
		}
		c.JSON(http.StatusOK, caps)
	}
}
