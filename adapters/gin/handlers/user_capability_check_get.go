package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/powlax/memberkit/adapters/ginutil"
	"github.com/powlax/memberkit/capabilities"
	"github.com/powlax/memberkit/catalog"
)

func HandleUserCapabilityCheckGET(engine *capabilities.Engine, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLCapabilitiesGet) {
			ginutil.TooMany(c)
			return
		}
		userID := strings.TrimSpace(c.Param("id"))
		cap := strings.TrimSpace(c.Param("capability"))
		if userID == "" || cap == "" {
			ginutil.BadRequest(c, "missing_user_id_or_capability")
			return
		}
		has, err := engine.HasCapability(c.Request.Context(), userID, catalog.Capability(cap))
		if err != nil {
			ginutil.ServerErr(c, "failed_to_resolve_capabilities")
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "capability": cap, "has_capability": has})
	}
}
