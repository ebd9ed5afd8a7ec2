package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/powlax/memberkit/adapters/ginutil"
	"github.com/powlax/memberkit/capabilities"
)

func HandleTeamOverviewGET(engine *capabilities.Engine, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLTeamOverviewGet) {
			ginutil.TooMany(c)
			return
		}
		teamID := strings.TrimSpace(c.Param("id"))
		if teamID == "" {
			ginutil.BadRequest(c, "missing_team_id")
			return
		}
		overview, err := engine.TeamOverview(c.Request.Context(), teamID)
		if err != nil {
			ginutil.ServerErr(c, "failed_to_load_team")
			return
		}
		if overview == nil {
			ginutil.NotFound(c, "team_not_found")
			return
		}
		c.JSON(http.StatusOK, overview)
	}
}
