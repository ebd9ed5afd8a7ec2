package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/powlax/memberkit/adapters/ginutil"
	"github.com/powlax/memberkit/purchases"
)

func HandlePurchaseHistoryGET(mgr *purchases.Manager, rl ginutil.RateLimiter) gin.HandlerFunc {
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
		history, err := mgr.PurchaseHistory(c.Request.Context(), parentID)
		if err != nil {
			ginutil.ServerErr(c, "failed_to_load_history")
			return
		}
		c.JSON(http.StatusOK, gin.H{"purchases": history})
	}
}
