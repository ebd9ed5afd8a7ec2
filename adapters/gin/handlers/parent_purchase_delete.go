package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/powlax/memberkit/adapters/ginutil"
	"github.com/powlax/memberkit/catalog"
	"github.com/powlax/memberkit/purchases"
)

func HandleParentPurchaseDELETE(mgr *purchases.Manager, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLPurchaseDelete) {
			ginutil.TooMany(c)
			return
		}
		parentID := authedUserID(c)
		if parentID == "" {
			ginutil.Unauthorized(c)
			return
		}
		childID := strings.TrimSpace(c.Param("child_id"))
		productID := strings.TrimSpace(c.Param("product_id"))
		if childID == "" || productID == "" {
			ginutil.BadRequest(c, "missing_child_or_product")
			return
		}
		result := mgr.CancelPurchase(c.Request.Context(), parentID, childID, catalog.ProductID(productID))
		if !result.Success {
			c.JSON(http.StatusUnprocessableEntity, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
