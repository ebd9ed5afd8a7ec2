package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/powlax/memberkit/adapters/ginutil"
	"github.com/powlax/memberkit/catalog"
	"github.com/powlax/memberkit/purchases"
)

type bulkPurchaseBody struct {
	ChildUserIDs []string `json:"child_user_ids"`
	ProductID    string   `json:"product_id"`
}

func HandleParentPurchaseBulkPOST(mgr *purchases.Manager, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLPurchaseBulkPost) {
			ginutil.TooMany(c)
			return
		}
		parentID := authedUserID(c)
		if parentID == "" {
			ginutil.Unauthorized(c)
			return
		}
		var body bulkPurchaseBody
		if err := c.ShouldBindJSON(&body); err != nil {
			ginutil.BadRequest(c, "invalid_body")
			return
		}
		if len(body.ChildUserIDs) == 0 || strings.TrimSpace(body.ProductID) == "" {
			ginutil.BadRequest(c, "missing_children_or_product")
			return
		}
		outcome := mgr.BulkPurchase(c.Request.Context(), parentID, body.ChildUserIDs, catalog.ProductID(body.ProductID))
		c.JSON(http.StatusOK, outcome)
	}
}
