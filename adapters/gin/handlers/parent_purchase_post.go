package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/powlax/memberkit/adapters/ginutil"
	"github.com/powlax/memberkit/catalog"
	"github.com/powlax/memberkit/purchases"
)

type purchaseBody struct {
	ChildUserID string     `json:"child_user_id"`
	ProductID   string     `json:"product_id"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func HandleParentPurchasePOST(mgr *purchases.Manager, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLPurchasePost) {
			ginutil.TooMany(c)
			return
		}
		parentID := authedUserID(c)
		if parentID == "" {
			ginutil.Unauthorized(c)
			return
		}
		var body purchaseBody
		if err := c.ShouldBindJSON(&body); err != nil {
			ginutil.BadRequest(c, "invalid_body")
			return
		}
		if strings.TrimSpace(body.ChildUserID) == "" || strings.TrimSpace(body.ProductID) == "" {
			ginutil.BadRequest(c, "missing_child_or_product")
			return
		}
		result := mgr.ProcessPurchase(c.Request.Context(), purchases.PurchaseRequest{
			ParentUserID: parentID,
			ChildUserID:  body.ChildUserID,
			ProductID:    catalog.ProductID(body.ProductID),
			ExpiresAt:    body.ExpiresAt,
		})
		if !result.Success {
			c.JSON(http.StatusUnprocessableEntity, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
