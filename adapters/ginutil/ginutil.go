// Package ginutil holds the shared helpers the gin handlers use: JSON error
// responses, the rate limiter interface, and the named buckets.
package ginutil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RateLimiter is satisfied by ratelimit/memory and ratelimit/redis.
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// Named rate-limit buckets.
const (
	RLCapabilitiesGet  = "membership_capabilities_get"
	RLTeamOverviewGet  = "membership_team_overview_get"
	RLFamilyGet        = "membership_family_get"
	RLPurchasePost     = "membership_purchase_post"
	RLPurchaseDelete   = "membership_purchase_delete"
	RLPurchaseBulkPost = "membership_purchase_bulk_post"
)

// AllowNamed rate-limits by authenticated user id, falling back to client
// IP. A nil limiter and limiter errors both fail open.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	key := c.ClientIP()
	if v, ok := c.Get("auth.user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			key = s
		}
	}
	ok, err := rl.AllowNamed(bucket, key)
	if err != nil {
		return true
	}
	return ok
}

func BadRequest(c *gin.Context, code string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": code})
}

func NotFound(c *gin.Context, code string) {
	c.JSON(http.StatusNotFound, gin.H{"error": code})
}

func Unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func TooMany(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}

func ServerErr(c *gin.Context, code string) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": code})
}
