// Package membergin exposes the membership kit over HTTP with gin. Handlers
// are thin: auth, rate limit, call the domain service, encode JSON.
package membergin

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/powlax/memberkit/adapters/gin/handlers"
	"github.com/powlax/memberkit/adapters/ginutil"
	"github.com/powlax/memberkit/capabilities"
	"github.com/powlax/memberkit/purchases"
)

// Config configures the HTTP surface. Engine, Purchases, and JWTSecret are
// required; Limiter is optional.
type Config struct {
	Engine    *capabilities.Engine
	Purchases *purchases.Manager
	JWTSecret []byte
	Limiter   ginutil.RateLimiter
}

// Service registers the membership routes.
type Service struct {
	engine    *capabilities.Engine
	purchases *purchases.Manager
	secret    []byte
	limiter   ginutil.RateLimiter
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("membergin: Config.Engine is required")
	}
	if cfg.Purchases == nil {
		return nil, fmt.Errorf("membergin: Config.Purchases is required")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("membergin: Config.JWTSecret is required")
	}
	return &Service{
		engine:    cfg.Engine,
		purchases: cfg.Purchases,
		secret:    cfg.JWTSecret,
		limiter:   cfg.Limiter,
	}, nil
}

// RegisterAPI mounts all membership routes under /membership. Every route
// requires a bearer token; family routes act for the authenticated parent.
func (s *Service) RegisterAPI(r gin.IRouter) {
	grp := r.Group("/membership", AuthRequired(s.secret))

	grp.GET("/users/:id/capabilities", handlers.HandleUserCapabilitiesGET(s.engine, s.limiter))
	grp.GET("/users/:id/capabilities/:capability", handlers.HandleUserCapabilityCheckGET(s.engine, s.limiter))
	grp.GET("/teams/:id/overview", handlers.HandleTeamOverviewGET(s.engine, s.limiter))

	grp.GET("/family", handlers.HandleFamilyGET(s.purchases, s.limiter))
	grp.GET("/family/eligible-children", handlers.HandleEligibleChildrenGET(s.purchases, s.limiter))
	grp.GET("/family/purchases", handlers.HandlePurchaseHistoryGET(s.purchases, s.limiter))
	grp.POST("/family/purchases", handlers.HandleParentPurchasePOST(s.purchases, s.limiter))
	grp.POST("/family/purchases/bulk", handlers.HandleParentPurchaseBulkPOST(s.purchases, s.limiter))
	grp.DELETE("/family/purchases/:child_id/:product_id", handlers.HandleParentPurchaseDELETE(s.purchases, s.limiter))
}
