package handler

import (
	"freight-commission-ledger/internal/adapter/http/middleware"
	"freight-commission-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Ledger         ports.CommissionLedger
	OfferSvc       ports.OfferService
	ShipmentSvc    ports.ShipmentService
	TokenSvc       ports.TokenService
	RateLimiter    ports.RateLimiter // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	CurrencyScale  int32
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check verifies storage and Redis
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if a limiter is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	offerHandler := NewOfferHandler(deps.OfferSvc, deps.ShipmentSvc)
	offers := v1.Group("/offers")
	{
		offers.POST("", rl("offers_create"), offerHandler.CreateOffer)
		offers.GET("/:id", rl("offers_respond"), offerHandler.GetOffer)
		offers.POST("/:id/accept", rl("offers_respond"), offerHandler.AcceptOffer)
		offers.POST("/:id/reject", rl("offers_respond"), offerHandler.RejectOffer)
		offers.POST("/:id/cancel", rl("offers_respond"), offerHandler.CancelOffer)
	}

	walletHandler := NewWalletHandler(deps.Ledger, deps.CurrencyScale)
	wallets := v1.Group("/wallets/me")
	{
		wallets.GET("", rl("wallets"), walletHandler.GetWallet)
		wallets.GET("/transactions", rl("wallets"), walletHandler.ListTransactions)
	}

	// Funding comes from platform operators, never from the account holder.
	operator := v1.Group("/operator", middleware.RequireRole(ports.RoleOperator))
	{
		operator.POST("/wallets/:id/deposit", rl("wallets_deposit"), walletHandler.Deposit)
	}

	shipmentHandler := NewShipmentHandler(deps.ShipmentSvc)
	shipments := v1.Group("/shipments")
	{
		shipments.POST("", rl("shipments"), shipmentHandler.CreateShipment)
		shipments.GET("/:id", rl("shipments"), shipmentHandler.GetShipment)
	}

	return r
}
