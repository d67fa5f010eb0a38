// Package gateway exposes the settlement engine over HTTP. It owns
// authentication, event publishing, journaling and telemetry; every
// ledger decision stays inside the engine.
package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/terminal-bench/launchpad/internal/engine"
	"github.com/terminal-bench/launchpad/internal/journal"
	"github.com/terminal-bench/launchpad/internal/metrics"
	"github.com/terminal-bench/launchpad/internal/oracle"
	"github.com/terminal-bench/launchpad/pkg/messaging"
)

var ErrInvalidToken = errors.New("invalid token")

// Gateway routes HTTP calls into engine operations.
type Gateway struct {
	router    *gin.Engine
	engine    *engine.Engine
	msg       *messaging.Client
	journal   *journal.Journal
	metrics   *metrics.Recorder
	jwtSecret string
}

// Config holds gateway settings.
type Config struct {
	JWTSecret string
}

// Claims carries the caller identity in the token subject.
type Claims struct {
	jwt.RegisteredClaims
}

// New wires a gateway. msg, jrnl and rec may be nil; the corresponding
// side channels are then skipped.
func New(cfg Config, eng *engine.Engine, msg *messaging.Client, jrnl *journal.Journal, rec *metrics.Recorder) *Gateway {
	g := &Gateway{
		router:    gin.Default(),
		engine:    eng,
		msg:       msg,
		journal:   jrnl,
		metrics:   rec,
		jwtSecret: cfg.JWTSecret,
	}
	g.setupRoutes()
	return g
}

// Router exposes the underlying handler for serving and tests.
func (g *Gateway) Router() *gin.Engine {
	return g.router
}

func (g *Gateway) setupRoutes() {
	g.router.Use(g.correlationMiddleware())

	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := g.router.Group("/api/v1", g.authMiddleware())
	{
		v1.POST("/init", g.initLaunchpad)

		admin := v1.Group("/admin")
		{
			admin.GET("", g.getAdmins)
			admin.POST("/signers", g.setAdminSigners)
			admin.POST("/fees", g.setFees)
			admin.POST("/permissions", g.setPermissions)
			admin.POST("/oracle-config", g.setOracleConfig)
			admin.POST("/custodies", g.initCustody)
			admin.POST("/fees/withdraw", g.withdrawFees)
			admin.DELETE("/auctions/:name", g.deleteAuction)
			admin.POST("/proposals/:kind/cancel", g.cancelProposal)
		}

		v1.POST("/auctions", g.initAuction)
		v1.GET("/auctions/:name", g.getAuction)
		v1.PUT("/auctions/:name", g.updateAuction)
		v1.POST("/auctions/:name/enable", g.enableAuction)
		v1.POST("/auctions/:name/disable", g.disableAuction)
		v1.POST("/auctions/:name/tokens/add", g.addTokens)
		v1.POST("/auctions/:name/tokens/remove", g.removeTokens)
		v1.POST("/auctions/:name/whitelist/add", g.whitelistAdd)
		v1.POST("/auctions/:name/whitelist/remove", g.whitelistRemove)
		v1.GET("/auctions/:name/price", g.getAuctionPrice)
		v1.GET("/auctions/:name/amount", g.getAuctionAmount)
		v1.POST("/auctions/:name/bids", g.placeBid)
		v1.DELETE("/auctions/:name/bids", g.cancelBid)
		v1.GET("/auctions/:name/bids/:bidder", g.getBid)
		v1.POST("/withdrawals", g.withdrawFunds)
		v1.GET("/custodies/:asset", g.getCustody)
		v1.GET("/sellers/balance", g.getSellerBalance)
	}

	// Price stream does its own auth via query token so browser
	// websocket clients can connect.
	g.router.GET("/ws/auctions/:name", g.streamPrice)
}

// Start serves until the listener fails.
func (g *Gateway) Start(addr string) error {
	return g.router.Run(addr)
}

// Middleware

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := g.verifyToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("caller", caller)
		c.Next()
	}
}

func (g *Gateway) correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// verifyToken authenticates the caller and returns their identity.
func (g *Gateway) verifyToken(tokenString string) (string, error) {
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(g.jwtSecret), nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// IssueToken mints a token for an identity; used by tests and tooling.
func IssueToken(secret, identity string, ttl time.Duration) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// statusFor maps engine failures onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrNotWhitelisted):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoSuchBid):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, engine.ErrAuctionNotOpen),
		errors.Is(err, engine.ErrInventoryNotEmpty),
		errors.Is(err, engine.ErrStaleMismatch):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrInsufficientInventory),
		errors.Is(err, engine.ErrPriceOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, oracle.ErrUnavailable),
		errors.Is(err, oracle.ErrStale),
		errors.Is(err, oracle.ErrLowConfidence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func caller(c *gin.Context) string {
	return c.MustGet("caller").(string)
}
