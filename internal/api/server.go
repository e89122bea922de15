// Package api exposes the competition over HTTP and websocket: public
// leaderboard and account views plus JWT-protected operator actions.
package api

import (
	"net/http"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/events"
	"arena-core/internal/monitor"
	"arena-core/pkg/cache"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the arena and the event bus.
type Server struct {
	Router     *gin.Engine
	Bus        *events.Bus
	Arena      *arena.Arena
	Prices     arena.PriceSource
	PriceCache *cache.ShardedPriceCache // optional, adds freshness to /api/prices
	Metrics    *monitor.SystemMetrics
	JWTSecret string
	AdminKey  string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	Symbols         []string
	ReferenceSymbol string
	TickInterval    time.Duration
	Version         string
}

// NewServer builds the router with the full middleware stack and routes.
func NewServer(bus *events.Bus, a *arena.Arena, prices arena.PriceSource, metrics *monitor.SystemMetrics, meta SystemMeta, jwtSecret, adminKey string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		Arena:     a,
		Prices:    prices,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		AdminKey:  adminKey,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/system/metrics", s.getSystemMetrics)
		api.GET("/prices", s.getPrices)
		api.GET("/editions", s.listEditions)

		api.POST("/auth/login", s.login)

		ed := api.Group("/editions/:edition")
		{
			ed.GET("/leaderboard", s.getLeaderboard)
			ed.GET("/trades", s.getEditionTrades)
			ed.GET("/repairs", s.getRepairs)
			ed.GET("/accounts/:id", s.getAccount)
			ed.GET("/accounts/:id/positions", s.getPositions)
			ed.GET("/accounts/:id/trades", s.getAccountTrades)
			ed.GET("/accounts/:id/history", s.getHistory)
			ed.GET("/accounts/:id/orders", s.getOrders)
		}

		// Operator actions
		protected := api.Group("/editions/:edition")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/accounts/:id/intent", s.submitIntent)
			protected.POST("/accounts/:id/reconcile", s.reconcile)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start runs the HTTP server.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
