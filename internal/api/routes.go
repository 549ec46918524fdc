package api

import (
	"github.com/gin-gonic/gin"

	"github.com/cuepool/backend/internal/admin"
	"github.com/cuepool/backend/internal/api/handlers"
	"github.com/cuepool/backend/internal/config"
	"github.com/cuepool/backend/internal/game"
	"github.com/cuepool/backend/internal/middleware"
	"github.com/cuepool/backend/internal/wallet"
	"github.com/cuepool/backend/internal/ws"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, cfg *config.Config, mgr *game.Manager, ledger *wallet.Ledger, adminSvc *admin.Service, hub *ws.Hub) {
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.WebSocketCORSCheck(cfg))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		// Payment gateway callback: authenticated by entry knowledge, not a
		// player session.
		v1.POST("/wallet/gateway/callback", handlers.GatewayCallback(ledger))

		// Player routes require a session token from the identity service.
		authed := v1.Group("")
		authed.Use(middleware.RequireSession(cfg))
		{
			queue := authed.Group("/queue")
			{
				queue.POST("/join", handlers.JoinQueue(mgr))
				queue.POST("/leave", handlers.LeaveQueue(mgr))
				queue.GET("/status", handlers.QueueStatus(mgr))
			}

			m := authed.Group("/match")
			{
				m.GET("/active", handlers.ActiveMatch(mgr))
				m.GET("/history", handlers.MatchHistory(mgr))
				m.GET("/:id", handlers.GetMatch(mgr))
				m.POST("/:id/score", handlers.ReportScore(mgr))
				m.POST("/:id/end", handlers.EndMatch(mgr))
				m.POST("/:id/cancel", handlers.CancelMatch(mgr))
				m.GET("/:id/ws", ws.ServeMatchWS(hub, mgr))
			}

			authed.GET("/player/stats", handlers.PlayerStats(mgr))

			w := authed.Group("/wallet")
			{
				w.GET("/balance", handlers.GetBalance(ledger))
				w.GET("/history", handlers.WalletHistory(ledger))
				w.POST("/deposit", handlers.RequestDeposit(ledger, cfg))
				w.POST("/withdraw", handlers.RequestWithdrawal(ledger, cfg))
			}
		}

		// Operator console.
		adm := v1.Group("/admin")
		adm.Use(handlers.RequireOperator(adminSvc))
		{
			adm.GET("/summary", handlers.OperatorSummary(adminSvc))
		}
	}
}
