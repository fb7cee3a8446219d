package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/lettre/internal/ws"
)

const (
	// One write every 2 seconds per IP, with a small burst. Domain limits
	// (daily caps, cooldowns) are enforced separately in the engines.
	rateLimitRPS   = 0.5
	rateLimitBurst = 3
)

// SetupRoutes configures all application routes and middleware.
func SetupRoutes(router *gin.Engine, env *Env, hub *ws.Hub, corsOrigin string) {
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	if corsOrigin == "" {
		corsOrigin = "*"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	limiter := NewIPRateLimiter(rate.Limit(rateLimitRPS), rateLimitBurst)
	go func() {
		for {
			time.Sleep(10 * time.Minute)
			limiter.Cleanup()
		}
	}()
	throttled := RateLimitMiddleware(limiter)

	// Public preview links need no identity.
	public := router.Group("/public")
	{
		public.GET("/invites/:token", env.InvitePreview)
		public.GET("/shares/:token", env.SharePreview)
	}

	api := router.Group("/api")
	api.Use(IdentityMiddleware())
	{
		api.POST("/letters", throttled, env.CreateLetter)
		api.GET("/letters/inbox", env.Inbox)
		api.GET("/letters/outbox", env.Outbox)
		api.GET("/letters/:id", env.GetLetter)
		api.PATCH("/letters/:id", env.UpdateLetter)
		api.DELETE("/letters/:id", env.DeleteLetter)
		api.POST("/letters/:id/open", env.OpenLetter)
		api.POST("/letters/:id/hints", env.AttachHints)
		api.POST("/letters/:id/view", env.RecordLockedView)
		api.POST("/letters/:id/invite", env.CreateInvite)
		api.POST("/letters/:id/share", env.CreateShare)

		api.POST("/invites/:token/claim", env.ClaimInvite)
		api.DELETE("/shares/:id", env.RevokeShare)

		api.POST("/connections/requests", throttled, env.SendConnectionRequest)
		api.POST("/connections/requests/:id/respond", env.RespondConnectionRequest)
		api.GET("/connections/requests/incoming", env.ListIncomingRequests)
		api.GET("/connections/requests/outgoing", env.ListOutgoingRequests)
		api.GET("/connections", env.ListConnections)
		api.DELETE("/connections/:userId", env.Unfriend)

		api.POST("/blocks", env.BlockUser)
		api.DELETE("/blocks/:userId", env.UnblockUser)

		api.POST("/thoughts", throttled, env.SendThought)
		api.GET("/thoughts", env.ListThoughts)

		api.GET("/notifications", env.ListNotifications)
		api.POST("/notifications/:id/read", env.MarkNotificationRead)
	}

	router.GET("/ws", IdentityMiddleware(), func(c *gin.Context) {
		ws.ServeWs(hub, CallerID(c), c.Writer, c.Request)
	})
}
