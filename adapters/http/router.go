package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/pkg/auth"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

type Handlers struct {
	Video  *VideoHandler
	Stream *StreamHandler
	Events *EventsHandler

	// ServeThumbnails is set when thumbnails are kept on local disk.
	ServeThumbnails bool
}

func NewRouter(h Handlers, jwtSvc *auth.JWTService, log logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), ErrorMiddleware(log))

	authMiddleware := AuthMiddleware(jwtSvc, log)
	optionalAuth := OptionalAuthMiddleware(jwtSvc, log)
	moderators := RequireRoles(user.RoleAdmin, user.RoleEditor)

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })

		api.GET("/auth/me", authMiddleware, Me)
		api.GET("/events", optionalAuth, h.Events.Stream)
		if h.ServeThumbnails {
			api.GET("/thumbnails/:id", optionalAuth, h.Stream.Thumbnail)
		}

		public := api.Group("/videos")
		public.Use(optionalAuth)
		{
			public.GET("", h.Video.List)
			public.GET("/:id", h.Video.Get)
			public.GET("/:id/stream", h.Stream.Stream)
		}

		private := api.Group("/videos")
		private.Use(authMiddleware)
		{
			private.POST("", moderators, h.Video.Upload)
			private.PATCH("/:id", h.Video.Update)
			private.PATCH("/:id/status", moderators, h.Video.ChangeStatus)
			private.PATCH("/:id/vote", h.Video.Vote)
			private.DELETE("/:id", moderators, h.Video.Delete)
			private.POST("/:id/sync", h.Video.Sync)
		}
	}

	return router
}
