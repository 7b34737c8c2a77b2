package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/teaminfosharing/tis-server/internal/auth"
	"github.com/teaminfosharing/tis-server/internal/config"
	"github.com/teaminfosharing/tis-server/internal/core"
	"github.com/teaminfosharing/tis-server/internal/files"
	"github.com/teaminfosharing/tis-server/internal/store"
)

// NewServer builds the HTTP server: auth, message/user/flow REST, static
// asset serving and the WebSocket endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, storage *files.Storage, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(authService, logger)
	messageHandlers := NewMessageHandlers(hub.Engine(), st, storage, cfg.MessageHistoryLimit, logger)
	userHandlers := NewUserHandlers(st, authService, logger)
	flowHandlers := NewFlowHandlers(st, logger)

	r.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	r.POST("/api/login", apiHandlers.Login)
	r.Static("/assets", storage.Dir())

	r.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, cfg.ClientQueueSize, logger)))

	api := r.Group("/api")
	api.Use(AuthMiddleware(authService, logger))
	{
		api.POST("/messages", messageHandlers.Send)
		api.GET("/messages", messageHandlers.List)
		api.DELETE("/messages/:id", messageHandlers.Delete)

		admin := api.Group("")
		admin.Use(RequireAdmin(logger))
		{
			admin.GET("/users", userHandlers.List)
			admin.POST("/users", userHandlers.Create)
			admin.PUT("/users/:id", userHandlers.Update)
			admin.DELETE("/users/:id", userHandlers.Delete)

			admin.GET("/flows", flowHandlers.List)
			admin.POST("/flows", flowHandlers.Create)
			admin.PUT("/flows/:id", flowHandlers.Update)
			admin.DELETE("/flows/:id", flowHandlers.Delete)
		}
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
