package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/common"
	"github.com/suPer8Hu/clarity-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/clarity-chat/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID(log))
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/config", h.PublicConfig)

	// chat
	r.POST("/chat", h.Chat)
	r.POST("/chat/stream", h.ChatStream)
	r.POST("/lead", h.CaptureLead)

	// sessions
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions/:session_id/messages", h.ListSessionMessages)
	r.PATCH("/sessions/:session_id", h.RenameSession)
	r.DELETE("/sessions/:session_id", h.DeleteSession)

	// admin
	r.POST("/admin/login", h.AdminLogin)
	admin := r.Group("/admin")
	admin.Use(middleware.AdminRequired(h.Cfg.JWTSecret))
	admin.POST("/ingest", h.IngestDocument)
	admin.GET("/documents", h.ListDocuments)
	admin.POST("/documents/:id/approve", h.ApproveDocument)
	admin.POST("/documents/:id/archive", h.ArchiveDocument)
	admin.GET("/settings", h.ListSettings)
	admin.PUT("/settings/:key", h.PutSetting)
	admin.POST("/settings/reset", h.ResetSettings)
	return r
}
