package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/chat"
	"github.com/suPer8Hu/clarity-chat/internal/common"
	"github.com/suPer8Hu/clarity-chat/internal/config"
	"github.com/suPer8Hu/clarity-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/clarity-chat/internal/knowledge"
	"github.com/suPer8Hu/clarity-chat/internal/leads"
	"github.com/suPer8Hu/clarity-chat/internal/settings"
)

type Handler struct {
	Cfg      config.Config
	Turns    *chat.Orchestrator
	Sessions *chat.Service
	Leads    *leads.Service
	Settings *settings.Store
	Docs     *knowledge.Service
	Log      zerolog.Logger
}

type Deps struct {
	Turns    *chat.Orchestrator
	Sessions *chat.Service
	Leads    *leads.Service
	Settings *settings.Store
	Docs     *knowledge.Service
}

func NewHandler(cfg config.Config, d Deps, log zerolog.Logger) *Handler {
	return &Handler{
		Cfg:      cfg,
		Turns:    d.Turns,
		Sessions: d.Sessions,
		Leads:    d.Leads,
		Settings: d.Settings,
		Docs:     d.Docs,
		Log:      log,
	}
}

func (h *Handler) internalError(c *gin.Context, err error, msg string) {
	h.Log.Error().
		Err(err).
		Str(middleware.RequestIDKey, middleware.RequestIDFrom(c)).
		Str("route", c.FullPath()).
		Msg(msg)
	common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// PublicConfig exposes the widget settings the chat client renders.
func (h *Handler) PublicConfig(c *gin.Context) {
	common.OK(c, h.Settings.Public(c.Request.Context()))
}
