package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/clarity-chat/internal/chat"
	"github.com/suPer8Hu/clarity-chat/internal/common"
	"github.com/suPer8Hu/clarity-chat/internal/leads"
)

const maxUserAgent = 500

// CaptureLead records contact details and consent for a conversation.
// Client address and user agent always come from the request itself.
func (h *Handler) CaptureLead(c *gin.Context) {
	var req leads.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()
	if len(req.UserAgent) > maxUserAgent {
		req.UserAgent = req.UserAgent[:maxUserAgent]
	}

	res, err := h.Leads.Capture(c.Request.Context(), req)
	if err != nil {
		var verr *leads.ValidationError
		switch {
		case errors.As(err, &verr):
			common.FailFields(c, verr.Fields)
		case errors.Is(err, chat.ErrSessionNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "session not found")
		default:
			h.internalError(c, err, "lead capture failed")
		}
		return
	}
	common.OK(c, res)
}
