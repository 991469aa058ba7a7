package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/clarity-chat/internal/chat"
	"github.com/suPer8Hu/clarity-chat/internal/common"
)

type createSessionReq struct {
	Title    string         `json:"title" binding:"max=200"`
	UserID   string         `json:"user_id" binding:"max=255"`
	Metadata map[string]any `json:"metadata"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionReq
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	conv, err := h.Sessions.CreateSession(c.Request.Context(), req.Title, req.UserID, req.Metadata)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidTitle) {
			common.FailFields(c, map[string]string{"title": "must be 1-200 characters"})
			return
		}
		h.internalError(c, err, "create session failed")
		return
	}
	common.OK(c, conv)
}

func (h *Handler) ListSessionMessages(c *gin.Context) {
	sid := c.Param("session_id")
	msgs, err := h.Sessions.ListMessages(c.Request.Context(), sid)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "session not found")
			return
		}
		h.internalError(c, err, "list messages failed")
		return
	}
	common.OK(c, gin.H{
		"session_id": sid,
		"messages":   msgs,
	})
}

type renameSessionReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) RenameSession(c *gin.Context) {
	var req renameSessionReq
	if !bindJSON(c, &req) {
		return
	}

	conv, err := h.Sessions.RenameSession(c.Request.Context(), c.Param("session_id"), req.Title)
	switch {
	case err == nil:
		common.OK(c, conv)
	case errors.Is(err, chat.ErrInvalidTitle):
		common.FailFields(c, map[string]string{"title": "must be 1-200 characters"})
	case errors.Is(err, chat.ErrSessionNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
	default:
		h.internalError(c, err, "rename session failed")
	}
}

func (h *Handler) DeleteSession(c *gin.Context) {
	sid := c.Param("session_id")
	err := h.Sessions.DeleteSession(c.Request.Context(), sid)
	switch {
	case err == nil:
		common.OK(c, gin.H{"session_id": sid, "deleted": true})
	case errors.Is(err, chat.ErrSessionNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
	default:
		h.internalError(c, err, "delete session failed")
	}
}
