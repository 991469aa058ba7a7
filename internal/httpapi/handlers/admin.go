package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/clarity-chat/internal/auth"
	"github.com/suPer8Hu/clarity-chat/internal/common"
	"github.com/suPer8Hu/clarity-chat/internal/knowledge"
	"github.com/suPer8Hu/clarity-chat/internal/settings"
)

const adminTokenTTL = 12 * time.Hour

type loginReq struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) AdminLogin(c *gin.Context) {
	var req loginReq
	if !bindJSON(c, &req) {
		return
	}

	if err := auth.CheckPassword(h.Cfg.AdminPasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrNotConfigured) {
			h.Log.Warn().Msg("admin login attempted without ADMIN_PASSWORD_HASH")
		}
		common.Fail(c, http.StatusUnauthorized, 40101, "invalid credentials")
		return
	}

	token, err := auth.SignJWT("admin", auth.RoleAdmin, h.Cfg.JWTSecret, adminTokenTTL)
	if err != nil {
		h.internalError(c, err, "sign admin token failed")
		return
	}
	common.OK(c, gin.H{
		"token":      token,
		"expires_in": int(adminTokenTTL.Seconds()),
	})
}

type ingestReq struct {
	Title         string         `json:"title" binding:"required,max=255"`
	Content       string         `json:"content" binding:"required"`
	SourceURL     string         `json:"source_url" binding:"max=1024"`
	SourceType    string         `json:"source_type" binding:"max=32"`
	PublishedDate string         `json:"published_date"`
	Metadata      map[string]any `json:"metadata"`
}

func parseDate(s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, true
		}
	}
	return nil, false
}

func (h *Handler) IngestDocument(c *gin.Context) {
	var req ingestReq
	if !bindJSON(c, &req) {
		return
	}
	published, ok := parseDate(req.PublishedDate)
	if !ok {
		common.FailFields(c, map[string]string{"published_date": "must be YYYY-MM-DD"})
		return
	}

	doc, chunks, err := h.Docs.Ingest(c.Request.Context(), knowledge.IngestRequest{
		Title:         req.Title,
		Content:       req.Content,
		SourceURL:     req.SourceURL,
		SourceType:    req.SourceType,
		PublishedDate: published,
		Metadata:      req.Metadata,
	})
	if err != nil {
		if errors.Is(err, knowledge.ErrEmptyDocument) {
			common.FailFields(c, map[string]string{"title": "is required", "content": "is required"})
			return
		}
		h.internalError(c, err, "ingest document failed")
		return
	}
	common.OK(c, gin.H{
		"document": doc,
		"chunks":   chunks,
	})
}

func (h *Handler) ListDocuments(c *gin.Context) {
	status := knowledge.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		common.FailFields(c, map[string]string{"status": "must be draft, approved or archived"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	docs, err := h.Docs.List(c.Request.Context(), status, limit)
	if err != nil {
		h.internalError(c, err, "list documents failed")
		return
	}
	common.OK(c, gin.H{"documents": docs})
}

func (h *Handler) ApproveDocument(c *gin.Context) {
	h.setDocumentStatus(c, h.Docs.Approve)
}

func (h *Handler) ArchiveDocument(c *gin.Context) {
	h.setDocumentStatus(c, h.Docs.Archive)
}

func (h *Handler) setDocumentStatus(c *gin.Context, apply func(context.Context, uint64) error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusNotFound, 40402, "document not found")
		return
	}
	if err := apply(c.Request.Context(), id); err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "document not found")
			return
		}
		h.internalError(c, err, "update document status failed")
		return
	}
	common.OK(c, gin.H{"id": id})
}

func (h *Handler) ListSettings(c *gin.Context) {
	all, err := h.Settings.All(c.Request.Context())
	if err != nil {
		h.internalError(c, err, "list settings failed")
		return
	}
	common.OK(c, gin.H{"settings": all})
}

type putSettingReq struct {
	Value       json.RawMessage `json:"value"`
	Type        string          `json:"type" binding:"omitempty,oneof=string number boolean json"`
	Description string          `json:"description"`
}

func (h *Handler) PutSetting(c *gin.Context) {
	var req putSettingReq
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Value) == 0 || string(req.Value) == "null" {
		common.FailFields(c, map[string]string{"value": "is required"})
		return
	}
	var value any
	if err := json.Unmarshal(req.Value, &value); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	row, err := h.Settings.Set(c.Request.Context(), c.Param("key"), value, settings.ValueType(req.Type), req.Description)
	switch {
	case err == nil:
		common.OK(c, gin.H{"key": row.Key, "value": value, "type": row.Type})
	case errors.Is(err, settings.ErrInvalidType):
		common.FailFields(c, map[string]string{"value": "does not match type"})
	case errors.Is(err, settings.ErrUnknownKey):
		common.FailFields(c, map[string]string{"key": "is required"})
	default:
		h.internalError(c, err, "save setting failed")
	}
}

func (h *Handler) ResetSettings(c *gin.Context) {
	if err := h.Settings.ResetToDefaults(c.Request.Context()); err != nil {
		h.internalError(c, err, "reset settings failed")
		return
	}
	h.ListSettings(c)
}
