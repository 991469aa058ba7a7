package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/clarity-chat/internal/chat"
	"github.com/suPer8Hu/clarity-chat/internal/common"
)

type chatReq struct {
	SessionID string         `json:"session_id" binding:"required,max=64"`
	Message   string         `json:"message" binding:"required"`
	UserID    string         `json:"user_id" binding:"max=255"`
	Metadata  map[string]any `json:"metadata"`
}

func (r *chatReq) normalize() map[string]string {
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.UserID = strings.TrimSpace(r.UserID)
	fields := map[string]string{}
	if r.SessionID == "" {
		fields["session_id"] = "is required"
	} else if len(r.SessionID) > 64 {
		fields["session_id"] = "is too long"
	}
	if strings.TrimSpace(r.Message) == "" {
		fields["message"] = "is required"
	}
	return fields
}

func (r chatReq) turn(files []chat.Attachment) chat.TurnRequest {
	return chat.TurnRequest{
		SessionID: r.SessionID,
		Message:   r.Message,
		UserID:    r.UserID,
		Metadata:  r.Metadata,
		Files:     files,
	}
}

// Chat runs a turn and answers with the collected reply.
func (h *Handler) Chat(c *gin.Context) {
	var req chatReq
	if !bindJSON(c, &req) {
		return
	}
	if fields := req.normalize(); len(fields) > 0 {
		common.FailFields(c, fields)
		return
	}

	res, err := h.Turns.Reply(c.Request.Context(), req.turn(nil))
	if err != nil {
		if errors.Is(err, chat.ErrTurnFailed) {
			common.Fail(c, http.StatusInternalServerError, 50001, chat.GenericFailure)
			return
		}
		h.internalError(c, err, "chat turn failed")
		return
	}
	common.OK(c, res)
}

// ChatStream runs a turn and relays its frames as server-sent events. It
// accepts multipart forms (with files) and plain JSON bodies.
func (h *Handler) ChatStream(c *gin.Context) {
	var (
		req     chatReq
		uploads []*multipart.FileHeader
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		form, err := c.MultipartForm()
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid form")
			return
		}
		req.SessionID = formValue(form, "session_id")
		req.Message = formValue(form, "message")
		req.UserID = formValue(form, "user_id")
		uploads = append(form.File["files"], form.File["files[]"]...)
	} else if !bindJSON(c, &req) {
		return
	}
	if fields := req.normalize(); len(fields) > 0 {
		common.FailFields(c, fields)
		return
	}

	for _, fh := range uploads {
		if err := chat.CheckFileSize(fh.Filename, fh.Size, h.Cfg.MaxUploadBytes); err != nil {
			sse, ok := startSSE(c)
			if ok {
				sse.send(chat.EventError, chat.ErrorEvent(err.Error()))
			}
			return
		}
	}

	files := make([]chat.Attachment, 0, len(uploads))
	for _, fh := range uploads {
		att, err := readAttachment(fh)
		if err != nil {
			h.internalError(c, err, "read upload failed")
			return
		}
		files = append(files, att)
	}

	sse, ok := startSSE(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	events := h.Turns.Stream(ctx, req.turn(files))

	// heartbeat ticker (keeps proxies from closing idle streams)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			sse.send(ev.Type, ev)

		case <-ticker.C:
			sse.send("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case <-ctx.Done():
			return
		}
	}
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func readAttachment(fh *multipart.FileHeader) (chat.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return chat.Attachment{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return chat.Attachment{}, err
	}
	return chat.DescribeFile(fh.Filename, fh.Header.Get("Content-Type"), data), nil
}

type sseWriter struct {
	c       *gin.Context
	flusher http.Flusher
}

func startSSE(c *gin.Context) (*sseWriter, bool) {
	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"type\":\"error\",\"error\":\"streaming not supported\"}\n\n")
		return nil, false
	}
	return &sseWriter{c: c, flusher: flusher}, true
}

func (w *sseWriter) send(event string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		// last-resort: send a simple error that won't break SSE framing
		fmt.Fprintf(w.c.Writer, "event: error\ndata: {\"type\":\"error\",\"error\":%q}\n\n", chat.GenericFailure)
		w.flusher.Flush()
		return
	}
	if event != "" {
		fmt.Fprintf(w.c.Writer, "event: %s\n", event)
	}
	fmt.Fprintf(w.c.Writer, "data: %s\n\n", b)
	w.flusher.Flush()
}
