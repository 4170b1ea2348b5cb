package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/docquiz-backend/internal/http/response"
	"github.com/yungbote/docquiz-backend/internal/platform/ctxutil"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/realtime"
	"github.com/yungbote/docquiz-backend/internal/services"
)

// StreamConfig paces the status stream.
type StreamConfig struct {
	Interval time.Duration
	Budget   time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.Budget <= 0 {
		c.Budget = 30 * time.Second
	}
	return c
}

type DocumentHandler struct {
	log       *logger.Logger
	documents services.DocumentService
	status    services.StatusService
	hub       *realtime.Hub
	maxBytes  int64
	stream    StreamConfig
}

func NewDocumentHandler(
	log *logger.Logger,
	documents services.DocumentService,
	status services.StatusService,
	hub *realtime.Hub,
	maxBytes int64,
	stream StreamConfig,
) *DocumentHandler {
	return &DocumentHandler{
		log:       log.With("handler", "DocumentHandler"),
		documents: documents,
		status:    status,
		hub:       hub,
		maxBytes:  maxBytes,
		stream:    stream.withDefaults(),
	}
}

type submitResponse struct {
	DocumentID      uuid.UUID `json:"document_id"`
	ProcessingToken uuid.UUID `json:"processing_token"`
	Status          string    `json:"status"`
}

// POST /api/documents
func (h *DocumentHandler) Submit(c *gin.Context) {
	if h.maxBytes > 0 {
		// Room for the multipart framing around the file itself.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", err)
			return
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_upload", fmt.Errorf("multipart field \"file\" is required: %w", err))
		return
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large",
			fmt.Errorf("file is %d bytes; limit is %d", fh.Size, h.maxBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_upload", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_upload", err)
		return
	}

	res, err := h.documents.Submit(c.Request.Context(), services.SubmitInput{
		OwnerID:  ctxutil.OwnerID(c.Request.Context()),
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}

	code := http.StatusOK
	switch {
	case res.Created:
		code = http.StatusCreated
	case res.Restarted:
		code = http.StatusAccepted
	}
	c.JSON(code, submitResponse{
		DocumentID:      res.Document.ID,
		ProcessingToken: res.Job.ID,
		Status:          res.Document.Status,
	})
}

// GET /api/documents/:id/status
func (h *DocumentHandler) Status(c *gin.Context) {
	id, ok := parseID(c, "invalid_document_id")
	if !ok {
		return
	}
	payload, err := h.status.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, payload)
}

// GET /api/documents/:id/status/stream
//
// Sends the status payload every interval, and immediately on a pushed
// change, until the document is terminal or the budget runs out. The stream
// always ends with a keepalive event; clients reconnect or poll after that.
func (h *DocumentHandler) StatusStream(c *gin.Context) {
	id, ok := parseID(c, "invalid_document_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	payload, err := h.status.Get(ctx, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var pushed <-chan realtime.Message
	if h.hub != nil {
		client := h.hub.NewClient()
		h.hub.Subscribe(client, realtime.DocumentChannel(id))
		defer h.hub.Close(client)
		pushed = client.Outbound
	}

	ticker := time.NewTicker(h.stream.Interval)
	defer ticker.Stop()
	budget := time.NewTimer(h.stream.Budget)
	defer budget.Stop()

	for {
		if err := writeEvent(w, "", payload); err != nil {
			h.log.Debug("status stream write failed", "document_id", id, "error", err)
			return
		}
		if payload.Terminal() {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-budget.C:
			writeKeepalive(w)
			return
		case <-ticker.C:
		case _, open := <-pushed:
			if !open {
				pushed = nil
			}
		}
		next, err := h.status.Get(ctx, id)
		if err != nil {
			h.log.Warn("status reload failed", "document_id", id, "error", err)
			writeKeepalive(w)
			return
		}
		payload = next
	}
	writeKeepalive(w)
}

func writeEvent(w gin.ResponseWriter, event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func writeKeepalive(w gin.ResponseWriter) {
	_, _ = io.WriteString(w, "event: keepalive\ndata: ping\n\n")
	w.Flush()
}

func parseID(c *gin.Context, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, code, err)
		return uuid.Nil, false
	}
	return id, true
}
