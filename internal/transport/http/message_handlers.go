package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/teaminfosharing/tis-server/internal/core"
	"github.com/teaminfosharing/tis-server/internal/files"
	"github.com/teaminfosharing/tis-server/internal/proto"
	"github.com/teaminfosharing/tis-server/internal/store"
)

// MessageHandlers provides the HTTP message surface. The send endpoint is the
// file-upload twin of the socket send; both converge on the fan-out engine.
type MessageHandlers struct {
	engine       *core.FanoutEngine
	store        store.Store
	files        *files.Storage
	historyLimit int
	log          *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(engine *core.FanoutEngine, st store.Store, storage *files.Storage, historyLimit int, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		engine:       engine,
		store:        st,
		files:        storage,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// MessageResponse wraps a stored message.
type MessageResponse struct {
	Data proto.MessagePayload `json:"data"`
}

// MessagesResponse wraps a message listing.
type MessagesResponse struct {
	Data []proto.MessagePayload `json:"data"`
}

// Send accepts a multipart message with an optional file attachment and runs
// the identical fan-out as the socket send.
// POST /api/messages
func (h *MessageHandlers) Send(c *gin.Context) {
	senderID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	draft := core.MessageDraft{
		Type:    store.MessageType(c.PostForm("type")),
		Content: c.PostForm("content"),
	}
	if !draft.Type.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unrecognized message type"})
		return
	}

	var replyTo *int64
	if raw := c.Query("reply_to"); raw != "" && raw != "false" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid reply_to"})
			return
		}
		replyTo = &id
	}

	if fileHeader, err := c.FormFile("file"); err == nil && fileHeader != nil {
		f, err := fileHeader.Open()
		if err != nil {
			h.log.Error().Err(err).Msg("open uploaded file")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		defer f.Close()

		url, _, err := h.files.Save(fileHeader.Filename, f)
		if err != nil {
			h.log.Error().Err(err).Msg("store uploaded file")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		draft.FileURL = url
		draft.FileName = fileHeader.Filename
	}

	msg, err := h.engine.Send(c.Request.Context(), senderID, draft, replyTo)
	if err != nil {
		h.log.Error().Err(err).Int64("sender_id", senderID).Msg("http send failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "something went wrong"})
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Data: messageToPayload(msg)})
}

// List returns the most recent messages for the initial chat render.
// GET /api/messages
func (h *MessageHandlers) List(c *gin.Context) {
	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	messages, err := h.store.ListMessages(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list messages failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	payloads := make([]proto.MessagePayload, 0, len(messages))
	for _, m := range messages {
		payloads = append(payloads, messageToPayload(m))
	}
	c.JSON(http.StatusOK, MessagesResponse{Data: payloads})
}

// Delete soft-deletes a message; side effects match the socket delete.
// DELETE /api/messages/:id
func (h *MessageHandlers) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	if _, err := h.engine.Delete(c.Request.Context(), id); err != nil {
		var ce *core.CoreError
		if errors.As(err, &ce) && ce.Code == core.ErrCodeNotFound {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Int64("message_id", id).Msg("http delete failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}
