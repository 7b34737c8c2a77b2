package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/teaminfosharing/tis-server/internal/store"
)

// FlowHandlers provides the admin flow-management surface.
type FlowHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewFlowHandlers creates a new flow handlers instance.
func NewFlowHandlers(st store.Store, logger *zerolog.Logger) *FlowHandlers {
	return &FlowHandlers{store: st, log: logger}
}

// FlowRequest represents the create/update flow request body.
type FlowRequest struct {
	Name       string  `json:"name" binding:"required,min=1,max=64"`
	Recipients []int64 `json:"recipients"`
}

// FlowPayload represents a flow in API responses.
type FlowPayload struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	OwnerID    int64   `json:"owner_id"`
	Recipients []int64 `json:"recipients"`
	CreatedAt  string  `json:"created_at"`
}

// FlowResponse wraps a single flow.
type FlowResponse struct {
	Data FlowPayload `json:"data"`
}

// FlowsResponse wraps a flow listing.
type FlowsResponse struct {
	Data []FlowPayload `json:"data"`
}

func flowToPayload(f *store.Flow) FlowPayload {
	recipients := f.Recipients
	if recipients == nil {
		recipients = []int64{}
	}
	return FlowPayload{
		ID:         f.ID,
		Name:       f.Name,
		OwnerID:    f.OwnerID,
		Recipients: recipients,
		CreatedAt:  f.CreatedAt.Format(time.RFC3339),
	}
}

// List returns all flows.
// GET /api/flows
func (h *FlowHandlers) List(c *gin.Context) {
	flows, err := h.store.ListFlows(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list flows failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	payloads := make([]FlowPayload, 0, len(flows))
	for _, f := range flows {
		payloads = append(payloads, flowToPayload(f))
	}
	c.JSON(http.StatusOK, FlowsResponse{Data: payloads})
}

// Create adds a flow owned by the calling admin.
// POST /api/flows
func (h *FlowHandlers) Create(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req FlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	flow, err := h.store.CreateFlow(c.Request.Context(), &store.Flow{
		Name:       req.Name,
		OwnerID:    ownerID,
		Recipients: req.Recipients,
	})
	if err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("create flow failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, FlowResponse{Data: flowToPayload(flow)})
}

// Update replaces a flow's name and recipient set. Messages already sent
// through the flow keep their creation-time recipient snapshots.
// PUT /api/flows/:id
func (h *FlowHandlers) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid flow id"})
		return
	}

	var req FlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	flow, err := h.store.GetFlowByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "flow not found"})
			return
		}
		h.log.Error().Err(err).Int64("flow_id", id).Msg("load flow failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	flow.Name = req.Name
	flow.Recipients = req.Recipients
	if err := h.store.UpdateFlow(c.Request.Context(), flow); err != nil {
		h.log.Error().Err(err).Int64("flow_id", id).Msg("update flow failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, FlowResponse{Data: flowToPayload(flow)})
}

// Delete removes a flow; users referencing it fall back to no default
// distribution list.
// DELETE /api/flows/:id
func (h *FlowHandlers) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid flow id"})
		return
	}

	if err := h.store.DeleteFlow(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "flow not found"})
			return
		}
		h.log.Error().Err(err).Int64("flow_id", id).Msg("delete flow failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}
