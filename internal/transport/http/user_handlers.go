package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/teaminfosharing/tis-server/internal/auth"
	"github.com/teaminfosharing/tis-server/internal/proto"
	"github.com/teaminfosharing/tis-server/internal/store"
)

// UserHandlers provides the admin user-management surface.
type UserHandlers struct {
	store       store.Store
	authService *auth.Service
	log         *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.Store, authService *auth.Service, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store:       st,
		authService: authService,
		log:         logger,
	}
}

// CreateUserRequest represents the create user request body.
type CreateUserRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=32"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"display_name" binding:"required"`
	Role        int    `json:"role"`
	FlowID      *int64 `json:"flow_id"`
}

// UpdateUserRequest represents the update user request body.
type UpdateUserRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Role        int    `json:"role"`
	FlowID      *int64 `json:"flow_id"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	Data *proto.UserPayload `json:"data"`
}

// UsersResponse wraps a user listing.
type UsersResponse struct {
	Data []proto.UserPayload `json:"data"`
}

// List returns all users.
// GET /api/users
func (h *UserHandlers) List(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list users failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	payloads := make([]proto.UserPayload, 0, len(users))
	for _, u := range users {
		payloads = append(payloads, *userToPayload(u))
	}
	c.JSON(http.StatusOK, UsersResponse{Data: payloads})
}

// Create adds a team member account.
// POST /api/users
func (h *UserHandlers) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create user request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	role := store.RoleMember
	if req.Role == int(store.RoleAdmin) {
		role = store.RoleAdmin
	}

	user, err := h.authService.CreateUser(c.Request.Context(), req.Username, req.Password, req.DisplayName, role, req.FlowID)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists"})
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Str("username", req.Username).Msg("create user failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, UserResponse{Data: userToPayload(user)})
}

// Update changes display name, role and flow assignment.
// PUT /api/users/:id
func (h *UserHandlers) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", id).Msg("load user failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	user.DisplayName = req.DisplayName
	if req.Role == int(store.RoleAdmin) {
		user.Role = store.RoleAdmin
	} else if req.Role != 0 {
		user.Role = store.RoleMember
	}
	user.FlowID = req.FlowID

	if err := h.store.UpdateUser(c.Request.Context(), user); err != nil {
		h.log.Error().Err(err).Int64("user_id", id).Msg("update user failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, UserResponse{Data: userToPayload(user)})
}

// Delete removes a member account. Messages the user sent keep their
// recipient snapshots.
// DELETE /api/users/:id
func (h *UserHandlers) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	if err := h.store.DeleteUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", id).Msg("delete user failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}
