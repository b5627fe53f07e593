package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tripcrew/tripchat/internal/access"
	"github.com/tripcrew/tripchat/internal/auth"
	"github.com/tripcrew/tripchat/internal/repository"
	"github.com/tripcrew/tripchat/pkg/log"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// APIResponse is the envelope for REST responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HTTPHandler serves the REST fallback for message history, used when the
// websocket is unavailable.
type HTTPHandler struct {
	repo       repository.MessageRepository
	validator  auth.TokenValidator
	membership access.Membership
}

func NewHTTPHandler(repo repository.MessageRepository, validator auth.TokenValidator, membership access.Membership) *HTTPHandler {
	return &HTTPHandler{
		repo:       repo,
		validator:  validator,
		membership: membership,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/trips/:trip_id/chat/messages", h.GetMessages)
	}

	r.GET("/health", h.HealthCheck)
}

// GetMessages returns the recent messages of a trip's chat room, ascending.
// Same credential and membership rules as the websocket handshake.
func (h *HTTPHandler) GetMessages(c *gin.Context) {
	tripID := c.Param("trip_id")

	identity, err := h.validator.Validate(c.Request.Context(), auth.BearerToken(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, APIResponse{Success: false, Error: "authentication required"})
		return
	}

	member, err := h.membership.IsMember(c.Request.Context(), identity.ID, tripID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{Success: false, Error: "failed to check trip membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, APIResponse{Success: false, Error: "you must be a member of this trip to access its chat room"})
		return
	}

	limit := defaultHistoryLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, APIResponse{Success: false, Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
	}

	room, err := h.repo.EnsureRoom(c.Request.Context(), tripID)
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Str(log.FieldTripID, tripID).Msg("failed to ensure chat room")
		c.JSON(http.StatusInternalServerError, APIResponse{Success: false, Error: "failed to load chat room"})
		return
	}

	messages, err := h.repo.Recent(c.Request.Context(), room.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{Success: false, Error: "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, APIResponse{Success: true, Data: gin.H{"messages": messages}})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
