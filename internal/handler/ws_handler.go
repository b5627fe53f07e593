package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tripcrew/tripchat/internal/access"
	"github.com/tripcrew/tripchat/internal/auth"
	"github.com/tripcrew/tripchat/internal/config"
	"github.com/tripcrew/tripchat/internal/domain"
	"github.com/tripcrew/tripchat/internal/fabric"
	"github.com/tripcrew/tripchat/internal/hub"
	"github.com/tripcrew/tripchat/internal/repository"
	"github.com/tripcrew/tripchat/internal/service"
	"github.com/tripcrew/tripchat/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler owns the lifecycle of chat websocket connections.
type WSHandler struct {
	service    service.ChatService
	fab        fabric.Fabric
	repo       repository.MessageRepository
	validator  auth.TokenValidator
	membership access.Membership
	wsCfg      config.WebSocketConfig
}

func NewWSHandler(
	svc service.ChatService,
	fab fabric.Fabric,
	repo repository.MessageRepository,
	validator auth.TokenValidator,
	membership access.Membership,
	wsCfg config.WebSocketConfig,
) *WSHandler {
	return &WSHandler{
		service:    svc,
		fab:        fab,
		repo:       repo,
		validator:  validator,
		membership: membership,
		wsCfg:      wsCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/chat/:trip_id", h.HandleWebSocket)
}

// HandleWebSocket runs the whole connection: handshake, history, frame loop.
//
// The credential is checked once here; membership is not re-validated for
// the life of the connection, so a mid-session revocation only takes effect
// on reconnect.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	tripID := c.Param("trip_id")
	token := auth.BearerToken(c.Request)

	// The close codes ride on the websocket, so upgrade first; rejected
	// connections are closed before any frame is exchanged.
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.L().Warn().Err(err).Str(log.FieldTripID, tripID).Msg("websocket upgrade failed")
		return
	}

	identity, err := h.validator.Validate(c.Request.Context(), token)
	if err != nil {
		log.L().Warn().Err(err).Str(log.FieldTripID, tripID).Msg("unauthenticated websocket connection attempt")
		hub.Reject(conn, hub.CloseUnauthorized, "unauthorized", h.wsCfg.WriteWait)
		return
	}

	logger := log.L().With().
		Str(log.FieldUserID, identity.ID).
		Str(log.FieldUserEmail, identity.Email).
		Str(log.FieldTripID, tripID).
		Logger()

	// The request context dies with the upgrade; the connection gets its
	// own, carrying the connection-scoped logger.
	ctx := log.WithLogger(context.Background(), logger)

	member, err := h.membership.IsMember(ctx, identity.ID, tripID)
	if err != nil || !member {
		logger.Warn().Msg("websocket connection attempt without trip membership")
		hub.Reject(conn, hub.CloseForbidden, "forbidden", h.wsCfg.WriteWait)
		return
	}

	room, err := h.repo.EnsureRoom(ctx, tripID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to ensure chat room")
		hub.Reject(conn, websocket.CloseInternalServerErr, "internal error", h.wsCfg.WriteWait)
		return
	}

	sub, err := h.fab.Subscribe(ctx, room.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to subscribe to room")
		hub.Reject(conn, websocket.CloseInternalServerErr, "internal error", h.wsCfg.WriteWait)
		return
	}

	client := hub.NewClient(uuid.New().String(), conn, *identity, h.wsCfg)
	client.TripID = tripID
	client.RoomID = room.ID

	logger = logger.With().Str(log.FieldClientID, client.ID).Logger()
	ctx = log.WithLogger(ctx, logger)
	logger.Info().Str(log.FieldRoomID, room.ID).Msg("client connected to chat room")

	go client.WritePump()

	// History goes out before any fabric delivery starts. The subscription
	// is already open, so events published while history loads sit in the
	// subscription buffer and follow the history frame.
	h.sendHistory(ctx, client, room.ID)

	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		for event := range sub.Events() {
			h.service.Deliver(client, event)
		}
	}()

	client.ReadPump(func(data []byte) {
		h.service.HandleFrame(ctx, client, data)
	})

	// Disconnect: release the fabric subscription unconditionally, then
	// stop the pumps once the delivery loop has drained.
	sub.Close()
	<-delivered
	close(client.Send)
	logger.Info().Str(log.FieldRoomID, room.ID).Msg("client disconnected from chat room")
}

// sendHistory sends the one message_history frame a fresh connection gets.
func (h *WSHandler) sendHistory(ctx context.Context, client *hub.Client, roomID string) {
	messages, err := h.service.History(ctx, roomID)
	if err != nil {
		// The frame still goes out; the client resyncs via REST if needed.
		log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to load message history")
		messages = nil
	}
	client.SendFrame(domain.NewMessageHistoryFrame(messages))
}
