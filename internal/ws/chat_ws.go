package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"class-chat-service/internal/middleware"
	"class-chat-service/internal/models"
	"class-chat-service/internal/observability"
)

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// ChatWebSocketHandler upgrades live channel connections.
type ChatWebSocketHandler struct {
	hub      *Hub
	auth     Authenticator
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler. An empty
// allowedOrigins accepts any origin.
func NewChatWebSocketHandler(hub *Hub, auth Authenticator, allowedOrigins []string, logger *zap.Logger) *ChatWebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &ChatWebSocketHandler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		logger: logger,
	}
}

// Handle authenticates the caller, upgrades the connection and serves it
// until it closes. Rooms are joined afterwards with join-class-chat.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("class-chat-service/ws").Start(c.Request.Context(), "ws.handshake")

	token := middleware.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	identity, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		span.End()
		if !errors.Is(err, models.ErrInvalidToken) {
			h.logger.Warn("identity provider failed", zap.Error(err))
		}
		c.JSON(middleware.AuthFailureStatus(err))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	if requestID == "" {
		requestID = newConnID()
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.End()

	// the connection outlives the handshake span; keep only the request id
	connCtx := observability.WithRequestID(context.WithoutCancel(c.Request.Context()), requestID)
	client := NewClient(h.hub, conn, identity, info)
	if err := h.hub.Register(connCtx, client); err != nil {
		h.logger.Warn("hub rejected connection", zap.Error(err))
		conn.Close()
		return
	}

	observability.IncWSActive()
	observability.IncWSEvent("lifecycle", "ws_connect")
	publishWSEvent(connCtx, observability.RoutingWSConnected, "ws_connect", info, nil)
	client.logger.Info("live channel connected", zap.String("ip", info.IP))

	go client.WritePump()
	client.ReadPump(connCtx)

	h.hub.Disconnect(client)
	observability.DecWSActive()
	observability.IncWSEvent("lifecycle", "ws_disconnect")
	publishWSEvent(connCtx, observability.RoutingWSDisconnected, "ws_disconnect", info, nil)
	client.logger.Info("live channel disconnected", zap.Duration("duration", time.Since(info.ConnectedAt)))
}
