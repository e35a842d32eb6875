package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"class-chat-service/internal/chat"
	"class-chat-service/internal/models"
	"class-chat-service/internal/observability"
)

// Config holds live channel tuning.
type Config struct {
	WriteWait         time.Duration
	PongWait          time.Duration
	PingInterval      time.Duration
	MaxMessageSize    int64
	SendBuffer        int
	MessagesPerSecond float64
	Burst             int
}

func DefaultConfig() Config {
	return Config{
		WriteWait:         10 * time.Second,
		PongWait:          60 * time.Second,
		PingInterval:      54 * time.Second,
		MaxMessageSize:    8192,
		SendBuffer:        256,
		MessagesPerSecond: 5,
		Burst:             10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	return c
}

var validate = validator.New()

var knownEvents = map[string]bool{
	models.EventJoinClassChat:  true,
	models.EventLeaveClassChat: true,
	models.EventSendMessage:    true,
	models.EventMarkAsRead:     true,
	models.EventEditMessage:    true,
	models.EventDeleteMessage:  true,
}

// Client is one authenticated live channel connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity models.Identity
	info     ConnInfo
	send     chan []byte
	limiter  *rate.Limiter
	logger   *zap.Logger

	mu     sync.RWMutex
	joined map[int64]struct{}

	// owned by the hub goroutine
	closed bool
}

// NewClient creates a client bound to hub. conn may be nil in tests.
func NewClient(hub *Hub, conn *websocket.Conn, identity models.Identity, info ConnInfo) *Client {
	var limiter *rate.Limiter
	if hub.cfg.MessagesPerSecond > 0 {
		burst := hub.cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(hub.cfg.MessagesPerSecond), burst)
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		identity: identity,
		info:     info,
		send:     make(chan []byte, hub.cfg.SendBuffer),
		limiter:  limiter,
		logger:   hub.logger.With(zap.String("conn_id", info.ConnID), zap.Int64("user_id", identity.ID)),
		joined:   make(map[int64]struct{}),
	}
}

func (c *Client) Identity() models.Identity { return c.identity }

func (c *Client) isJoined(classID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.joined[classID]
	return ok
}

func (c *Client) setJoined(classID int64, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if joined {
		c.joined[classID] = struct{}{}
	} else {
		delete(c.joined, classID)
	}
}

func (c *Client) joinedClasses() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int64, 0, len(c.joined))
	for id := range c.joined {
		ids = append(ids, id)
	}
	return ids
}

// ReadPump reads frames until the connection fails and handles each event in
// arrival order.
func (c *Client) ReadPump(ctx context.Context) {
	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("websocket read error", zap.Error(err))
			} else {
				c.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.Handle(ctx, message)
	}
}

// WritePump drains the send queue to the connection and keeps it alive with
// pings. It returns when the hub closes the queue or a write fails.
func (c *Client) WritePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

// Handle decodes one client frame and runs the matching operation. Failures
// are reported to this client only.
func (c *Client) Handle(ctx context.Context, raw []byte) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.replyError("", fmt.Errorf("%w: malformed frame", chat.ErrValidation))
		return
	}
	if knownEvents[env.Event] {
		observability.IncWSEvent("in", env.Event)
	} else {
		observability.IncWSEvent("in", "unknown")
	}

	if err := c.dispatch(ctx, env); err != nil {
		c.replyError(env.Event, err)
	}
}

func (c *Client) dispatch(ctx context.Context, env models.Envelope) error {
	switch env.Event {
	case models.EventJoinClassChat:
		var req models.ClassRef
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return c.hub.Join(ctx, c, req.ClassID)

	case models.EventLeaveClassChat:
		var req models.ClassRef
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return c.hub.Leave(ctx, c, req.ClassID)

	case models.EventSendMessage:
		var req models.SendMessageRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		_, err := c.hub.Send(ctx, c, req.ClassID, models.Draft{
			Body:           req.Message,
			Kind:           req.Kind,
			AttachmentURL:  req.AttachmentURL,
			AttachmentName: req.AttachmentName,
		})
		return err

	case models.EventMarkAsRead:
		var req models.MessageRef
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return c.hub.MarkRead(ctx, c, req.MessageID)

	case models.EventEditMessage:
		var req models.EditMessageRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		_, err := c.hub.EditMessage(ctx, c.identity, req.MessageID, req.Message)
		return err

	case models.EventDeleteMessage:
		var req models.MessageRef
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		_, err := c.hub.DeleteMessage(ctx, c.identity, req.MessageID)
		return err

	default:
		return fmt.Errorf("%w: unknown event %q", chat.ErrValidation, env.Event)
	}
}

func (c *Client) replyError(event string, err error) {
	switch {
	case chat.Routine(err), errors.Is(err, ErrClientClosed):
		c.logger.Debug("live channel request rejected", zap.String("event", event), zap.Error(err))
	case errors.Is(err, chat.ErrStoreFailure):
		c.logger.Warn("live channel request failed", zap.String("event", event), zap.Error(err))
	default:
		c.logger.Info("live channel request rejected", zap.String("event", event), zap.Error(err))
	}
	if errors.Is(err, ErrClientClosed) || errors.Is(err, ErrHubClosed) {
		return
	}

	_ = c.hub.Reply(c, models.EventError, models.ErrorEvent{
		Event:   event,
		Code:    chat.Code(err),
		Message: err.Error(),
	})
}

func decode(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", chat.ErrValidation)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", chat.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", chat.ErrValidation, err)
	}
	return nil
}
