package ws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"class-chat-service/internal/chat"
	"class-chat-service/internal/models"
	"class-chat-service/internal/observability"
)

var (
	ErrHubClosed    = errors.New("hub is not running")
	ErrClientClosed = errors.New("client disconnected")
)

// ChatService is the subset of the chat core used by the hub.
type ChatService interface {
	CanAccessClassChat(ctx context.Context, identity models.Identity, classID int64) error
	Append(ctx context.Context, sender models.Identity, classID int64, draft models.Draft) (models.Message, error)
	Edit(ctx context.Context, editor models.Identity, messageID int64, body string) (models.Message, error)
	Delete(ctx context.Context, requester models.Identity, messageID int64) (models.Message, bool, error)
	MarkRead(ctx context.Context, reader models.Identity, messageID int64) (models.Message, error)
	MessageClass(ctx context.Context, messageID int64) (int64, error)
}

// Presence mirrors room membership into a shared store so other instances
// can answer who is online.
type Presence interface {
	Joined(ctx context.Context, classID, userID int64) error
	Left(ctx context.Context, classID, userID int64) error
	Online(ctx context.Context, classID int64) ([]int64, error)
}

// RoomSnapshot describes one class room for debugging.
type RoomSnapshot struct {
	ClassID     int64   `json:"class_id"`
	Connections int     `json:"connections"`
	UserIDs     []int64 `json:"user_ids"`
}

type classSequencer struct {
	mu   sync.Mutex
	refs int
}

type presenceOp struct {
	classID int64
	userID  int64
	joined  bool
}

// Hub maintains the class rooms. All membership state and every write to a
// client's send queue is owned by the Run goroutine; other goroutines submit
// commands.
type Hub struct {
	svc      ChatService
	presence Presence
	cfg      Config
	logger   *zap.Logger

	commands  chan func()
	presenceQ chan presenceOp
	done      chan struct{}

	seqMu      sync.Mutex
	sequencers map[int64]*classSequencer

	// owned by Run
	rooms   map[int64]map[*Client]struct{}
	clients map[*Client]struct{}
}

type HubOption func(*Hub)

func WithPresence(p Presence) HubOption {
	return func(h *Hub) { h.presence = p }
}

func WithLogger(l *zap.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates an empty hub. Run must be started before use.
func NewHub(svc ChatService, cfg Config, opts ...HubOption) *Hub {
	h := &Hub{
		svc:        svc,
		cfg:        cfg.withDefaults(),
		logger:     zap.NewNop(),
		commands:   make(chan func(), 1024),
		presenceQ:  make(chan presenceOp, 1024),
		done:       make(chan struct{}),
		sequencers: make(map[int64]*classSequencer),
		rooms:      make(map[int64]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes hub commands until ctx is cancelled. On exit every client
// is torn down.
func (h *Hub) Run(ctx context.Context) {
	if h.presence != nil {
		go h.runPresence(ctx)
	}
	defer close(h.done)

	for {
		select {
		case cmd := <-h.commands:
			cmd()
		case <-ctx.Done():
			for c := range h.clients {
				h.teardown(c)
			}
			return
		}
	}
}

// Register tracks a newly connected client.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	return h.call(ctx, func() error {
		h.clients[c] = struct{}{}
		return nil
	})
}

// Join adds the client to a class room after checking access. A denied join
// leaves the client untouched.
func (h *Hub) Join(ctx context.Context, c *Client, classID int64) error {
	if err := h.svc.CanAccessClassChat(ctx, c.identity, classID); err != nil {
		return err
	}
	ack, err := encodeEvent(models.EventJoinedClassChat, models.ClassRef{ClassID: classID})
	if err != nil {
		return err
	}

	return h.call(ctx, func() error {
		if c.closed {
			return ErrClientClosed
		}
		room, ok := h.rooms[classID]
		if !ok {
			room = make(map[*Client]struct{})
			h.rooms[classID] = room
		}
		if _, member := room[c]; !member {
			room[c] = struct{}{}
			c.setJoined(classID, true)
			h.notifyPresence(classID, c.identity.ID, true)
			observability.SetActiveRooms(len(h.rooms))
		}
		h.deliver(c, ack)
		return nil
	})
}

// Leave removes the client from a class room. Leaving a room the client is
// not in is a no-op.
func (h *Hub) Leave(ctx context.Context, c *Client, classID int64) error {
	ack, err := encodeEvent(models.EventLeftClassChat, models.ClassRef{ClassID: classID})
	if err != nil {
		return err
	}
	return h.call(ctx, func() error {
		if c.closed {
			return ErrClientClosed
		}
		h.removeFromRoom(c, classID)
		h.deliver(c, ack)
		return nil
	})
}

// Disconnect tears the client down: it leaves every joined room and its send
// queue is closed. Safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	_ = h.call(context.Background(), func() error {
		h.teardown(c)
		return nil
	})
}

// Send appends a message from a joined client and broadcasts it to the room.
// The class sequencer is held until the broadcast is queued so room members
// observe messages in store order.
func (h *Hub) Send(ctx context.Context, c *Client, classID int64, draft models.Draft) (models.Message, error) {
	if !c.isJoined(classID) {
		return models.Message{}, fmt.Errorf("%w: class %d", chat.ErrNotJoined, classID)
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return models.Message{}, fmt.Errorf("%w: slow down", chat.ErrRateLimited)
	}

	unlock := h.lockClass(classID)
	defer unlock()

	msg, err := h.svc.Append(ctx, c.identity, classID, draft)
	if err != nil {
		return models.Message{}, err
	}
	if err := h.broadcast(classID, models.EventNewMessage, msg); err != nil {
		h.logger.Warn("broadcast new message failed", zap.Int64("class_id", classID), zap.Error(err))
	}
	return msg, nil
}

// EditMessage edits a message and notifies its class room. The class
// sequencer is held across the store write and the broadcast.
func (h *Hub) EditMessage(ctx context.Context, editor models.Identity, messageID int64, body string) (models.Message, error) {
	classID, err := h.svc.MessageClass(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	unlock := h.lockClass(classID)
	defer unlock()

	msg, err := h.svc.Edit(ctx, editor, messageID, body)
	if err != nil {
		return models.Message{}, err
	}
	if err := h.broadcast(msg.ClassID, models.EventMessageUpdated, msg); err != nil {
		h.logger.Warn("broadcast message update failed", zap.Int64("message_id", msg.ID), zap.Error(err))
	}
	return msg, nil
}

// DeleteMessage soft-deletes a message and notifies its class room. A repeated
// delete succeeds without a broadcast.
func (h *Hub) DeleteMessage(ctx context.Context, requester models.Identity, messageID int64) (models.Message, error) {
	classID, err := h.svc.MessageClass(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	unlock := h.lockClass(classID)
	defer unlock()

	msg, changed, err := h.svc.Delete(ctx, requester, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if !changed {
		return msg, nil
	}
	if err := h.broadcast(msg.ClassID, models.EventMessageDeleted, msg); err != nil {
		h.logger.Warn("broadcast message delete failed", zap.Int64("message_id", msg.ID), zap.Error(err))
	}
	return msg, nil
}

// MarkRead records a read mark and acknowledges it to the reader only.
func (h *Hub) MarkRead(ctx context.Context, c *Client, messageID int64) error {
	msg, err := h.svc.MarkRead(ctx, c.identity, messageID)
	if err != nil {
		return err
	}
	return h.Reply(c, models.EventMessageRead, models.ReadEvent{MessageID: msg.ID, ClassID: msg.ClassID})
}

// Reply queues an event for one client.
func (h *Hub) Reply(c *Client, event string, data interface{}) error {
	payload, err := encodeEvent(event, data)
	if err != nil {
		return err
	}
	return h.post(func() {
		if !c.closed {
			h.deliver(c, payload)
		}
	})
}

// Online lists the users connected to a class chat. The caller must have
// access to the class.
func (h *Hub) Online(ctx context.Context, identity models.Identity, classID int64) ([]int64, error) {
	if err := h.svc.CanAccessClassChat(ctx, identity, classID); err != nil {
		return nil, err
	}
	if h.presence != nil {
		ids, err := h.presence.Online(ctx, classID)
		if err == nil {
			return ids, nil
		}
		h.logger.Warn("presence lookup failed, using local rooms", zap.Int64("class_id", classID), zap.Error(err))
	}

	var ids []int64
	err := h.call(ctx, func() error {
		ids = roomUserIDs(h.rooms[classID])
		return nil
	})
	return ids, err
}

// Rooms returns a snapshot of every non-empty room.
func (h *Hub) Rooms(ctx context.Context) ([]RoomSnapshot, error) {
	var snapshots []RoomSnapshot
	err := h.call(ctx, func() error {
		snapshots = make([]RoomSnapshot, 0, len(h.rooms))
		for classID, room := range h.rooms {
			snapshots = append(snapshots, RoomSnapshot{
				ClassID:     classID,
				Connections: len(room),
				UserIDs:     roomUserIDs(room),
			})
		}
		return nil
	})
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ClassID < snapshots[j].ClassID })
	return snapshots, err
}

// broadcast queues event for every client currently in the class room.
func (h *Hub) broadcast(classID int64, event string, data interface{}) error {
	payload, err := encodeEvent(event, data)
	if err != nil {
		return err
	}
	observability.IncWSEvent("out", event)
	return h.post(func() {
		for c := range h.rooms[classID] {
			h.deliver(c, payload)
		}
	})
}

// deliver must run on the hub goroutine. A client that cannot keep up is
// torn down.
func (h *Hub) deliver(c *Client, payload []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		h.logger.Warn("client send queue full, disconnecting",
			zap.String("conn_id", c.info.ConnID), zap.Int64("user_id", c.identity.ID))
		h.teardown(c)
	}
}

// teardown must run on the hub goroutine.
func (h *Hub) teardown(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	for _, classID := range c.joinedClasses() {
		h.removeFromRoom(c, classID)
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) removeFromRoom(c *Client, classID int64) {
	room, ok := h.rooms[classID]
	if !ok {
		return
	}
	if _, member := room[c]; !member {
		return
	}
	delete(room, c)
	c.setJoined(classID, false)
	h.notifyPresence(classID, c.identity.ID, false)
	if len(room) == 0 {
		delete(h.rooms, classID)
	}
	observability.SetActiveRooms(len(h.rooms))
}

func (h *Hub) notifyPresence(classID, userID int64, joined bool) {
	if h.presence == nil {
		return
	}
	select {
	case h.presenceQ <- presenceOp{classID: classID, userID: userID, joined: joined}:
	default:
		h.logger.Warn("presence queue full, dropping update", zap.Int64("class_id", classID), zap.Int64("user_id", userID))
	}
}

func (h *Hub) runPresence(ctx context.Context) {
	for {
		select {
		case op := <-h.presenceQ:
			var err error
			if op.joined {
				err = h.presence.Joined(ctx, op.classID, op.userID)
			} else {
				err = h.presence.Left(ctx, op.classID, op.userID)
			}
			if err != nil {
				h.logger.Warn("presence update failed", zap.Int64("class_id", op.classID), zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// lockClass takes the class sequencer and returns its release. Entries are
// dropped once no goroutine holds or waits on them.
func (h *Hub) lockClass(classID int64) func() {
	h.seqMu.Lock()
	seq, ok := h.sequencers[classID]
	if !ok {
		seq = &classSequencer{}
		h.sequencers[classID] = seq
	}
	seq.refs++
	h.seqMu.Unlock()

	seq.mu.Lock()
	return func() {
		seq.mu.Unlock()
		h.seqMu.Lock()
		seq.refs--
		if seq.refs == 0 {
			delete(h.sequencers, classID)
		}
		h.seqMu.Unlock()
	}
}

// post queues fn on the hub goroutine without waiting for it to run.
func (h *Hub) post(fn func()) error {
	select {
	case h.commands <- fn:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// call runs fn on the hub goroutine and waits for its result.
func (h *Hub) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case h.commands <- func() { result <- fn() }:
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-h.done:
		return ErrHubClosed
	}
}

func roomUserIDs(room map[*Client]struct{}) []int64 {
	ids := lo.Uniq(lo.MapToSlice(room, func(c *Client, _ struct{}) int64 { return c.identity.ID }))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
