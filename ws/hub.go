package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"merry-chat/config"
	chaterrors "merry-chat/errors"
	"merry-chat/models"
	"merry-chat/services"

	"github.com/google/uuid"
)

// RoomGate decides whether a user may join a room. The relay itself does
// not know about rooms beyond their id.
type RoomGate interface {
	CanJoin(roomID, userID string) (bool, error)
}

type Options struct {
	EchoPolicy       string
	ClientBufferSize int
	MaxMessageLength int
	EventBufferSize  int
	// Gate is consulted on joinRoom when set.
	Gate RoomGate
}

type eventKind int

const (
	eventConnect eventKind = iota
	eventJoin
	eventSend
	eventReply
	eventDisconnect
)

type hubEvent struct {
	kind    eventKind
	client  *Client
	roomID  string
	payload models.SendPayload
	data    []byte
}

// Hub is the message relay. Every connect, join, send and disconnect goes
// through one channel and is handled to completion by Run, so the registry
// is only mutated from that goroutine and a connection's messages are
// broadcast in the order they were sent.
type Hub struct {
	registry *Registry
	clients  map[*Client]struct{}
	events   chan hubEvent
	recorder services.MessageRecorder
	opts     Options
	log      *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	now       func() time.Time
}

// NewHub builds a relay. recorder may be nil, in which case nothing relayed
// is persisted.
func NewHub(log *slog.Logger, recorder services.MessageRecorder, opts Options) *Hub {
	if opts.EchoPolicy == "" {
		opts.EchoPolicy = config.EchoAll
	}
	if opts.ClientBufferSize <= 0 {
		opts.ClientBufferSize = 256
	}
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = 256
	}
	return &Hub{
		registry: NewRegistry(),
		clients:  make(map[*Client]struct{}),
		events:   make(chan hubEvent, opts.EventBufferSize),
		recorder: recorder,
		opts:     opts,
		log:      log,
		done:     make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the relay loop until ctx is cancelled or Stop is called.
func (h *Hub) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		ctx, h.cancel = context.WithCancel(ctx)
		go h.Run(ctx)
	})
}

// Stop ends the loop, closes every connection and waits for the loop to
// return.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		if h.cancel == nil {
			close(h.done)
			return
		}
		h.cancel()
		<-h.done
	})
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.log.Info("Relay started", "echo_policy", h.opts.EchoPolicy)
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			h.log.Info("Relay stopped")
			return
		case ev := <-h.events:
			h.handle(ev)
		}
	}
}

func (h *Hub) handle(ev hubEvent) {
	switch ev.kind {
	case eventConnect:
		h.clients[ev.client] = struct{}{}
		h.log.Info("Client connected", "conn_id", ev.client.id, "user_id", ev.client.userID)
	case eventJoin:
		if _, ok := h.clients[ev.client]; !ok {
			return
		}
		if h.registry.Join(ev.client, ev.roomID) {
			h.log.Info("Client joined room", "conn_id", ev.client.id, "user_id", ev.client.userID,
				"room_id", ev.roomID, "members", h.registry.Count(ev.roomID))
		}
	case eventSend:
		if _, ok := h.clients[ev.client]; !ok {
			return
		}
		h.relay(ev.client, ev.payload)
	case eventReply:
		if _, ok := h.clients[ev.client]; !ok {
			return
		}
		if !ev.client.enqueue(ev.data) {
			h.evict(ev.client, "reply buffer full")
		}
	case eventDisconnect:
		if _, ok := h.clients[ev.client]; ok {
			h.evict(ev.client, "disconnected")
		}
	}
}

// relay stamps the payload and fans it out to the room.
func (h *Hub) relay(sender *Client, p models.SendPayload) {
	msg := models.Message{
		ID:           uuid.NewString(),
		RoomID:       p.RoomID,
		SenderID:     sender.userID,
		ConnectionID: sender.id,
		Content:      p.Content,
		Type:         p.MessageType,
		ImageURLs:    p.ImageURLs,
		Timestamp:    h.now(),
	}
	if h.recorder != nil {
		if err := h.recorder.Record(msg); err != nil {
			h.log.Error("Message not persisted", "room_id", msg.RoomID, "message_id", msg.ID, "error", err)
		}
	}

	data, err := models.NewEnvelope(models.EventReceiveMessage, msg)
	if err != nil {
		h.log.Error("Failed to encode message", "room_id", msg.RoomID, "error", err)
		return
	}

	members := h.registry.MembersOf(msg.RoomID)
	delivered := 0
	for _, member := range members {
		if member == sender && h.opts.EchoPolicy == config.EchoOthers {
			continue
		}
		if !member.enqueue(data) {
			h.evict(member, "send buffer full")
			continue
		}
		delivered++
	}
	h.log.Debug("Message relayed", "room_id", msg.RoomID, "conn_id", sender.id, "delivered", delivered)
}

// evict drops c from the registry and closes its outbound channel, which
// makes the write pump close the socket.
func (h *Hub) evict(c *Client, reason string) {
	rooms := h.registry.Leave(c)
	delete(h.clients, c)
	c.closeSend()
	h.log.Info("Client removed", "conn_id", c.id, "user_id", c.userID, "rooms", rooms, "reason", reason)
}

func (h *Hub) closeAllClients() {
	for c := range h.clients {
		h.registry.Leave(c)
		c.closeSend()
	}
	h.clients = make(map[*Client]struct{})
}

func (h *Hub) submit(ev hubEvent) error {
	select {
	case <-h.done:
		return chaterrors.ErrRelayStopped
	default:
	}
	select {
	case h.events <- ev:
		return nil
	case <-h.done:
		return chaterrors.ErrRelayStopped
	}
}

// OnConnect registers a freshly accepted connection with the relay.
func (h *Hub) OnConnect(c *Client) error {
	return h.submit(hubEvent{kind: eventConnect, client: c})
}

// OnJoinRoom makes c eligible for messages broadcast to roomID.
func (h *Hub) OnJoinRoom(c *Client, roomID string) error {
	return h.submit(hubEvent{kind: eventJoin, client: c, roomID: roomID})
}

// OnSendMessage validates the payload and queues it for broadcast. Invalid
// payloads are rejected with ErrInvalidPayload and never reach the room.
func (h *Hub) OnSendMessage(c *Client, p models.SendPayload) error {
	p, err := normalizePayload(p, h.opts.MaxMessageLength)
	if err != nil {
		return err
	}
	return h.submit(hubEvent{kind: eventSend, client: c, payload: p})
}

// OnDisconnect removes c from every room. Remaining members are not told.
func (h *Hub) OnDisconnect(c *Client) error {
	return h.submit(hubEvent{kind: eventDisconnect, client: c})
}

// reply sends a frame to c alone, through the loop so it never races the
// closing of c's outbound channel.
func (h *Hub) reply(c *Client, eventType string, data any) {
	frame, err := models.NewEnvelope(eventType, data)
	if err != nil {
		h.log.Error("Failed to encode reply", "conn_id", c.id, "error", err)
		return
	}
	_ = h.submit(hubEvent{kind: eventReply, client: c, data: frame})
}

// GetUserCount returns the number of connections joined to roomID.
func (h *Hub) GetUserCount(roomID string) int {
	return h.registry.Count(roomID)
}
