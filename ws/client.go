package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	chaterrors "merry-chat/errors"
	"merry-chat/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 30 * time.Second
	pongWait       = 300 * time.Second
	pingPeriod     = 240 * time.Second
	maxMessageSize = 1 << 20
)

const (
	codeBadFrame       = "bad_frame"
	codeInvalidPayload = "invalid_payload"
	codeForbidden      = "forbidden"
	codeNotFound       = "not_found"
	codeUnknownEvent   = "unknown_event"
	codeInternal       = "internal"
)

// Client is one participant's live socket.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	id       string
	userID   string
	username string
	log      *slog.Logger

	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, userID, username string) *Client {
	id := uuid.NewString()
	return &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.opts.ClientBufferSize),
		id:       id,
		userID:   userID,
		username: username,
		log:      h.log.With("conn_id", id, "user_id", userID),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is handled by the HTTP middleware
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an authenticated request and attaches the socket to the
// relay.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID, username string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := newClient(h, conn, userID, username)
	if err := h.OnConnect(client); err != nil {
		client.log.Warn("Relay refused connection", "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay stopped"))
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		_ = c.hub.OnDisconnect(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Transport error", "error", err)
			} else {
				c.log.Debug("Connection closed", "error", err)
			}
			return
		}
		c.dispatch(frame)
	}
}

// dispatch routes one inbound frame to the relay.
func (c *Client) dispatch(frame []byte) {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.fail(codeBadFrame, "frame is not a JSON envelope")
		return
	}

	switch env.Type {
	case models.EventPing:
		c.hub.reply(c, models.EventPong, nil)
	case models.EventPong:
	case models.EventRegisterUser:
		userID, err := models.DecodeID(env.Data)
		if err != nil {
			c.fail(codeInvalidPayload, err.Error())
			return
		}
		if userID != c.userID {
			c.fail(codeForbidden, "user id does not match the session token")
		}
	case models.EventJoinRoom:
		c.join(env.Data)
	case models.EventSendMessage:
		var p models.SendPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.fail(codeInvalidPayload, "sendMessage data must be an object")
			return
		}
		if p.UserID != "" && p.UserID != c.userID {
			c.log.Warn("Payload user id ignored", "payload_user_id", p.UserID)
		}
		if err := c.hub.OnSendMessage(c, p); err != nil {
			if errors.Is(err, chaterrors.ErrInvalidPayload) {
				c.fail(codeInvalidPayload, err.Error())
				return
			}
			c.log.Warn("Message dropped", "error", err)
		}
	default:
		c.fail(codeUnknownEvent, "unknown event "+env.Type)
	}
}

func (c *Client) join(data json.RawMessage) {
	roomID, err := models.DecodeID(data)
	if err != nil || roomID == "" {
		c.fail(codeInvalidPayload, "joinRoom needs a room id")
		return
	}
	if gate := c.hub.opts.Gate; gate != nil {
		ok, err := gate.CanJoin(roomID, c.userID)
		switch {
		case errors.Is(err, chaterrors.ErrRoomNotFound):
			c.fail(codeNotFound, "room not found")
			return
		case err != nil:
			c.log.Error("Room gate failed", "room_id", roomID, "error", err)
			c.fail(codeInternal, "could not check room membership")
			return
		case !ok:
			c.fail(codeForbidden, "not a participant of this room")
			return
		}
	}
	_ = c.hub.OnJoinRoom(c, roomID)
}

func (c *Client) fail(code, message string) {
	c.hub.reply(c, models.EventError, models.ErrorPayload{Code: code, Message: message})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("Transport error", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn("Ping failed", "error", err)
				return
			}
		}
	}
}
