// Package session is the client side of a chat room: it loads the room's
// history, opens the relay socket, registers and joins, then keeps the
// displayed message sequence up to date.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	chaterrors "merry-chat/errors"
	"merry-chat/models"
	"merry-chat/utils"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 300 * time.Second
	pingPeriod     = 240 * time.Second
	maxMessageSize = 1 << 20
	outgoingBuffer = 16
)

type Config struct {
	// ServerURL is the HTTP base URL of the chat backend, e.g. http://localhost:8081.
	ServerURL string
	Token     string
	RoomID    string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Log        *slog.Logger

	// OnMessage is called from the read loop for every relayed message.
	OnMessage func(models.Message)
	// OnError is called for error events the relay sends back.
	OnError func(models.ErrorPayload)
}

// HistoryFetchError records why the initial history could not be loaded.
// The session keeps running without it.
type HistoryFetchError struct {
	RoomID     string
	StatusCode int
	Err        error
}

func (e *HistoryFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("history of room %s: status %d: %v", e.RoomID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("history of room %s: %v", e.RoomID, e.Err)
}

func (e *HistoryFetchError) Unwrap() error { return e.Err }

type Session struct {
	cfg      Config
	userID   string
	username string
	log      *slog.Logger

	conn     *websocket.Conn
	outgoing chan []byte
	closing  chan struct{}
	done     chan struct{}

	startOnce sync.Once
	closeOnce sync.Once

	mu          sync.Mutex
	displayed   []models.Message
	other       *models.Profile
	historyErr  error
	input       string
	attachments []string
}

// New resolves the caller's identity from the token. Nothing is sent over
// the network until Start.
func New(cfg Config) (*Session, error) {
	if cfg.ServerURL == "" || cfg.RoomID == "" {
		return nil, fmt.Errorf("%w: server url and room id are required", chaterrors.ErrInvalidRequest)
	}
	userID, username, err := utils.PeekJWT(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chaterrors.ErrInvalidToken, err)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Session{
		cfg:       cfg,
		userID:    userID,
		username:  username,
		log:       cfg.Log.With("user_id", userID, "room_id", cfg.RoomID),
		outgoing:  make(chan []byte, outgoingBuffer),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		displayed: []models.Message{},
	}, nil
}

func (s *Session) UserID() string   { return s.userID }
func (s *Session) Username() string { return s.username }
func (s *Session) RoomID() string   { return s.cfg.RoomID }

// Start loads the history, connects, then registers and joins the room.
// A failed history load does not stop the session; see HistoryErr.
func (s *Session) Start(ctx context.Context) error {
	err := chaterrors.ErrSessionClosed
	s.startOnce.Do(func() {
		select {
		case <-s.closing:
			return
		default:
		}
		s.loadHistory(ctx)
		err = s.connect(ctx)
	})
	return err
}

func (s *Session) loadHistory(ctx context.Context) {
	history, status, err := s.fetchHistory(ctx)
	if err != nil {
		s.log.Warn("Chat history unavailable", "status", status, "error", err)
		s.mu.Lock()
		s.historyErr = &HistoryFetchError{RoomID: s.cfg.RoomID, StatusCode: status, Err: err}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayed = lo.Map(history.Messages, func(m models.StoredMessage, _ int) models.Message {
		return m.ToMessage(s.cfg.RoomID)
	})
	s.other = history.OtherUserData
}

func (s *Session) fetchHistory(ctx context.Context) (*models.ChatHistory, int, error) {
	endpoint := strings.TrimRight(s.cfg.ServerURL, "/") + "/api/chat/chatHistory?" +
		url.Values{"chatRoomId": {s.cfg.RoomID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &failure)
		return nil, resp.StatusCode, errors.New(lo.CoalesceOrEmpty(failure.Message, failure.Error, resp.Status))
	}

	var envelope struct {
		Data models.ChatHistory `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("bad history body: %w", err)
	}
	return &envelope.Data, resp.StatusCode, nil
}

func (s *Session) socketURL() (string, error) {
	u, err := url.Parse(s.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {s.cfg.Token}}.Encode()
	return u.String(), nil
}

func (s *Session) connect(ctx context.Context) error {
	target, err := s.socketURL()
	if err != nil {
		return err
	}
	conn, _, err := s.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	s.conn = conn

	// Queued before the pumps start so they go out first, in this order.
	for _, ev := range []struct {
		kind string
		data string
	}{
		{models.EventRegisterUser, s.userID},
		{models.EventJoinRoom, s.cfg.RoomID},
	} {
		frame, err := models.NewEnvelope(ev.kind, ev.data)
		if err != nil {
			_ = conn.Close()
			return err
		}
		s.outgoing <- frame
	}

	go s.writePump()
	go s.readPump()
	s.log.Info("Session started")
	return nil
}

// SetInput replaces the pending text.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = text
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// QueueAttachment adds an already uploaded image URL to the next message.
func (s *Session) QueueAttachment(imageURL string) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments = append(s.attachments, imageURL)
}

// SendMessage sends the pending text and attachments. Local input is
// cleared right away, before the relay echoes anything back. Nothing is
// sent when both are empty.
func (s *Session) SendMessage() error {
	s.mu.Lock()
	text := strings.TrimSpace(s.input)
	attachments := s.attachments
	if text == "" && len(attachments) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.input = ""
	s.attachments = nil
	s.mu.Unlock()

	var types []string
	if text != "" {
		types = append(types, models.TypeText)
	}
	if len(attachments) > 0 {
		types = append(types, models.TypeImage)
	}
	frame, err := models.NewEnvelope(models.EventSendMessage, models.SendPayload{
		RoomID:      s.cfg.RoomID,
		Content:     text,
		UserID:      s.userID,
		MessageType: types,
		ImageURLs:   lo.Ternary(attachments == nil, []string{}, attachments),
	})
	if err != nil {
		return err
	}
	return s.write(frame)
}

func (s *Session) write(frame []byte) error {
	if s.conn == nil {
		return chaterrors.ErrSessionClosed
	}
	select {
	case <-s.closing:
		return chaterrors.ErrSessionClosed
	default:
	}
	select {
	case s.outgoing <- frame:
		return nil
	case <-s.closing:
		return chaterrors.ErrSessionClosed
	}
}

// Messages returns a copy of the displayed sequence: history first, then
// relayed messages in arrival order.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.displayed...)
}

// OtherUser is the other participant's profile, nil when the history
// could not be loaded.
func (s *Session) OtherUser() *models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.other
}

func (s *Session) HistoryErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyErr
}

// Done is closed once the connection is gone.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session and its connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
	if s.conn == nil {
		return
	}
	select {
	case <-s.done:
	case <-time.After(writeWait):
		_ = s.conn.Close()
	}
}

func (s *Session) readPump() {
	defer func() {
		s.closeOnce.Do(func() { close(s.closing) })
		_ = s.conn.Close()
		close(s.done)
		s.log.Info("Session ended")
	}()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Connection lost", "error", err)
			}
			return
		}
		s.handle(frame)
	}
}

func (s *Session) handle(frame []byte) {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		s.log.Warn("Unreadable frame", "error", err)
		return
	}
	switch env.Type {
	case models.EventReceiveMessage:
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			s.log.Warn("Unreadable message", "error", err)
			return
		}
		s.mu.Lock()
		s.displayed = append(s.displayed, msg)
		s.mu.Unlock()
		if s.cfg.OnMessage != nil {
			s.cfg.OnMessage(msg)
		}
	case models.EventError:
		var payload models.ErrorPayload
		_ = json.Unmarshal(env.Data, &payload)
		s.log.Warn("Relay error", "code", payload.Code, "message", payload.Message)
		if s.cfg.OnError != nil {
			s.cfg.OnError(payload)
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case frame := <-s.outgoing:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Warn("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closing:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
