package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventRegisterUser   = "registerUser"
	EventJoinRoom       = "joinRoom"
	EventSendMessage    = "sendMessage"
	EventReceiveMessage = "receiveMessage"
	EventError          = "error"
	EventPing           = "ping"
	EventPong           = "pong"
)

// Envelope wraps every frame exchanged over the chat socket.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(eventType string, data any) ([]byte, error) {
	env := Envelope{Type: eventType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// SendPayload is the body of a sendMessage event.
type SendPayload struct {
	RoomID      string   `json:"roomId" validate:"required,excludes=:"`
	Content     string   `json:"content"`
	UserID      string   `json:"userId,omitempty"`
	MessageType []string `json:"messageType" validate:"dive,oneof=text image"`
	ImageURLs   []string `json:"imageUrls" validate:"dive,url"`
}

// UnmarshalJSON accepts the older field names still sent by some clients
// (chatRoomId, inputMessage, message, text) and maps them onto the
// canonical ones.
func (p *SendPayload) UnmarshalJSON(b []byte) error {
	type canonical SendPayload
	var aux struct {
		canonical
		ChatRoomID   json.RawMessage `json:"chatRoomId"`
		InputMessage string          `json:"inputMessage"`
		Message      string          `json:"message"`
		Text         string          `json:"text"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*p = SendPayload(aux.canonical)
	if p.RoomID == "" && len(aux.ChatRoomID) > 0 {
		roomID, err := DecodeID(aux.ChatRoomID)
		if err != nil {
			return fmt.Errorf("chatRoomId: %w", err)
		}
		p.RoomID = roomID
	}
	if p.Content == "" {
		p.Content = firstNonEmpty(aux.InputMessage, aux.Message, aux.Text)
	}
	return nil
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeID reads a room or user id sent either as a JSON string or a number.
func DecodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("missing id")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or a number: %w", err)
	}
	return n.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
