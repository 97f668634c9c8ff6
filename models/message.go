package models

import "time"

const (
	TypeText  = "text"
	TypeImage = "image"
)

// Message is the record the relay fans out to a room. It only lives on the
// wire; StoredMessage is what the history store keeps.
type Message struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"room_id"`
	SenderID     string    `json:"sender_id"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Content      string    `json:"content"`
	Type         []string  `json:"type"`
	ImageURLs    []string  `json:"image_urls"`
	Timestamp    time.Time `json:"timestamp"`
}

type StoredMessage struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Type      []string  `json:"type"`
	ImageURLs []string  `json:"image_urls"`
	CreatedAt time.Time `json:"created_at"`
}

func (m Message) Stored() StoredMessage {
	return StoredMessage{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      m.Type,
		ImageURLs: m.ImageURLs,
		CreatedAt: m.Timestamp,
	}
}

// ToMessage lifts a history entry into the shape of a relayed message so
// clients can keep a single displayed sequence.
func (s StoredMessage) ToMessage(roomID string) Message {
	return Message{
		ID:        s.ID,
		RoomID:    roomID,
		SenderID:  s.SenderID,
		Content:   s.Content,
		Type:      s.Type,
		ImageURLs: s.ImageURLs,
		Timestamp: s.CreatedAt,
	}
}

// ChatHistory is the body of GET /api/chat/chatHistory.
type ChatHistory struct {
	Messages      []StoredMessage `json:"messages"`
	OtherUserData *Profile        `json:"otherUserData,omitempty"`
}
