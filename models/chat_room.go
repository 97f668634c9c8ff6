package models

import (
	"time"

	"github.com/samber/lo"
)

// ChatRoom is the document created when two users match.
type ChatRoom struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	// Online is filled from the relay on read, never stored.
	Online int `json:"online"`
}

func (r ChatRoom) HasParticipant(userID string) bool {
	return lo.Contains(r.Participants, userID)
}

// Other returns the first participant that is not userID, or "".
func (r ChatRoom) Other(userID string) string {
	other, _ := lo.Find(r.Participants, func(p string) bool { return p != userID })
	return other
}
