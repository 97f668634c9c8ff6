//go:generate go run go.uber.org/mock/mockgen -source=history_service.go -destination=../mocks/mock_history_store.go -package=mocks
package services

import (
	"errors"
	"log/slog"

	chaterrors "merry-chat/errors"
	"merry-chat/models"
	"merry-chat/repository"
)

// HistoryStore is the read path of the message document store.
type HistoryStore interface {
	ListByRoom(roomID string) ([]models.StoredMessage, error)
}

type HistoryService struct {
	store HistoryStore
	chats repository.ChatRepository
	users repository.UserRepository
	log   *slog.Logger
}

func NewHistoryService(store HistoryStore, cr repository.ChatRepository, ur repository.UserRepository, log *slog.Logger) *HistoryService {
	return &HistoryService{store: store, chats: cr, users: ur, log: log}
}

// FetchHistory returns the stored messages of roomID in send order.
// ErrRoomNotFound when the room has no record; an empty slice when it has
// no messages yet.
func (s *HistoryService) FetchHistory(roomID string) ([]models.StoredMessage, error) {
	messages, err := s.store.ListByRoom(roomID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.StoredMessage{}
	}
	return messages, nil
}

// ChatHistory is FetchHistory plus the public profile of the other
// participant, as the chat page needs it on load.
func (s *HistoryService) ChatHistory(roomID, userID string) (*models.ChatHistory, error) {
	room, err := s.chats.FindByID(roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, chaterrors.ErrForbidden
	}

	messages, err := s.FetchHistory(roomID)
	if err != nil {
		return nil, err
	}
	history := &models.ChatHistory{Messages: messages}

	if other := room.Other(userID); other != "" {
		u, err := s.users.FindByID(other)
		switch {
		case err == nil:
			p := u.Profile()
			history.OtherUserData = &p
		case errors.Is(err, chaterrors.ErrUserNotFound):
			s.log.Warn("Other participant has no profile", "room_id", roomID, "user_id", other)
		default:
			return nil, err
		}
	}
	return history, nil
}
